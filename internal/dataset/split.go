package dataset

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultTestFraction = 0.2
	splitSeed           = 42
)

// makeSplit shuffles rows deterministically, holds out the native test
// fraction, and caps the training slice at maxTrain (0 = no cap).
// Classification splits are stratified per class so small test slices keep
// every label represented.
func makeSplit(x *mat.Dense, y []float64, task TaskKind, maxTrain int) *Split {
	rows, cols := x.Dims()
	rng := rand.New(rand.NewSource(splitSeed))

	var trainIdx, testIdx []int
	if task == TaskClassification {
		trainIdx, testIdx = stratifiedIndices(y, rng)
	} else {
		perm := rng.Perm(rows)
		nTest := int(float64(rows) * defaultTestFraction)
		if nTest < 1 && rows > 1 {
			nTest = 1
		}
		testIdx = perm[:nTest]
		trainIdx = perm[nTest:]
	}

	if maxTrain > 0 && maxTrain < len(trainIdx) {
		trainIdx = trainIdx[:maxTrain]
	}

	return &Split{
		XTrain: takeRows(x, trainIdx, cols),
		YTrain: takeLabels(y, trainIdx),
		XTest:  takeRows(x, testIdx, cols),
		YTest:  takeLabels(y, testIdx),
	}
}

func stratifiedIndices(y []float64, rng *rand.Rand) (train, test []int) {
	byClass := map[int][]int{}
	order := []int{}
	for i, v := range y {
		c := int(v)
		if _, ok := byClass[c]; !ok {
			order = append(order, c)
		}
		byClass[c] = append(byClass[c], i)
	}
	for _, c := range order {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		nTest := int(float64(len(idx)) * defaultTestFraction)
		if nTest < 1 && len(idx) > 1 {
			nTest = 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test
}

func takeRows(x *mat.Dense, idx []int, cols int) *mat.Dense {
	out := mat.NewDense(len(idx), cols, nil)
	for i, src := range idx {
		out.SetRow(i, mat.Row(nil, src, x))
	}
	return out
}

func takeLabels(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, src := range idx {
		out[i] = y[src]
	}
	return out
}
