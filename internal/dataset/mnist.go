package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/petar/GoMNIST"
	"gonum.org/v1/gonum/mat"
)

const mnistPixelMax = 255

// MNIST reads the four IDX archives from a local directory and keeps the
// native 60k/10k train/test split instead of reshuffling. Pixels are scaled
// to [0,1] by a uniform scaler that also normalizes prediction inputs.
type MNIST struct {
	dir string
}

func NewMNIST(dir string) *MNIST { return &MNIST{dir: dir} }

func (*MNIST) Spec() Spec {
	return Spec{
		ID:          "mnist",
		Name:        "MNIST",
		Task:        TaskClassification,
		InputShape:  []int{28, 28, 1},
		OutputArity: 10,
		NumSamples:  60000,
		Description: "28x28 grayscale digit images (flattened to 784 features).",
		Recommended: Recommended{Epochs: 10, LearningRate: 0.001, BatchSize: 4096, Optimizer: "adam"},
	}
}

func (p *MNIST) Load(_ context.Context, maxSamples int) (*Split, error) {
	train, test, err := GoMNIST.Load(p.dir)
	if err != nil {
		return nil, fmt.Errorf("mnist: load %s: %w", p.dir, err)
	}

	features := p.Spec().NumFeatures()
	nTrain := len(train.Images)
	if maxSamples > 0 && maxSamples < nTrain {
		nTrain = maxSamples
	}

	xTrain, yTrain, err := mnistDense(train, nTrain, features)
	if err != nil {
		return nil, fmt.Errorf("mnist: train set: %w", err)
	}
	xTest, yTest, err := mnistDense(test, len(test.Images), features)
	if err != nil {
		return nil, fmt.Errorf("mnist: test set: %w", err)
	}

	scaler := Uniform(features, mnistPixelMax)
	scaler.Apply(xTrain)
	scaler.Apply(xTest)

	return &Split{
		XTrain: xTrain,
		YTrain: yTrain,
		XTest:  xTest,
		YTest:  yTest,
		Scaler: scaler,
	}, nil
}

// mnistDense flattens the first n images of a set into a row-per-image
// matrix of raw pixel intensities.
func mnistDense(s *GoMNIST.Set, n, features int) (*mat.Dense, []float64, error) {
	if n < 1 {
		return nil, nil, errors.New("empty image set")
	}
	x := mat.NewDense(n, features, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		img := s.Images[i]
		if len(img) != features {
			return nil, nil, fmt.Errorf("image %d has %d pixels, want %d", i, len(img), features)
		}
		row := x.RawRowView(i)
		for k, px := range img {
			row[k] = float64(px)
		}
		y[i] = float64(s.Labels[i])
	}
	return x, y, nil
}
