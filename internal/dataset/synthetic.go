package dataset

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SyntheticKind selects which 2D generator a Synthetic provider runs.
type SyntheticKind string

const (
	SyntheticXOR    SyntheticKind = "xor"
	SyntheticSpiral SyntheticKind = "spiral"
)

const (
	syntheticSeed       = 42
	minSyntheticSamples = 100
)

// Synthetic generates non-linear 2D classification data on the fly.
// Generation is seeded, so repeated loads return identical splits.
type Synthetic struct {
	kind SyntheticKind
}

// NewSynthetic builds a generator of the given kind; empty means XOR.
func NewSynthetic(kind SyntheticKind) *Synthetic {
	if kind == "" {
		kind = SyntheticXOR
	}
	return &Synthetic{kind: kind}
}

func (*Synthetic) Spec() Spec {
	return Spec{
		ID:          "synthetic",
		Name:        "Synthetic (XOR/Spiral)",
		Task:        TaskClassification,
		InputShape:  []int{2},
		OutputArity: 2,
		NumSamples:  1000,
		Description: "Synthetic non-linear 2D datasets: XOR or spiral.",
		Recommended: Recommended{Epochs: 100, LearningRate: 0.01, BatchSize: 64, Optimizer: "adam"},
	}
}

// Load sizes the generated pool by maxSamples when set, never below 100 so
// the stratified holdout keeps both classes populated.
func (p *Synthetic) Load(_ context.Context, maxSamples int) (*Split, error) {
	n := p.Spec().NumSamples
	if maxSamples > 0 {
		n = maxSamples
	}
	if n < minSyntheticSamples {
		n = minSyntheticSamples
	}

	rng := rand.New(rand.NewSource(syntheticSeed))
	var x *mat.Dense
	var y []float64
	switch p.kind {
	case SyntheticSpiral:
		x, y = makeSpiral(n, rng)
	default:
		x, y = makeXOR(n, rng)
	}

	split := makeSplit(x, y, TaskClassification, 0)
	standardize(split)
	return split, nil
}

// makeXOR samples points uniformly from [-1,1)^2 and labels each by whether
// its coordinates fall in opposite quadrant signs.
func makeXOR(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.Float64()*2 - 1
		b := rng.Float64()*2 - 1
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		if (a > 0) != (b > 0) {
			y[i] = 1
		}
	}
	return x, y
}

// makeSpiral lays two interleaved arms half a turn apart, radius growing
// linearly to 1 over up to two full turns, with gaussian jitter on top.
func makeSpiral(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	per := n / 2
	theta := make([]float64, per)
	for i := range theta {
		theta[i] = rng.Float64() * 4 * math.Pi
	}

	x := mat.NewDense(2*per, 2, nil)
	y := make([]float64, 2*per)
	for i := 0; i < per; i++ {
		r := float64(i) / float64(per-1)
		x.Set(i, 0, r*math.Cos(theta[i]))
		x.Set(i, 1, r*math.Sin(theta[i]))
		x.Set(per+i, 0, r*math.Cos(theta[i]+math.Pi))
		x.Set(per+i, 1, r*math.Sin(theta[i]+math.Pi))
		y[per+i] = 1
	}
	for i := 0; i < 2*per; i++ {
		x.Set(i, 0, x.At(i, 0)+rng.NormFloat64()*0.05)
		x.Set(i, 1, x.At(i, 1)+rng.NormFloat64()*0.05)
	}
	return x, y
}
