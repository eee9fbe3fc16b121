package dataset

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed data/iris.csv
var irisCSV string

// Iris serves the classic 150-flower measurement set. The data ships inside
// the binary so the playground always has at least one working dataset
// without external storage.
type Iris struct{}

func NewIris() *Iris { return &Iris{} }

func (*Iris) Spec() Spec {
	return Spec{
		ID:          "iris",
		Name:        "Iris",
		Task:        TaskClassification,
		InputShape:  []int{4},
		OutputArity: 3,
		NumSamples:  150,
		Description: "Simple 3-class classification on flower measurements (4 features).",
		Recommended: Recommended{Epochs: 50, LearningRate: 0.01, BatchSize: 32, Optimizer: "adam"},
	}
}

func (p *Iris) Load(_ context.Context, maxSamples int) (*Split, error) {
	x, y, err := parseCSV(strings.NewReader(irisCSV), ',', 4)
	if err != nil {
		return nil, fmt.Errorf("iris: %w", err)
	}
	split := makeSplit(x, y, TaskClassification, maxSamples)
	standardize(split)
	return split, nil
}
