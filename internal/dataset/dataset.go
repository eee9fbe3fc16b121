package dataset

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"
)

type TaskKind string

const (
	TaskClassification TaskKind = "classification"
	TaskRegression     TaskKind = "regression"
)

// Recommended carries the per-dataset default hyperparameters applied when
// a training request leaves a knob unset.
type Recommended struct {
	Epochs       int
	LearningRate float64
	BatchSize    int
	Optimizer    string
}

// Spec is the immutable descriptor a provider exposes without touching its
// underlying data. InputShape is either [features] for tabular data or
// [height, width, channels] for images.
type Spec struct {
	ID          string
	Name        string
	Task        TaskKind
	InputShape  []int
	OutputArity int
	NumSamples  int
	Description string
	Recommended Recommended
}

// NumFeatures is the flattened input width.
func (s Spec) NumFeatures() int {
	n := 1
	for _, d := range s.InputShape {
		n *= d
	}
	return n
}

func (s Spec) IsImage() bool {
	return len(s.InputShape) == 3
}

// Split holds the preprocessed train/test slices. Labels are class indices
// for classification and raw targets for regression. Scaler, when non-nil,
// is the transform fitted on the training slice; prediction inputs must
// pass through it.
type Split struct {
	XTrain *mat.Dense
	YTrain []float64
	XTest  *mat.Dense
	YTest  []float64
	Scaler *Scaler
}

// Provider yields a Spec cheaply and materializes the data on demand.
// maxSamples caps the training slice; generated datasets size their sample
// pool by it instead. Zero means no cap.
type Provider interface {
	Spec() Spec
	Load(ctx context.Context, maxSamples int) (*Split, error)
}

var ErrNotFound = errors.New("dataset not found")
