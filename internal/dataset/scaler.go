package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scaler applies x' = (x - Mean) / Scale per feature. Standardization sets
// Mean/Scale from training statistics; pixel scaling uses Mean=0 Scale=255.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitStandard computes per-column mean and standard deviation over x.
// Columns with zero variance get scale 1 so they pass through centered.
func FitStandard(x *mat.Dense) *Scaler {
	rows, cols := x.Dims()
	mean := make([]float64, cols)
	scale := make([]float64, cols)

	for j := 0; j < cols; j++ {
		var sum float64
		for i := 0; i < rows; i++ {
			sum += x.At(i, j)
		}
		mean[j] = sum / float64(rows)

		var sq float64
		for i := 0; i < rows; i++ {
			d := x.At(i, j) - mean[j]
			sq += d * d
		}
		scale[j] = math.Sqrt(sq / float64(rows))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return &Scaler{Mean: mean, Scale: scale}
}

// Uniform builds a scaler that divides every feature by the same factor.
func Uniform(cols int, factor float64) *Scaler {
	mean := make([]float64, cols)
	scale := make([]float64, cols)
	for j := range scale {
		scale[j] = factor
	}
	return &Scaler{Mean: mean, Scale: scale}
}

// standardize fits a standard scaler on the training slice and transforms
// both slices in place, the same scaler serving later prediction inputs.
func standardize(s *Split) {
	s.Scaler = FitStandard(s.XTrain)
	s.Scaler.Apply(s.XTrain)
	s.Scaler.Apply(s.XTest)
}

// Apply transforms x in place.
func (s *Scaler) Apply(x *mat.Dense) {
	if s == nil {
		return
	}
	rows, cols := x.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x.Set(i, j, (x.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
}

// TransformRow returns a scaled copy of one raw input row.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if s == nil {
		out := make([]float64, len(row))
		copy(out, row)
		return out, nil
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("input has %d features, want %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}
