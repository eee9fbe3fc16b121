// Package optimizer implements the gradient descent update rules offered
// to training sessions. All optimizers are constructed from a learning
// rate alone; the remaining coefficients are the conventional defaults.
package optimizer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrUnknown reports an optimizer name outside the supported set.
var ErrUnknown = errors.New("unknown optimizer")

// Optimizer applies one update step to params in place. grads must be
// aligned with params, one matrix per parameter, same dimensions.
type Optimizer interface {
	Step(params, grads []*mat.Dense)
}

// Known reports whether name selects a supported optimizer. The empty
// name counts: it falls back to adam.
func Known(name string) bool {
	switch strings.ToLower(name) {
	case "", "adam", "sgd", "rmsprop", "adagrad":
		return true
	}
	return false
}

// New builds the named optimizer. The empty name selects adam.
func New(name string, lr float64) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "", "adam":
		return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}, nil
	case "sgd":
		return &sgd{lr: lr}, nil
	case "rmsprop":
		return &rmsprop{lr: lr, alpha: 0.99, eps: 1e-8}, nil
	case "adagrad":
		return &adagrad{lr: lr, eps: 1e-10}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}

// moments allocates zeroed state aligned with params.
func moments(params []*mat.Dense) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		r, c := p.Dims()
		out[i] = make([]float64, r*c)
	}
	return out
}

type sgd struct {
	lr float64
}

func (o *sgd) Step(params, grads []*mat.Dense) {
	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		for j := range pd {
			pd[j] -= o.lr * gd[j]
		}
	}
}

// adam keeps exponential moving averages of gradients and squared
// gradients with bias correction for the zero initialization.
type adam struct {
	lr, beta1, beta2, eps float64

	t    int
	m, v [][]float64
}

func (o *adam) Step(params, grads []*mat.Dense) {
	if o.m == nil {
		o.m = moments(params)
		o.v = moments(params)
	}
	o.t++
	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		for j := range pd {
			g := gd[j]
			o.m[i][j] = o.beta1*o.m[i][j] + (1-o.beta1)*g
			o.v[i][j] = o.beta2*o.v[i][j] + (1-o.beta2)*g*g
			mHat := o.m[i][j] / bias1
			vHat := o.v[i][j] / bias2
			pd[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
}

type rmsprop struct {
	lr, alpha, eps float64

	v [][]float64
}

func (o *rmsprop) Step(params, grads []*mat.Dense) {
	if o.v == nil {
		o.v = moments(params)
	}
	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		for j := range pd {
			g := gd[j]
			o.v[i][j] = o.alpha*o.v[i][j] + (1-o.alpha)*g*g
			pd[j] -= o.lr * g / (math.Sqrt(o.v[i][j]) + o.eps)
		}
	}
}

// adagrad accumulates squared gradients without decay, so effective step
// sizes shrink monotonically.
type adagrad struct {
	lr, eps float64

	sum [][]float64
}

func (o *adagrad) Step(params, grads []*mat.Dense) {
	if o.sum == nil {
		o.sum = moments(params)
	}
	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		for j := range pd {
			g := gd[j]
			o.sum[i][j] += g * g
			pd[j] -= o.lr * g / (math.Sqrt(o.sum[i][j]) + o.eps)
		}
	}
}
