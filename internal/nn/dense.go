package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// denseStage is a fully connected layer: out = act(x*w + b). When
// outputLogits is set the activation is skipped on the way out and backward
// passes the incoming gradient straight through, so the loss owns the
// softmax for classification heads.
type denseStage struct {
	in, out      int
	name         string
	act          activation
	outputLogits bool

	w, b   *mat.Dense
	gw, gb *mat.Dense

	// Training-pass state.
	lastX *mat.Dense
	lastZ *mat.Dense
	lastA *mat.Dense
}

func newDenseStage(rng *rand.Rand, in, out int, name string, outputLogits bool) *denseStage {
	if name == "" {
		name = "linear"
	}
	limit := xavierUniformLimit(in, out)
	if reluFamily(name) {
		limit = heUniformLimit(in)
	}

	w := mat.NewDense(in, out, nil)
	data := w.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}

	return &denseStage{
		in:           in,
		out:          out,
		name:         name,
		act:          activations[name],
		outputLogits: outputLogits,
		w:            w,
		b:            mat.NewDense(1, out, nil),
		gw:           mat.NewDense(in, out, nil),
		gb:           mat.NewDense(1, out, nil),
	}
}

func (d *denseStage) forward(x *mat.Dense, training bool) *mat.Dense {
	rows, _ := x.Dims()
	z := mat.NewDense(rows, d.out, nil)
	z.Mul(x, d.w)
	for i := 0; i < rows; i++ {
		for j := 0; j < d.out; j++ {
			z.Set(i, j, z.At(i, j)+d.b.At(0, j))
		}
	}

	a := z
	if !d.outputLogits && d.name != "linear" {
		a = mat.DenseCopyOf(z)
		if d.name == "softmax" {
			raw := a.RawMatrix()
			softmaxRows(rows, d.out, raw.Data)
		} else {
			raw := a.RawMatrix()
			for i := range raw.Data {
				raw.Data[i] = d.act.apply(raw.Data[i])
			}
		}
	}

	if training {
		d.lastX = x
		d.lastZ = z
		d.lastA = a
	}
	return a
}

func (d *denseStage) backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()

	dz := grad
	switch {
	case d.outputLogits || d.name == "linear":
		// Gradient already with respect to z.
	case d.name == "softmax":
		// Hidden softmax: diagonal Jacobian approximation a*(1-a).
		dz = mat.NewDense(rows, d.out, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < d.out; j++ {
				a := d.lastA.At(i, j)
				dz.Set(i, j, grad.At(i, j)*a*(1-a))
			}
		}
	default:
		dz = mat.NewDense(rows, d.out, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < d.out; j++ {
				dz.Set(i, j, grad.At(i, j)*d.act.deriv(d.lastZ.At(i, j)))
			}
		}
	}

	d.gw.Mul(d.lastX.T(), dz)
	for j := 0; j < d.out; j++ {
		var sum float64
		for i := 0; i < rows; i++ {
			sum += dz.At(i, j)
		}
		d.gb.Set(0, j, sum)
	}

	dx := mat.NewDense(rows, d.in, nil)
	dx.Mul(dz, d.w.T())
	return dx
}

func (d *denseStage) params() []*mat.Dense { return []*mat.Dense{d.w, d.b} }
func (d *denseStage) grads() []*mat.Dense  { return []*mat.Dense{d.gw, d.gb} }

// dropoutStage zeroes activations with probability rate during training
// and scales survivors by 1/(1-rate), so inference needs no adjustment and
// is the identity.
type dropoutStage struct {
	rate float64
	rng  *rand.Rand
	mask *mat.Dense
}

func (d *dropoutStage) forward(x *mat.Dense, training bool) *mat.Dense {
	if !training || d.rate == 0 {
		return x
	}
	rows, cols := x.Dims()
	scale := 1 / (1 - d.rate)
	d.mask = mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if d.rng.Float64() >= d.rate {
				d.mask.Set(i, j, scale)
				out.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	return out
}

func (d *dropoutStage) backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	rows, cols := grad.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, grad.At(i, j)*d.mask.At(i, j))
		}
	}
	return out
}

func (d *dropoutStage) params() []*mat.Dense { return nil }
func (d *dropoutStage) grads() []*mat.Dense  { return nil }
