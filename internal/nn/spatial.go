package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// conv2dStage is a 2D convolution over channel-last rows, valid padding,
// stride 1. A pixel lives at index (y*inW+x)*inC+c of its row and a weight
// at row (ky*kernel+kx)*inC+c, column f of the kernel matrix.
type conv2dStage struct {
	inH, inW, inC int
	filters       int
	kernel        int
	outH, outW    int
	name          string
	act           activation

	w, b   *mat.Dense
	gw, gb *mat.Dense

	lastX *mat.Dense
	lastZ *mat.Dense
}

func newConv2DStage(rng *rand.Rand, inH, inW, inC, filters, kernel int, name string) *conv2dStage {
	if name == "" {
		name = "linear"
	}
	fanIn := kernel * kernel * inC
	limit := xavierUniformLimit(fanIn, kernel*kernel*filters)
	if reluFamily(name) {
		limit = heUniformLimit(fanIn)
	}

	w := mat.NewDense(fanIn, filters, nil)
	data := w.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}

	return &conv2dStage{
		inH: inH, inW: inW, inC: inC,
		filters: filters,
		kernel:  kernel,
		outH:    inH - kernel + 1,
		outW:    inW - kernel + 1,
		name:    name,
		act:     activations[name],
		w:       w,
		b:       mat.NewDense(1, filters, nil),
		gw:      mat.NewDense(fanIn, filters, nil),
		gb:      mat.NewDense(1, filters, nil),
	}
}

func (s *conv2dStage) forward(x *mat.Dense, training bool) *mat.Dense {
	rows, _ := x.Dims()
	z := mat.NewDense(rows, s.outH*s.outW*s.filters, nil)
	for i := 0; i < rows; i++ {
		in := x.RawRowView(i)
		out := z.RawRowView(i)
		for oy := 0; oy < s.outH; oy++ {
			for ox := 0; ox < s.outW; ox++ {
				base := (oy*s.outW + ox) * s.filters
				for f := 0; f < s.filters; f++ {
					sum := s.b.At(0, f)
					for ky := 0; ky < s.kernel; ky++ {
						for kx := 0; kx < s.kernel; kx++ {
							for c := 0; c < s.inC; c++ {
								pix := in[((oy+ky)*s.inW+ox+kx)*s.inC+c]
								sum += pix * s.w.At((ky*s.kernel+kx)*s.inC+c, f)
							}
						}
					}
					out[base+f] = sum
				}
			}
		}
	}

	a := z
	if s.name != "linear" {
		a = mat.DenseCopyOf(z)
		raw := a.RawMatrix()
		for i := range raw.Data {
			raw.Data[i] = s.act.apply(raw.Data[i])
		}
	}
	if training {
		s.lastX = x
		s.lastZ = z
	}
	return a
}

func (s *conv2dStage) backward(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()
	s.gw.Zero()
	s.gb.Zero()
	dx := mat.NewDense(rows, s.inH*s.inW*s.inC, nil)

	for i := 0; i < rows; i++ {
		in := s.lastX.RawRowView(i)
		dIn := dx.RawRowView(i)
		for oy := 0; oy < s.outH; oy++ {
			for ox := 0; ox < s.outW; ox++ {
				base := (oy*s.outW + ox) * s.filters
				for f := 0; f < s.filters; f++ {
					dz := grad.At(i, base+f)
					if s.name != "linear" {
						dz *= s.act.deriv(s.lastZ.At(i, base+f))
					}
					if dz == 0 {
						continue
					}
					s.gb.Set(0, f, s.gb.At(0, f)+dz)
					for ky := 0; ky < s.kernel; ky++ {
						for kx := 0; kx < s.kernel; kx++ {
							for c := 0; c < s.inC; c++ {
								pixIdx := ((oy+ky)*s.inW + ox + kx) * s.inC
								wRow := (ky*s.kernel+kx)*s.inC + c
								s.gw.Set(wRow, f, s.gw.At(wRow, f)+in[pixIdx+c]*dz)
								dIn[pixIdx+c] += s.w.At(wRow, f) * dz
							}
						}
					}
				}
			}
		}
	}
	return dx
}

func (s *conv2dStage) params() []*mat.Dense { return []*mat.Dense{s.w, s.b} }
func (s *conv2dStage) grads() []*mat.Dense  { return []*mat.Dense{s.gw, s.gb} }

// maxPoolStage downsamples each channel plane with non-overlapping windows
// (stride equals pool size). Backward routes gradients to the argmax of
// each window recorded during the training forward pass.
type maxPoolStage struct {
	inH, inW, c int
	pool        int
	outH, outW  int

	argmax []int
}

func (s *maxPoolStage) forward(x *mat.Dense, training bool) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, s.outH*s.outW*s.c, nil)
	if training {
		s.argmax = make([]int, rows*s.outH*s.outW*s.c)
	}

	for i := 0; i < rows; i++ {
		in := x.RawRowView(i)
		dst := out.RawRowView(i)
		for oy := 0; oy < s.outH; oy++ {
			for ox := 0; ox < s.outW; ox++ {
				for c := 0; c < s.c; c++ {
					best := math.Inf(-1)
					bestIdx := 0
					for py := 0; py < s.pool; py++ {
						for px := 0; px < s.pool; px++ {
							idx := ((oy*s.pool+py)*s.inW+ox*s.pool+px)*s.c + c
							if in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					outIdx := (oy*s.outW+ox)*s.c + c
					dst[outIdx] = best
					if training {
						s.argmax[i*s.outH*s.outW*s.c+outIdx] = bestIdx
					}
				}
			}
		}
	}
	return out
}

func (s *maxPoolStage) backward(grad *mat.Dense) *mat.Dense {
	rows, cols := grad.Dims()
	dx := mat.NewDense(rows, s.inH*s.inW*s.c, nil)
	for i := 0; i < rows; i++ {
		src := grad.RawRowView(i)
		dst := dx.RawRowView(i)
		for j := 0; j < cols; j++ {
			dst[s.argmax[i*cols+j]] += src[j]
		}
	}
	return dx
}

func (s *maxPoolStage) params() []*mat.Dense { return nil }
func (s *maxPoolStage) grads() []*mat.Dense  { return nil }
