package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
)

// ErrCompilationFailed wraps parameter-shape inconsistencies that slipped
// past validation. Callers treat it like a validation failure.
var ErrCompilationFailed = errors.New("model compilation failed")

func compileErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCompilationFailed, fmt.Sprintf(format, args...))
}

// stage is one executable slice of the forward graph. Training passes
// record whatever backward needs; inference passes are stateless so they
// stay safe under concurrent prediction.
type stage interface {
	forward(x *mat.Dense, training bool) *mat.Dense
	backward(grad *mat.Dense) *mat.Dense
	params() []*mat.Dense
	grads() []*mat.Dense
}

// CompiledModel is an executable forward graph with initialized parameters
// and the loss pairing implied by the dataset's task kind: cross-entropy
// over logits for classification, mean squared error for regression.
type CompiledModel struct {
	task     dataset.TaskKind
	inWidth  int
	outWidth int
	stages   []stage
	paramSet []*mat.Dense
	gradSet  []*mat.Dense
}

// Compile turns a canonical architecture into a CompiledModel. Parameter
// initialization draws from a rand source seeded with seed, so equal seeds
// produce identical parameters. The declared output softmax is fused into
// the loss; the network itself emits logits.
func Compile(layers []Layer, spec dataset.Spec, seed int64) (*CompiledModel, error) {
	if len(layers) < 2 {
		return nil, compileErrorf("architecture has %d layers, need at least input and output", len(layers))
	}

	rng := rand.New(rand.NewSource(seed))
	m := &CompiledModel{task: spec.Task, inWidth: spec.NumFeatures()}

	// Shape threading: spatial until the first flatten, flat afterwards.
	// Rows are flat regardless; a dense layer that arrives before any
	// conv/pool has run simply consumes the image as a flat vector.
	spatial := spec.IsImage()
	spatialOps := false
	var h, w, c int
	width := spec.NumFeatures()
	if spatial {
		h, w, c = spec.InputShape[0], spec.InputShape[1], spec.InputShape[2]
	}

	for i, l := range layers {
		switch l.Kind {
		case KindInput:
			// Width already seeded from the dataset spec.
		case KindConv2D:
			if !spatial {
				return nil, compileErrorf("conv2d at position %d requires a spatial input, got flat width %d", i, width)
			}
			outH, outW := h-l.Kernel+1, w-l.Kernel+1
			if outH <= 0 || outW <= 0 {
				return nil, compileErrorf("conv2d kernel %d at position %d exceeds input %dx%d", l.Kernel, i, h, w)
			}
			m.stages = append(m.stages, newConv2DStage(rng, h, w, c, l.Filters, l.Kernel, l.Activation))
			h, w, c = outH, outW, l.Filters
			width = h * w * c
			spatialOps = true
		case KindMaxPool2D:
			if !spatial {
				return nil, compileErrorf("maxpool2d at position %d requires a spatial input", i)
			}
			outH, outW := h/l.Pool, w/l.Pool
			if outH <= 0 || outW <= 0 {
				return nil, compileErrorf("maxpool2d pool %d at position %d exceeds input %dx%d", l.Pool, i, h, w)
			}
			m.stages = append(m.stages, &maxPoolStage{inH: h, inW: w, c: c, pool: l.Pool, outH: outH, outW: outW})
			h, w = outH, outW
			width = h * w * c
			spatialOps = true
		case KindFlatten:
			// Data is stored row-major already; flatten only switches the
			// shape bookkeeping to flat.
			spatial = false
		case KindDropout:
			m.stages = append(m.stages, &dropoutStage{rate: l.Rate, rng: rand.New(rand.NewSource(seed + int64(i)))})
		case KindHidden:
			if spatial && spatialOps {
				return nil, compileErrorf("dense layer at position %d follows a spatial layer without a flatten", i)
			}
			spatial = false
			m.stages = append(m.stages, newDenseStage(rng, width, l.Neurons, l.Activation, false))
			width = l.Neurons
		case KindOutput:
			if spatial && spatialOps {
				return nil, compileErrorf("output layer at position %d follows a spatial layer without a flatten", i)
			}
			spatial = false
			logits := spec.Task == dataset.TaskClassification
			m.stages = append(m.stages, newDenseStage(rng, width, l.Neurons, l.Activation, logits))
			width = l.Neurons
		default:
			return nil, compileErrorf("unsupported layer kind %q at position %d", l.Kind, i)
		}
	}

	if width != spec.OutputArity {
		return nil, compileErrorf("network emits %d values, dataset %q expects %d", width, spec.ID, spec.OutputArity)
	}
	m.outWidth = width

	for _, s := range m.stages {
		m.paramSet = append(m.paramSet, s.params()...)
		m.gradSet = append(m.gradSet, s.grads()...)
	}
	return m, nil
}

// Forward evaluates the graph. Training passes keep dropout active and
// record per-stage state for Backward; inference passes touch no shared
// state and may run concurrently.
func (m *CompiledModel) Forward(x *mat.Dense, training bool) *mat.Dense {
	out := x
	for _, s := range m.stages {
		out = s.forward(out, training)
	}
	return out
}

// Backward propagates the loss gradient through the graph recorded by the
// preceding training-mode Forward, leaving parameter gradients in Grads.
func (m *CompiledModel) Backward(grad *mat.Dense) {
	for i := len(m.stages) - 1; i >= 0; i-- {
		grad = m.stages[i].backward(grad)
	}
}

// Params returns the trainable parameter matrices in graph order.
func (m *CompiledModel) Params() []*mat.Dense { return m.paramSet }

// Grads returns the gradient matrices aligned with Params.
func (m *CompiledModel) Grads() []*mat.Dense { return m.gradSet }

func (m *CompiledModel) Task() dataset.TaskKind { return m.task }
func (m *CompiledModel) InputWidth() int        { return m.inWidth }
func (m *CompiledModel) OutputWidth() int       { return m.outWidth }

// Loss computes the batch-average loss. For classification pred holds
// logits and targets class indices; the cross-entropy uses the log-sum-exp
// form so declared softmax outputs are never applied twice. For regression
// pred holds scalars and the loss is mean squared error.
func (m *CompiledModel) Loss(pred *mat.Dense, targets []float64) float64 {
	rows, cols := pred.Dims()
	if m.task == dataset.TaskClassification {
		var sum float64
		for i := 0; i < rows; i++ {
			max := pred.At(i, 0)
			for j := 1; j < cols; j++ {
				if v := pred.At(i, j); v > max {
					max = v
				}
			}
			var expSum float64
			for j := 0; j < cols; j++ {
				expSum += math.Exp(pred.At(i, j) - max)
			}
			sum += max + math.Log(expSum) - pred.At(i, int(targets[i]))
		}
		return sum / float64(rows)
	}

	var sum float64
	for i := 0; i < rows; i++ {
		d := pred.At(i, 0) - targets[i]
		sum += d * d
	}
	return sum / float64(rows)
}

// LossGrad computes the gradient of Loss with respect to pred.
func (m *CompiledModel) LossGrad(pred *mat.Dense, targets []float64) *mat.Dense {
	rows, cols := pred.Dims()
	grad := mat.NewDense(rows, cols, nil)
	inv := 1 / float64(rows)

	if m.task == dataset.TaskClassification {
		for i := 0; i < rows; i++ {
			row := make([]float64, cols)
			for j := 0; j < cols; j++ {
				row[j] = pred.At(i, j)
			}
			softmaxRows(1, cols, row)
			for j := 0; j < cols; j++ {
				g := row[j]
				if j == int(targets[i]) {
					g -= 1
				}
				grad.Set(i, j, g*inv)
			}
		}
		return grad
	}

	for i := 0; i < rows; i++ {
		grad.Set(i, 0, 2*(pred.At(i, 0)-targets[i])*inv)
	}
	return grad
}

// Softmax returns the probability distribution for one row of logits.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	copy(out, logits)
	softmaxRows(1, len(out), out)
	return out
}

// Argmax returns the index of the largest value.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
