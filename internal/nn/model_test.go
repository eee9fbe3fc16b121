package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
)

func compileOrFatal(t *testing.T, layers []Layer, spec dataset.Spec, seed int64) *CompiledModel {
	t.Helper()
	canonical, err := Validate(layers, spec)
	if err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	m, err := Compile(canonical, spec, seed)
	if err != nil {
		t.Fatalf("Compile() err=%v", err)
	}
	return m
}

func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	x := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	return x
}

// checkGradients compares every analytic parameter gradient against a
// central finite difference of the loss.
func checkGradients(t *testing.T, m *CompiledModel, x *mat.Dense, y []float64) {
	t.Helper()

	pred := m.Forward(x, true)
	m.Backward(m.LossGrad(pred, y))

	analytic := make([]*mat.Dense, len(m.Grads()))
	for k, g := range m.Grads() {
		analytic[k] = mat.DenseCopyOf(g)
	}

	const eps = 1e-6
	for k, p := range m.Params() {
		rows, cols := p.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				orig := p.At(i, j)
				p.Set(i, j, orig+eps)
				plus := m.Loss(m.Forward(x, false), y)
				p.Set(i, j, orig-eps)
				minus := m.Loss(m.Forward(x, false), y)
				p.Set(i, j, orig)

				numeric := (plus - minus) / (2 * eps)
				got := analytic[k].At(i, j)
				tol := 1e-5 * math.Max(1, math.Abs(numeric))
				if math.Abs(got-numeric) > tol {
					t.Fatalf("param %d entry (%d,%d): analytic=%g numeric=%g", k, i, j, got, numeric)
				}
			}
		}
	}
}

func TestDenseGradientsRegression(t *testing.T) {
	spec := dataset.Spec{ID: "reg", Task: dataset.TaskRegression, InputShape: []int{3}, OutputArity: 1}
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindHidden, Neurons: 4, Activation: "tanh"},
		{Kind: KindOutput},
	}, spec, 11)

	rng := rand.New(rand.NewSource(7))
	x := randomDense(rng, 5, 3)
	y := []float64{0.5, -1, 2, 0, 1.5}
	checkGradients(t, m, x, y)
}

func TestDenseGradientsClassification(t *testing.T) {
	spec := dataset.Spec{ID: "clf", Task: dataset.TaskClassification, InputShape: []int{3}, OutputArity: 3}
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindHidden, Neurons: 5, Activation: "sigmoid"},
		{Kind: KindOutput, Activation: "softmax"},
	}, spec, 11)

	rng := rand.New(rand.NewSource(9))
	x := randomDense(rng, 6, 3)
	y := []float64{0, 1, 2, 0, 1, 2}
	checkGradients(t, m, x, y)
}

func TestConvGradients(t *testing.T) {
	spec := dataset.Spec{ID: "img", Task: dataset.TaskClassification, InputShape: []int{4, 4, 1}, OutputArity: 2}
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindConv2D, Filters: 2, Kernel: 2, Activation: "tanh"},
		{Kind: KindFlatten},
		{Kind: KindOutput, Activation: "softmax"},
	}, spec, 13)

	rng := rand.New(rand.NewSource(5))
	x := randomDense(rng, 3, 16)
	y := []float64{0, 1, 0}
	checkGradients(t, m, x, y)
}

func TestCompileDeterministic(t *testing.T) {
	spec := tabularSpec()
	layers := []Layer{
		{Kind: KindInput},
		{Kind: KindHidden, Neurons: 8, Activation: "relu"},
		{Kind: KindOutput, Activation: "softmax"},
	}

	a := compileOrFatal(t, layers, spec, 42)
	b := compileOrFatal(t, layers, spec, 42)
	c := compileOrFatal(t, layers, spec, 43)

	rng := rand.New(rand.NewSource(1))
	x := randomDense(rng, 3, 4)

	pa, pb, pc := a.Forward(x, false), b.Forward(x, false), c.Forward(x, false)
	if !mat.EqualApprox(pa, pb, 0) {
		t.Fatalf("same seed produced different outputs")
	}
	if mat.EqualApprox(pa, pc, 1e-12) {
		t.Fatalf("different seeds produced identical outputs")
	}
}

func TestCompileConvStackShapes(t *testing.T) {
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindConv2D, Filters: 8, Kernel: 3, Activation: "relu"},
		{Kind: KindMaxPool2D, Pool: 2},
		{Kind: KindFlatten},
		{Kind: KindHidden, Neurons: 64, Activation: "relu"},
		{Kind: KindOutput, Activation: "softmax"},
	}, imageSpec(), 1)

	if got := len(m.Params()); got != 6 {
		t.Fatalf("len(Params)=%d, want 6 (conv w/b, hidden w/b, output w/b)", got)
	}

	x := mat.NewDense(2, 784, nil)
	out := m.Forward(x, false)
	rows, cols := out.Dims()
	if rows != 2 || cols != 10 {
		t.Fatalf("output dims=%dx%d, want 2x10", rows, cols)
	}

	// 28x28 conv k=3 -> 26x26x8, pool 2 -> 13x13x8 = 1352 into the first
	// dense layer.
	wr, _ := m.Params()[2].Dims()
	if wr != 1352 {
		t.Fatalf("hidden weight rows=%d, want 1352", wr)
	}
}

func TestCompileDenseOnImageInput(t *testing.T) {
	// MLP templates consume image datasets as flat vectors with no
	// explicit flatten layer.
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindHidden, Neurons: 128, Activation: "relu"},
		{Kind: KindOutput, Activation: "softmax"},
	}, imageSpec(), 1)

	x := mat.NewDense(1, 784, nil)
	out := m.Forward(x, false)
	if _, cols := out.Dims(); cols != 10 {
		t.Fatalf("output cols=%d, want 10", cols)
	}
}

func TestCompileRejectsBadShapes(t *testing.T) {
	img := imageSpec()

	// Pool larger than the plane collapses it to zero.
	_, err := Compile([]Layer{
		{Kind: KindInput, Neurons: 784},
		{Kind: KindMaxPool2D, Pool: 29},
		{Kind: KindFlatten},
		{Kind: KindOutput, Neurons: 10},
	}, img, 1)
	if !errors.Is(err, ErrCompilationFailed) {
		t.Fatalf("pool 29: err=%v, want ErrCompilationFailed", err)
	}

	// Conv after a dense layer has no spatial shape to consume.
	_, err = Compile([]Layer{
		{Kind: KindInput, Neurons: 784},
		{Kind: KindHidden, Neurons: 16, Activation: "relu"},
		{Kind: KindConv2D, Filters: 4, Kernel: 3},
		{Kind: KindFlatten},
		{Kind: KindOutput, Neurons: 10},
	}, img, 1)
	if !errors.Is(err, ErrCompilationFailed) {
		t.Fatalf("conv after dense: err=%v, want ErrCompilationFailed", err)
	}

	// Final width must match the dataset arity.
	_, err = Compile([]Layer{
		{Kind: KindInput, Neurons: 4},
		{Kind: KindOutput, Neurons: 5},
	}, tabularSpec(), 1)
	if !errors.Is(err, ErrCompilationFailed) {
		t.Fatalf("arity mismatch: err=%v, want ErrCompilationFailed", err)
	}
}

func TestTrainingReducesLossOnXOR(t *testing.T) {
	spec := dataset.Spec{ID: "synthetic", Task: dataset.TaskClassification, InputShape: []int{2}, OutputArity: 2}
	m := compileOrFatal(t, []Layer{
		{Kind: KindInput},
		{Kind: KindHidden, Neurons: 16, Activation: "tanh"},
		{Kind: KindOutput, Activation: "softmax"},
	}, spec, 3)

	x := mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1})
	y := []float64{0, 1, 1, 0}

	initial := m.Loss(m.Forward(x, false), y)
	for epoch := 0; epoch < 2000; epoch++ {
		pred := m.Forward(x, true)
		m.Backward(m.LossGrad(pred, y))
		for k, p := range m.Params() {
			g := m.Grads()[k]
			rows, cols := p.Dims()
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					p.Set(i, j, p.At(i, j)-0.5*g.At(i, j))
				}
			}
		}
	}
	final := m.Loss(m.Forward(x, false), y)

	if final >= initial {
		t.Fatalf("loss did not decrease: initial=%g final=%g", initial, final)
	}
	if final > 0.35 {
		t.Fatalf("final loss=%g, want <= 0.35", final)
	}
	for i, want := range y {
		probs := Softmax(m.Forward(x, false).RawRowView(i))
		if got := Argmax(probs); got != int(want) {
			t.Fatalf("sample %d predicted class %d, want %d", i, got, int(want))
		}
	}
}

func TestDropoutStage(t *testing.T) {
	d := &dropoutStage{rate: 0.5, rng: rand.New(rand.NewSource(1))}
	x := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			x.Set(i, j, 1)
		}
	}

	if out := d.forward(x, false); out != x {
		t.Fatalf("inference pass must be the identity")
	}

	out := d.forward(x, true)
	zeros, scaled := 0, 0
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			switch v := out.At(i, j); v {
			case 0:
				zeros++
			case 2:
				scaled++
			default:
				t.Fatalf("value=%v, want 0 or 2 (inverted scaling)", v)
			}
		}
	}
	if zeros == 0 || scaled == 0 {
		t.Fatalf("degenerate mask: zeros=%d scaled=%d", zeros, scaled)
	}

	grad := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			grad.Set(i, j, 1)
		}
	}
	back := d.backward(grad)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			if (out.At(i, j) == 0) != (back.At(i, j) == 0) {
				t.Fatalf("gradient mask mismatch at (%d,%d)", i, j)
			}
		}
	}
}

func TestMaxPoolRouting(t *testing.T) {
	s := &maxPoolStage{inH: 4, inW: 4, c: 1, pool: 2, outH: 2, outW: 2}
	x := mat.NewDense(1, 16, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})

	out := s.forward(x, true)
	want := []float64{6, 8, 14, 16}
	for j, w := range want {
		if got := out.At(0, j); got != w {
			t.Fatalf("out[%d]=%v, want %v", j, got, w)
		}
	}

	dx := s.backward(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	wantDx := make([]float64, 16)
	wantDx[5], wantDx[7], wantDx[13], wantDx[15] = 1, 2, 3, 4
	for j, w := range wantDx {
		if got := dx.At(0, j); got != w {
			t.Fatalf("dx[%d]=%v, want %v", j, got, w)
		}
	}
}

func TestSoftmaxStable(t *testing.T) {
	probs := Softmax([]float64{1000, 1001, 1002})
	var sum float64
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("probs=%v contains NaN/Inf", probs)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum=%v, want 1", sum)
	}
	if Argmax(probs) != 2 {
		t.Fatalf("Argmax=%d, want 2", Argmax(probs))
	}
}

func TestLossValues(t *testing.T) {
	clf := &CompiledModel{task: dataset.TaskClassification}

	loss := clf.Loss(mat.NewDense(1, 2, []float64{0, 0}), []float64{0})
	if math.Abs(loss-math.Ln2) > 1e-12 {
		t.Fatalf("uniform logits loss=%v, want ln 2", loss)
	}

	loss = clf.Loss(mat.NewDense(1, 2, []float64{1000, 0}), []float64{0})
	if math.IsNaN(loss) || loss > 1e-9 {
		t.Fatalf("confident correct loss=%v, want ~0", loss)
	}

	reg := &CompiledModel{task: dataset.TaskRegression}
	loss = reg.Loss(mat.NewDense(1, 1, []float64{2}), []float64{1})
	if loss != 1 {
		t.Fatalf("mse=%v, want 1", loss)
	}
	grad := reg.LossGrad(mat.NewDense(1, 1, []float64{2}), []float64{1})
	if got := grad.At(0, 0); got != 2 {
		t.Fatalf("mse grad=%v, want 2", got)
	}
}
