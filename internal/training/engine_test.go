package training

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
)

type stubProvider struct {
	spec  dataset.Spec
	split *dataset.Split
	err   error
}

func (p *stubProvider) Spec() dataset.Spec { return p.spec }

func (p *stubProvider) Load(ctx context.Context, maxSamples int) (*dataset.Split, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.split, nil
}

func xorProvider(task dataset.TaskKind) *stubProvider {
	x := mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1})
	y := []float64{0, 1, 1, 0}
	arity := 2
	if task == dataset.TaskRegression {
		arity = 1
	}
	return &stubProvider{
		spec: dataset.Spec{
			ID:          "synthetic",
			Name:        "Synthetic XOR",
			Task:        task,
			InputShape:  []int{2},
			OutputArity: arity,
			NumSamples:  4,
		},
		split: &dataset.Split{
			XTrain: x,
			YTrain: y,
			XTest:  mat.DenseCopyOf(x),
			YTest:  append([]float64(nil), y...),
		},
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	metrics  []Metric
	statuses []Status
	fail     bool
}

func (r *fakeRecorder) SaveMetric(_ context.Context, _ string, m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	if r.fail {
		return errors.New("store down")
	}
	return nil
}

func (r *fakeRecorder) UpdateSessionStatus(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, snap.Status)
	if r.fail {
		return errors.New("store down")
	}
	return nil
}

func newTestEngine(t *testing.T, provider dataset.Provider, hp Hyperparameters, rec Recorder) (*Engine, *Session, *Control) {
	t.Helper()
	spec := provider.Spec()
	canonical, err := nn.Validate([]nn.Layer{
		{Kind: nn.KindInput},
		{Kind: nn.KindHidden, Neurons: 8, Activation: "tanh"},
		{Kind: nn.KindOutput},
	}, spec)
	if err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	session := NewSession("sess-"+t.Name(), "model-1", spec.ID, hp.Epochs)
	ctl := NewControl()
	eng := NewEngine(Config{
		SessionID: session.ID(),
		ModelID:   "model-1",
		Provider:  provider,
		Layers:    canonical,
		Hyper:     hp,
		Recorder:  rec,
	}, session, ctl)
	return eng, session, ctl
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunCompletes(t *testing.T) {
	hp := Hyperparameters{Epochs: 3, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, session, _ := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)

	eng.Run(context.Background())

	snap := session.Snapshot(0)
	if snap.Status != StatusCompleted {
		t.Fatalf("Status=%s, want completed (error: %s)", snap.Status, snap.ErrorMessage)
	}
	if len(snap.Metrics) != 3 {
		t.Fatalf("len(Metrics)=%d, want 3", len(snap.Metrics))
	}
	for i, m := range snap.Metrics {
		if m.Epoch != i+1 {
			t.Fatalf("metric %d epoch=%d, want %d", i, m.Epoch, i+1)
		}
		if m.Accuracy == nil || *m.Accuracy < 0 || *m.Accuracy > 1 {
			t.Fatalf("metric %d accuracy=%v, want in [0,1]", i, m.Accuracy)
		}
		if math.IsNaN(m.Loss) {
			t.Fatalf("metric %d loss is NaN", i)
		}
	}
	if snap.Progress != 1 {
		t.Fatalf("Progress=%v, want 1", snap.Progress)
	}
	if snap.EndTime == nil {
		t.Fatalf("EndTime=nil, want set")
	}

	pred, err := eng.Predict([]float64{1, 0})
	if err != nil {
		t.Fatalf("Predict() err=%v", err)
	}
	if len(pred.Probabilities) != 2 {
		t.Fatalf("len(Probabilities)=%d, want 2", len(pred.Probabilities))
	}
	var sum float64
	for _, p := range pred.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum=%v, want 1", sum)
	}
	if pred.Confidence != pred.Probabilities[pred.Class] {
		t.Fatalf("Confidence=%v, want probability of class %d", pred.Confidence, pred.Class)
	}

	if _, err := eng.Predict([]float64{1, 0, 0}); err == nil {
		t.Fatalf("Predict with wrong arity: err=nil, want validation error")
	}
}

func TestRunPredictionsAreReproducible(t *testing.T) {
	hp := Hyperparameters{Epochs: 2, LearningRate: 0.1, BatchSize: 4, Optimizer: "sgd"}
	eng, _, _ := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)
	eng.Run(context.Background())

	a, err := eng.Predict([]float64{0, 1})
	if err != nil {
		t.Fatalf("Predict() err=%v", err)
	}
	b, err := eng.Predict([]float64{0, 1})
	if err != nil {
		t.Fatalf("Predict() err=%v", err)
	}
	if a.Class != b.Class || a.Confidence != b.Confidence {
		t.Fatalf("predictions differ: %+v vs %+v", a, b)
	}
}

func TestRunFailsOnNumericBlowup(t *testing.T) {
	// A giant learning rate overflows the squared error on the second
	// epoch. Epoch 1 still records a finite metric first.
	hp := Hyperparameters{Epochs: 10, LearningRate: 1e308, BatchSize: 4, Optimizer: "sgd"}
	eng, session, _ := newTestEngine(t, xorProvider(dataset.TaskRegression), hp, nil)

	eng.Run(context.Background())

	snap := session.Snapshot(0)
	if snap.Status != StatusFailed {
		t.Fatalf("Status=%s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "NumericNaN") && !strings.Contains(snap.ErrorMessage, "Diverged") {
		t.Fatalf("ErrorMessage=%q, want NumericNaN or Diverged", snap.ErrorMessage)
	}
	if len(snap.Metrics) < 1 {
		t.Fatalf("len(Metrics)=%d, want >= 1", len(snap.Metrics))
	}

	if _, err := eng.Predict([]float64{0, 1}); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("Predict on failed session: err=%v, want ErrModelNotReady", err)
	}
}

func TestRunStopsBeforeFirstEpoch(t *testing.T) {
	hp := Hyperparameters{Epochs: 5, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, session, ctl := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)

	ctl.RequestStop()
	eng.Run(context.Background())

	snap := session.Snapshot(0)
	if snap.Status != StatusStopped {
		t.Fatalf("Status=%s, want stopped", snap.Status)
	}
	if len(snap.Metrics) != 0 {
		t.Fatalf("len(Metrics)=%d, want 0", len(snap.Metrics))
	}
}

func TestPauseHoldsEpochUntilStop(t *testing.T) {
	hp := Hyperparameters{Epochs: 100000, LearningRate: 0.1, BatchSize: 4, Optimizer: "sgd"}
	eng, session, ctl := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)

	ctl.RequestPause()
	done := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(done)
	}()

	waitFor(t, 5*time.Second, "paused status", func() bool {
		return session.Status() == StatusPaused
	})
	pausedAt := session.Snapshot(0).CurrentEpoch
	if pausedAt < 1 {
		t.Fatalf("CurrentEpoch=%d at pause, want >= 1", pausedAt)
	}

	time.Sleep(100 * time.Millisecond)
	snap := session.Snapshot(0)
	if snap.Status != StatusPaused {
		t.Fatalf("Status=%s, want still paused", snap.Status)
	}
	if snap.CurrentEpoch != pausedAt {
		t.Fatalf("CurrentEpoch advanced to %d while paused", snap.CurrentEpoch)
	}

	ctl.RequestStop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after stop")
	}

	snap = session.Snapshot(0)
	if snap.Status != StatusStopped {
		t.Fatalf("Status=%s, want stopped", snap.Status)
	}
	if snap.CurrentEpoch != pausedAt {
		t.Fatalf("CurrentEpoch=%d, want frozen at %d", snap.CurrentEpoch, pausedAt)
	}
	if snap.ErrorMessage != "Training stopped by user" {
		t.Fatalf("ErrorMessage=%q", snap.ErrorMessage)
	}
}

func TestPauseResumeRunsToCompletion(t *testing.T) {
	hp := Hyperparameters{Epochs: 3, LearningRate: 0.1, BatchSize: 2, Optimizer: "adam"}
	eng, session, ctl := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)

	ctl.RequestPause()
	done := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(done)
	}()

	waitFor(t, 5*time.Second, "paused status", func() bool {
		return session.Status() == StatusPaused
	})
	ctl.Resume()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not finish after resume")
	}

	snap := session.Snapshot(0)
	if snap.Status != StatusCompleted {
		t.Fatalf("Status=%s, want completed (error: %s)", snap.Status, snap.ErrorMessage)
	}
	if len(snap.Metrics) != 3 {
		t.Fatalf("len(Metrics)=%d, want 3", len(snap.Metrics))
	}
	for i := 1; i < len(snap.Metrics); i++ {
		if snap.Metrics[i].Epoch <= snap.Metrics[i-1].Epoch {
			t.Fatalf("epochs not strictly increasing: %d then %d", snap.Metrics[i-1].Epoch, snap.Metrics[i].Epoch)
		}
	}
}

func TestRecorderWriteThrough(t *testing.T) {
	rec := &fakeRecorder{}
	hp := Hyperparameters{Epochs: 2, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, _, _ := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, rec)

	eng.Run(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.metrics) != 2 {
		t.Fatalf("recorded metrics=%d, want 2", len(rec.metrics))
	}
	if len(rec.statuses) < 2 {
		t.Fatalf("recorded statuses=%d, want >= 2", len(rec.statuses))
	}
	if rec.statuses[0] != StatusRunning {
		t.Fatalf("first status=%s, want running", rec.statuses[0])
	}
	if last := rec.statuses[len(rec.statuses)-1]; last != StatusCompleted {
		t.Fatalf("last status=%s, want completed", last)
	}
}

func TestRecorderFailureDoesNotStopTraining(t *testing.T) {
	rec := &fakeRecorder{fail: true}
	hp := Hyperparameters{Epochs: 2, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, session, _ := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, rec)

	eng.Run(context.Background())

	if got := session.Status(); got != StatusCompleted {
		t.Fatalf("Status=%s, want completed despite recorder failures", got)
	}
}

func TestRunFailsWhenDatasetLoadFails(t *testing.T) {
	provider := xorProvider(dataset.TaskClassification)
	provider.err = errors.New("bucket unreachable")
	hp := Hyperparameters{Epochs: 2, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, session, _ := newTestEngine(t, provider, hp, nil)

	eng.Run(context.Background())

	snap := session.Snapshot(0)
	if snap.Status != StatusFailed {
		t.Fatalf("Status=%s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "UnexpectedInternal") {
		t.Fatalf("ErrorMessage=%q, want UnexpectedInternal", snap.ErrorMessage)
	}
}

func TestPredictBeforeRun(t *testing.T) {
	hp := Hyperparameters{Epochs: 2, LearningRate: 0.1, BatchSize: 4, Optimizer: "adam"}
	eng, _, _ := newTestEngine(t, xorProvider(dataset.TaskClassification), hp, nil)

	if _, err := eng.Predict([]float64{0, 1}); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("err=%v, want ErrModelNotReady", err)
	}
}

func TestHyperparametersValidate(t *testing.T) {
	good := Hyperparameters{Epochs: 5, LearningRate: 0.01, BatchSize: 16, Optimizer: "adam"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	cases := []struct {
		name string
		hp   Hyperparameters
	}{
		{"zero epochs", Hyperparameters{Epochs: 0, LearningRate: 0.01, BatchSize: 16, Optimizer: "adam"}},
		{"zero lr", Hyperparameters{Epochs: 5, LearningRate: 0, BatchSize: 16, Optimizer: "adam"}},
		{"nan lr", Hyperparameters{Epochs: 5, LearningRate: math.NaN(), BatchSize: 16, Optimizer: "adam"}},
		{"zero batch", Hyperparameters{Epochs: 5, LearningRate: 0.01, BatchSize: 0, Optimizer: "adam"}},
		{"unknown optimizer", Hyperparameters{Epochs: 5, LearningRate: 0.01, BatchSize: 16, Optimizer: "lbfgs"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.hp.Validate()
			var ve *nn.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err=%v, want *nn.ValidationError", err)
			}
			if ve.Kind != nn.InvalidHyperparameter {
				t.Fatalf("Kind=%s, want InvalidHyperparameter", ve.Kind)
			}
		})
	}
}

func TestCheckNumericFailure(t *testing.T) {
	cases := []struct {
		loss float64
		want string
	}{
		{0.5, ""},
		{999999, ""},
		{2e6, "Diverged"},
		{-2e6, "Diverged"},
		{math.NaN(), "NumericNaN"},
		{math.Inf(1), "NumericNaN"},
	}
	for _, tc := range cases {
		got := checkNumericFailure(tc.loss)
		if tc.want == "" && got != "" {
			t.Fatalf("checkNumericFailure(%v)=%q, want no failure", tc.loss, got)
		}
		if tc.want != "" && !strings.Contains(got, tc.want) {
			t.Fatalf("checkNumericFailure(%v)=%q, want %s", tc.loss, got, tc.want)
		}
	}
}
