package training

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
	"github.com/xingyi1145/Neural-Network-Playground/internal/optimizer"
	"github.com/xingyi1145/Neural-Network-Playground/internal/parallel"
)

// ErrModelNotReady means Predict was called before the session completed.
var ErrModelNotReady = errors.New("model not trained")

// divergenceThreshold is the absolute epoch loss beyond which training is
// declared diverged.
const divergenceThreshold = 1e6

// Hyperparameters are the resolved training knobs for one session. The
// manager fills unset request fields from the dataset's recommendations
// before validation.
type Hyperparameters struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	Optimizer    string  `json:"optimizer"`
}

// Validate rejects non-positive knobs and unknown optimizer names.
func (h Hyperparameters) Validate() error {
	if h.Epochs < 1 {
		return &nn.ValidationError{Kind: nn.InvalidHyperparameter, Detail: fmt.Sprintf("epochs must be >= 1 (got %d)", h.Epochs)}
	}
	if !(h.LearningRate > 0) {
		return &nn.ValidationError{Kind: nn.InvalidHyperparameter, Detail: fmt.Sprintf("learning_rate must be > 0 (got %v)", h.LearningRate)}
	}
	if h.BatchSize < 1 {
		return &nn.ValidationError{Kind: nn.InvalidHyperparameter, Detail: fmt.Sprintf("batch_size must be >= 1 (got %d)", h.BatchSize)}
	}
	if !optimizer.Known(h.Optimizer) {
		return &nn.ValidationError{Kind: nn.InvalidHyperparameter, Detail: fmt.Sprintf("unsupported optimizer %q (use adam, sgd, rmsprop or adagrad)", h.Optimizer)}
	}
	return nil
}

// Recorder receives write-through persistence of metrics and status
// transitions. Recorder failures are logged and never interrupt training.
type Recorder interface {
	SaveMetric(ctx context.Context, sessionID string, m Metric) error
	UpdateSessionStatus(ctx context.Context, snap Snapshot) error
}

// Prediction is the model output for one input row.
type Prediction struct {
	Task          dataset.TaskKind
	Value         float64
	Class         int
	Probabilities []float64
	Confidence    float64
}

// Config carries everything one training run needs up front. Layers must
// already be in canonical validated form.
type Config struct {
	SessionID       string
	ModelID         string
	Provider        dataset.Provider
	Layers          []nn.Layer
	Hyper           Hyperparameters
	MaxSamples      int
	EvalParallelism int
	Logger          *slog.Logger
	Recorder        Recorder
}

// Engine owns one training loop. Run executes it to a terminal status;
// Predict serves the trained parameters afterwards.
type Engine struct {
	cfg     Config
	session *Session
	ctl     *Control
	logger  *slog.Logger

	mu     sync.RWMutex
	model  *nn.CompiledModel
	scaler *dataset.Scaler
}

func NewEngine(cfg Config, session *Session, ctl *Control) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.EvalParallelism <= 0 {
		cfg.EvalParallelism = parallel.DefaultLimit()
	}
	return &Engine{cfg: cfg, session: session, ctl: ctl, logger: logger}
}

// Run drives the session to a terminal status. Runtime failures never
// escape: they land in the session's error_message with status failed.
func (e *Engine) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.finish(ctx, StatusFailed, fmt.Sprintf("UnexpectedInternal: %v", r))
		}
	}()

	if e.ctl.StopRequested() {
		e.finish(ctx, StatusStopped, "Training stopped by user")
		return
	}

	e.session.MarkRunning()
	e.recordStatus(ctx)

	spec := e.cfg.Provider.Spec()
	split, err := e.cfg.Provider.Load(ctx, e.cfg.MaxSamples)
	if err != nil {
		e.finish(ctx, StatusFailed, "UnexpectedInternal: "+err.Error())
		return
	}

	seed := seedFromID(e.cfg.SessionID)
	model, err := nn.Compile(e.cfg.Layers, spec, seed)
	if err != nil {
		e.finish(ctx, StatusFailed, "UnexpectedInternal: "+err.Error())
		return
	}
	opt, err := optimizer.New(e.cfg.Hyper.Optimizer, e.cfg.Hyper.LearningRate)
	if err != nil {
		e.finish(ctx, StatusFailed, "UnexpectedInternal: "+err.Error())
		return
	}

	e.logger.Info("training session started",
		"session_id", e.cfg.SessionID,
		"model_id", e.cfg.ModelID,
		"dataset_id", spec.ID,
		"epochs", e.cfg.Hyper.Epochs,
		"learning_rate", e.cfg.Hyper.LearningRate,
		"batch_size", e.cfg.Hyper.BatchSize,
		"optimizer", e.cfg.Hyper.Optimizer,
	)

	rng := rand.New(rand.NewSource(seed))
	for epoch := 1; epoch <= e.cfg.Hyper.Epochs; epoch++ {
		if e.ctl.StopRequested() {
			e.finish(ctx, StatusStopped, "Training stopped by user")
			return
		}

		e.session.SetCurrentEpoch(epoch)
		avgLoss := trainOneEpoch(model, opt, split, rng, e.cfg.Hyper.BatchSize)

		var accuracy *float64
		if spec.Task == dataset.TaskClassification {
			acc := e.evaluate(model, split)
			accuracy = &acc
		}
		metric := Metric{Epoch: epoch, Loss: avgLoss, Accuracy: accuracy, Timestamp: time.Now().UTC()}
		e.session.AppendMetric(metric)
		e.recordMetric(ctx, metric)

		if msg := checkNumericFailure(avgLoss); msg != "" {
			e.finish(ctx, StatusFailed, msg)
			return
		}

		paused := func() {
			e.session.MarkPaused()
			e.recordStatus(ctx)
		}
		resumed := func() {
			e.session.MarkRunning()
			e.recordStatus(ctx)
		}
		if e.ctl.WaitWhilePaused(paused, resumed) {
			e.finish(ctx, StatusStopped, "Training stopped by user")
			return
		}
	}

	// Publish the trained model before the terminal transition so a
	// poller that sees completed can immediately predict.
	e.mu.Lock()
	e.model = model
	e.scaler = split.Scaler
	e.mu.Unlock()

	e.finish(ctx, StatusCompleted, "")
}

// Predict runs the trained model on one raw input row, applying the same
// preprocessing the training data went through.
func (e *Engine) Predict(input []float64) (*Prediction, error) {
	e.mu.RLock()
	model, scaler := e.model, e.scaler
	e.mu.RUnlock()

	if model == nil {
		return nil, ErrModelNotReady
	}
	if len(input) != model.InputWidth() {
		return nil, &nn.ValidationError{
			Kind:   nn.InvalidHyperparameter,
			Detail: fmt.Sprintf("prediction input has %d features, model expects %d", len(input), model.InputWidth()),
		}
	}
	row, err := scaler.TransformRow(input)
	if err != nil {
		return nil, &nn.ValidationError{Kind: nn.InvalidHyperparameter, Detail: err.Error()}
	}

	out := model.Forward(mat.NewDense(1, len(row), row), false)
	if model.Task() == dataset.TaskClassification {
		probs := nn.Softmax(out.RawRowView(0))
		class := nn.Argmax(probs)
		return &Prediction{
			Task:          dataset.TaskClassification,
			Class:         class,
			Probabilities: probs,
			Confidence:    probs[class],
		}, nil
	}
	return &Prediction{Task: dataset.TaskRegression, Value: out.At(0, 0)}, nil
}

func (e *Engine) finish(ctx context.Context, status Status, msg string) {
	e.session.Finish(status, msg)
	e.recordStatus(ctx)
	e.logger.Info("training session finished",
		"session_id", e.cfg.SessionID,
		"status", string(e.session.Status()),
		"error_message", msg,
	)
}

func (e *Engine) recordStatus(ctx context.Context) {
	if e.cfg.Recorder == nil {
		return
	}
	if err := e.cfg.Recorder.UpdateSessionStatus(ctx, e.session.Snapshot(0)); err != nil {
		e.logger.Warn("session status write-through failed", "session_id", e.cfg.SessionID, "error", err)
	}
}

func (e *Engine) recordMetric(ctx context.Context, m Metric) {
	if e.cfg.Recorder == nil {
		return
	}
	if err := e.cfg.Recorder.SaveMetric(ctx, e.cfg.SessionID, m); err != nil {
		e.logger.Warn("metric write-through failed", "session_id", e.cfg.SessionID, "epoch", m.Epoch, "error", err)
	}
}

// trainOneEpoch runs one shuffled pass of mini-batch gradient descent and
// returns the sample-weighted average loss.
func trainOneEpoch(model *nn.CompiledModel, opt optimizer.Optimizer, split *dataset.Split, rng *rand.Rand, batchSize int) float64 {
	rows, cols := split.XTrain.Dims()
	perm := rng.Perm(rows)

	var running float64
	for start := 0; start < rows; start += batchSize {
		end := min(start+batchSize, rows)
		bx := mat.NewDense(end-start, cols, nil)
		by := make([]float64, end-start)
		for bi, ri := range perm[start:end] {
			bx.SetRow(bi, split.XTrain.RawRowView(ri))
			by[bi] = split.YTrain[ri]
		}

		pred := model.Forward(bx, true)
		loss := model.Loss(pred, by)
		model.Backward(model.LossGrad(pred, by))
		opt.Step(model.Params(), model.Grads())

		running += loss * float64(end-start)
	}
	return running / float64(rows)
}

// evaluate computes top-1 accuracy over the held-out test slice. Inference
// passes are stateless, so chunks run in parallel.
func (e *Engine) evaluate(model *nn.CompiledModel, split *dataset.Split) float64 {
	rows, cols := split.XTest.Dims()
	if rows == 0 {
		return 0
	}

	var correct atomic.Int64
	parallel.Chunks(rows, e.cfg.EvalParallelism, func(start, end int) {
		bx := mat.NewDense(end-start, cols, nil)
		for bi := 0; bi < end-start; bi++ {
			bx.SetRow(bi, split.XTest.RawRowView(start+bi))
		}
		pred := model.Forward(bx, false)

		var n int64
		for i := 0; i < end-start; i++ {
			if nn.Argmax(pred.RawRowView(i)) == int(split.YTest[start+i]) {
				n++
			}
		}
		correct.Add(n)
	})
	return float64(correct.Load()) / float64(rows)
}

// checkNumericFailure classifies a bad epoch loss. NaN/Inf outranks
// divergence; stagnation is allowed and never fails a session.
func checkNumericFailure(loss float64) string {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return fmt.Sprintf("NumericNaN: epoch loss is %v", loss)
	}
	if math.Abs(loss) > divergenceThreshold {
		return fmt.Sprintf("Diverged: epoch loss %.6g exceeds %.0g", loss, float64(divergenceThreshold))
	}
	return ""
}

func seedFromID(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64())
}
