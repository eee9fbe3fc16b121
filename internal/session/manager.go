// Package session orchestrates training sessions: it admits requests,
// hands them to a bounded worker pool, exposes pause/resume/stop control
// and serves polled status snapshots, falling back to persisted history
// for sessions that have been evicted from memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
	"github.com/xingyi1145/Neural-Network-Playground/internal/training"
)

var (
	// ErrModelNotFound means the referenced model config does not exist.
	ErrModelNotFound = errors.New("model not found")
	// ErrSessionNotFound means neither memory nor the store knows the id.
	ErrSessionNotFound = errors.New("training session not found")
	// ErrActiveSessionExists rejects a second concurrent session for a model.
	ErrActiveSessionExists = errors.New("model already has an active training session")
	// ErrIllegalTransition rejects a control action the current status
	// does not admit, such as pausing a pending session.
	ErrIllegalTransition = errors.New("illegal session transition")
	// ErrSessionNotReady rejects predictions before the session completed.
	ErrSessionNotReady = errors.New("session has no trained model")
)

// Store is the optional write-through persistence behind the manager.
// LoadSession reports found=false for unknown ids; errors are reserved
// for infrastructure failures. Implementations must be safe for
// concurrent use.
type Store interface {
	training.Recorder
	SaveSession(ctx context.Context, snap training.Snapshot) error
	LoadSession(ctx context.Context, sessionID string, sinceEpoch int) (training.Snapshot, bool, error)
}

// StartOptions carries the per-request training knobs. Nil pointer
// fields fall back to the dataset's recommended defaults.
type StartOptions struct {
	Epochs       *int
	LearningRate *float64
	BatchSize    *int
	Optimizer    string
	MaxSamples   int
}

// Options configures a Manager.
type Options struct {
	Logger   *slog.Logger
	Registry *dataset.Registry
	Store    Store
	// Workers is the number of concurrent training loops; queued
	// sessions stay pending in FIFO order until a worker frees up.
	Workers int
	// QueueDepth bounds the pending backlog before StartTraining blocks.
	QueueDepth int
	// Retention caps how many terminal sessions stay resident; the
	// least recently polled ones are evicted first.
	Retention int
	// EvalParallelism is forwarded to every engine's evaluation pass.
	EvalParallelism int
}

const (
	defaultRetention  = 64
	defaultQueueDepth = 512
)

type entry struct {
	session    *training.Session
	engine     *training.Engine
	control    *training.Control
	modelID    string
	lastAccess time.Time
}

// Manager owns the live session table. Engines own session status; the
// manager only ever signals them through their controls.
type Manager struct {
	logger    *slog.Logger
	registry  *dataset.Registry
	store     Store
	pool      *pool
	retention int
	evalLimit int

	mu       sync.Mutex
	sessions map[string]*entry
	byModel  map[string]string
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	depth := opts.QueueDepth
	if depth < 1 {
		depth = defaultQueueDepth
	}
	retention := opts.Retention
	if retention < 1 {
		retention = defaultRetention
	}
	return &Manager{
		logger:    logger,
		registry:  opts.Registry,
		store:     opts.Store,
		pool:      newPool(workers, depth),
		retention: retention,
		evalLimit: opts.EvalParallelism,
		sessions:  make(map[string]*entry),
		byModel:   make(map[string]string),
	}
}

// StartTraining validates the request, reserves the model and queues the
// session. The returned snapshot is pending; callers poll for progress.
func (m *Manager) StartTraining(ctx context.Context, modelID, datasetID string, layers []nn.Layer, opts StartOptions) (training.Snapshot, error) {
	provider, err := m.registry.Get(datasetID)
	if err != nil {
		return training.Snapshot{}, err
	}
	spec := provider.Spec()

	canonical, err := nn.Validate(layers, spec)
	if err != nil {
		return training.Snapshot{}, err
	}
	hp := resolveHyperparameters(spec.Recommended, opts)
	if err := hp.Validate(); err != nil {
		return training.Snapshot{}, err
	}
	// Compile once up front so shape mismatches surface on the request
	// instead of failing the session asynchronously.
	if _, err := nn.Compile(canonical, spec, 1); err != nil {
		return training.Snapshot{}, err
	}

	sessionID := uuid.NewString()
	sess := training.NewSession(sessionID, modelID, datasetID, hp.Epochs)
	ctl := training.NewControl()
	eng := training.NewEngine(training.Config{
		SessionID:       sessionID,
		ModelID:         modelID,
		Provider:        provider,
		Layers:          canonical,
		Hyper:           hp,
		MaxSamples:      opts.MaxSamples,
		EvalParallelism: m.evalLimit,
		Logger:          m.logger,
		Recorder:        m.store,
	}, sess, ctl)

	m.mu.Lock()
	if runningID, ok := m.byModel[modelID]; ok {
		m.mu.Unlock()
		return training.Snapshot{}, fmt.Errorf("%w: model %q is busy with session %q", ErrActiveSessionExists, modelID, runningID)
	}
	m.sessions[sessionID] = &entry{
		session:    sess,
		engine:     eng,
		control:    ctl,
		modelID:    modelID,
		lastAccess: time.Now(),
	}
	m.byModel[modelID] = sessionID
	m.mu.Unlock()

	snap := sess.Snapshot(0)
	if m.store != nil {
		if err := m.store.SaveSession(ctx, snap); err != nil {
			m.logger.Warn("session write-through failed", "session_id", sessionID, "error", err)
		}
	}

	m.pool.submit(func() {
		eng.Run(context.Background())
		m.afterRun(modelID, sessionID)
	})

	m.logger.Info("training session queued",
		"session_id", sessionID,
		"model_id", modelID,
		"dataset_id", datasetID,
		"epochs", hp.Epochs,
	)
	return snap, nil
}

// afterRun releases the model reservation and prunes old terminal
// sessions once a training loop returns.
func (m *Manager) afterRun(modelID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byModel[modelID] == sessionID {
		delete(m.byModel, modelID)
	}
	m.evictLocked()
}

// evictLocked drops the least recently polled terminal sessions beyond
// the retention cap. Live sessions are never evicted.
func (m *Manager) evictLocked() {
	var terminal []*struct {
		id   string
		last time.Time
	}
	for id, e := range m.sessions {
		if e.session.Status().Terminal() {
			terminal = append(terminal, &struct {
				id   string
				last time.Time
			}{id, e.lastAccess})
		}
	}
	excess := len(terminal) - m.retention
	if excess <= 0 {
		return
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].last.Before(terminal[j].last) })
	for _, t := range terminal[:excess] {
		delete(m.sessions, t.id)
		m.logger.Debug("evicted terminal session", "session_id", t.id)
	}
}

func (m *Manager) liveEntry(sessionID string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if ok {
		e.lastAccess = time.Now()
	}
	return e, ok
}

// GetSession returns the freshest snapshot for the id, reading through
// to the store for sessions no longer resident.
func (m *Manager) GetSession(ctx context.Context, sessionID string, sinceEpoch int) (training.Snapshot, error) {
	if e, ok := m.liveEntry(sessionID); ok {
		return e.session.Snapshot(sinceEpoch), nil
	}
	if m.store != nil {
		snap, found, err := m.store.LoadSession(ctx, sessionID, sinceEpoch)
		if err != nil {
			m.logger.Warn("session store read failed", "session_id", sessionID, "error", err)
		} else if found {
			return snap, nil
		}
	}
	return training.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// Stop requests a graceful stop. Stopping a session that already reached
// a terminal status is a no-op, including one only the store remembers.
func (m *Manager) Stop(ctx context.Context, sessionID string) (training.Snapshot, error) {
	e, ok := m.liveEntry(sessionID)
	if !ok {
		return m.GetSession(ctx, sessionID, 0)
	}
	if !e.session.Status().Terminal() {
		e.control.RequestStop()
	}
	return e.session.Snapshot(0), nil
}

// Pause requests a pause at the next epoch boundary. Pausing an already
// paused session is a no-op; any other non-running status is rejected.
func (m *Manager) Pause(ctx context.Context, sessionID string) (training.Snapshot, error) {
	e, ok := m.liveEntry(sessionID)
	if !ok {
		if _, err := m.GetSession(ctx, sessionID, 0); err != nil {
			return training.Snapshot{}, err
		}
		return training.Snapshot{}, fmt.Errorf("%w: cannot pause a finished session", ErrIllegalTransition)
	}
	switch st := e.session.Status(); st {
	case training.StatusRunning:
		e.control.RequestPause()
	case training.StatusPaused:
		// Already paused; report current state.
	default:
		return training.Snapshot{}, fmt.Errorf("%w: cannot pause a %s session", ErrIllegalTransition, st)
	}
	return e.session.Snapshot(0), nil
}

// Resume lifts a pause. Resuming a running session is a no-op; any other
// non-paused status is rejected.
func (m *Manager) Resume(ctx context.Context, sessionID string) (training.Snapshot, error) {
	e, ok := m.liveEntry(sessionID)
	if !ok {
		if _, err := m.GetSession(ctx, sessionID, 0); err != nil {
			return training.Snapshot{}, err
		}
		return training.Snapshot{}, fmt.Errorf("%w: cannot resume a finished session", ErrIllegalTransition)
	}
	switch st := e.session.Status(); st {
	case training.StatusPaused:
		e.control.Resume()
	case training.StatusRunning:
		// Already running; report current state.
	default:
		return training.Snapshot{}, fmt.Errorf("%w: cannot resume a %s session", ErrIllegalTransition, st)
	}
	return e.session.Snapshot(0), nil
}

// Predict runs one forward pass through the session's trained model.
// Only completed sessions serve predictions; evicted ones lost their
// parameters with their memory residency.
func (m *Manager) Predict(ctx context.Context, sessionID string, input []float64) (*training.Prediction, error) {
	e, ok := m.liveEntry(sessionID)
	if !ok {
		if _, err := m.GetSession(ctx, sessionID, 0); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: trained parameters are no longer resident", ErrSessionNotReady)
	}
	if st := e.session.Status(); st != training.StatusCompleted {
		return nil, fmt.Errorf("%w: session status is %s", ErrSessionNotReady, st)
	}
	pred, err := e.engine.Predict(input)
	if err != nil {
		if errors.Is(err, training.ErrModelNotReady) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotReady, err)
		}
		return nil, err
	}
	return pred, nil
}

// Close signals every live session to stop and drains the pool, waiting
// up to timeout for in-flight loops to reach a terminal status.
func (m *Manager) Close(timeout time.Duration) {
	m.mu.Lock()
	for _, e := range m.sessions {
		if !e.session.Status().Terminal() {
			e.control.RequestStop()
		}
	}
	m.mu.Unlock()
	m.pool.close(timeout)
}

// resolveHyperparameters overlays request knobs on the dataset defaults.
func resolveHyperparameters(rec dataset.Recommended, opts StartOptions) training.Hyperparameters {
	hp := training.Hyperparameters{
		Epochs:       rec.Epochs,
		LearningRate: rec.LearningRate,
		BatchSize:    rec.BatchSize,
		Optimizer:    rec.Optimizer,
	}
	if opts.Epochs != nil {
		hp.Epochs = *opts.Epochs
	}
	if opts.LearningRate != nil {
		hp.LearningRate = *opts.LearningRate
	}
	if opts.BatchSize != nil {
		hp.BatchSize = *opts.BatchSize
	}
	if opts.Optimizer != "" {
		hp.Optimizer = opts.Optimizer
	}
	return hp
}
