// Package training runs one neural network training session to a terminal
// state and exposes thread-safe snapshots for the polling API.
package training

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a session. Terminal statuses are
// absorbing: once entered, neither the status nor current_epoch changes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// Poll hints returned with every snapshot. Active sessions change often;
// terminal ones never do.
const (
	pollIntervalActive   = 1.5
	pollIntervalTerminal = 5.0
)

// PollInterval is the suggested client poll spacing, in seconds, for a
// session in this status.
func (s Status) PollInterval() float64 {
	if s.Terminal() {
		return pollIntervalTerminal
	}
	return pollIntervalActive
}

// Progress is the completed fraction of the run, clamped to [0,1].
func Progress(currentEpoch, totalEpochs int) float64 {
	if totalEpochs <= 0 {
		return 0
	}
	p := float64(currentEpoch) / float64(totalEpochs)
	if p > 1 {
		return 1
	}
	return p
}

// Metric is one epoch's outcome. Accuracy is nil for regression tasks.
type Metric struct {
	Epoch     int       `json:"epoch"`
	Loss      float64   `json:"loss"`
	Accuracy  *float64  `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is an immutable copy of session state for rendering and
// persistence. Metrics hold only epochs after the requested since_epoch.
type Snapshot struct {
	SessionID           string     `json:"session_id"`
	ModelID             string     `json:"model_id"`
	DatasetID           string     `json:"dataset_id"`
	Status              Status     `json:"status"`
	TotalEpochs         int        `json:"total_epochs"`
	CurrentEpoch        int        `json:"current_epoch"`
	Progress            float64    `json:"progress"`
	Metrics             []Metric   `json:"metrics"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	PollIntervalSeconds float64    `json:"poll_interval_seconds"`
}

// Session is the mutable record of one training run. All reads go through
// Snapshot; all writes go through the mark methods, which enforce terminal
// absorption.
type Session struct {
	mu sync.Mutex

	id           string
	modelID      string
	datasetID    string
	status       Status
	totalEpochs  int
	currentEpoch int
	metrics      []Metric
	errorMessage string
	startTime    time.Time
	endTime      *time.Time
}

func NewSession(id, modelID, datasetID string, totalEpochs int) *Session {
	return &Session{
		id:          id,
		modelID:     modelID,
		datasetID:   datasetID,
		status:      StatusPending,
		totalEpochs: totalEpochs,
		startTime:   time.Now().UTC(),
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) ModelID() string { return s.modelID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// MarkRunning moves a pending or paused session to running.
func (s *Session) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = StatusRunning
}

// MarkPaused moves a running session to paused.
func (s *Session) MarkPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = StatusPaused
}

// SetCurrentEpoch records the epoch the loop is about to train.
func (s *Session) SetCurrentEpoch(epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.currentEpoch = epoch
}

// AppendMetric adds one epoch record. Appends are strictly ordered by
// epoch; pollers only ever observe a prefix growing.
func (s *Session) AppendMetric(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.metrics = append(s.metrics, m)
}

// Finish moves the session to a terminal status exactly once. Later calls
// are no-ops, so racing stop requests cannot overwrite a completed run.
func (s *Session) Finish(status Status, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	s.errorMessage = errorMessage
	now := time.Now().UTC()
	s.endTime = &now
}

// Snapshot copies the current state. sinceEpoch trims metrics to those
// with Epoch > sinceEpoch; pass 0 for all.
func (s *Session) Snapshot(sinceEpoch int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := make([]Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Epoch > sinceEpoch {
			metrics = append(metrics, m)
		}
	}

	return Snapshot{
		SessionID:           s.id,
		ModelID:             s.modelID,
		DatasetID:           s.datasetID,
		Status:              s.status,
		TotalEpochs:         s.totalEpochs,
		CurrentEpoch:        s.currentEpoch,
		Progress:            Progress(s.currentEpoch, s.totalEpochs),
		Metrics:             metrics,
		ErrorMessage:        s.errorMessage,
		StartTime:           s.startTime,
		EndTime:             s.endTime,
		PollIntervalSeconds: s.status.PollInterval(),
	}
}
