package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
)

// ModelConfig is a stored architecture definition bound to a dataset.
// Layers are kept in canonical form so a later training request can
// compile them without revalidation surprises.
type ModelConfig struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DatasetID   string     `json:"dataset_id"`
	Description string     `json:"description,omitempty"`
	Layers      []nn.Layer `json:"layers"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ModelRecorder persists model configs. The in-memory store stays the
// source of truth; persistence is write-through and best effort.
type ModelRecorder interface {
	SaveModelConfig(ctx context.Context, mc ModelConfig) error
}

// ModelStore keeps model configurations in memory, optionally mirroring
// user-created ones to a recorder.
type ModelStore struct {
	logger   *slog.Logger
	recorder ModelRecorder

	mu     sync.RWMutex
	models map[string]ModelConfig
}

func NewModelStore(logger *slog.Logger, recorder ModelRecorder) *ModelStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ModelStore{
		logger:   logger,
		recorder: recorder,
		models:   make(map[string]ModelConfig),
	}
}

// Create stores a new user-defined config. Callers validate the layer
// stack against the dataset before calling. Missing fields get defaults:
// a fresh UUID, a dataset-derived name and the "created" status.
func (s *ModelStore) Create(ctx context.Context, mc ModelConfig) ModelConfig {
	if mc.ID == "" {
		mc.ID = uuid.NewString()
	}
	if mc.Name == "" {
		mc.Name = mc.DatasetID + "_model"
	}
	if mc.Status == "" {
		mc.Status = "created"
	}
	if mc.CreatedAt.IsZero() {
		mc.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.models[mc.ID] = mc
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.SaveModelConfig(ctx, mc); err != nil {
			s.logger.Warn("model config write-through failed", "model_id", mc.ID, "error", err)
		}
	}
	return mc
}

// Put stores a prebuilt record as-is without write-through. Template
// seeding and startup hydration from the database both go through here.
func (s *ModelStore) Put(mc ModelConfig) {
	s.mu.Lock()
	s.models[mc.ID] = mc
	s.mu.Unlock()
}

func (s *ModelStore) Get(id string) (ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.models[id]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return mc, nil
}

// List returns all configs ordered by ID for stable output.
func (s *ModelStore) List() []ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelConfig, 0, len(s.models))
	for _, mc := range s.models {
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
