package dataset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Registry maps dataset ids to providers. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) error {
	spec := p.Spec()
	if spec.ID == "" {
		return fmt.Errorf("provider has empty dataset id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[spec.ID]; exists {
		return fmt.Errorf("dataset %q already registered", spec.ID)
	}
	r.providers[spec.ID] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// List returns the registered specs sorted by id.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.providers))
	for _, p := range r.providers {
		specs = append(specs, p.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// Preview loads the dataset and returns the first n training rows with
// their labels, n clamped to [1, 100].
func (r *Registry) Preview(ctx context.Context, id string, n int) ([][]float64, []float64, error) {
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	p, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}

	cap := n * 10
	if cap > 500 {
		cap = 500
	}
	split, err := p.Load(ctx, cap)
	if err != nil {
		return nil, nil, err
	}

	rows, _ := split.XTrain.Dims()
	if n > rows {
		n = rows
	}
	features := make([][]float64, n)
	for i := 0; i < n; i++ {
		features[i] = mat.Row(nil, i, split.XTrain)
	}
	labels := make([]float64, n)
	copy(labels, split.YTrain[:n])
	return features, labels, nil
}
