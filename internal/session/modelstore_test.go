package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
)

type fakeModelRecorder struct {
	mu    sync.Mutex
	saved []ModelConfig
	fail  bool
}

func (r *fakeModelRecorder) SaveModelConfig(ctx context.Context, mc ModelConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("backend down")
	}
	r.saved = append(r.saved, mc)
	return nil
}

func TestModelStoreCreateDefaults(t *testing.T) {
	rec := &fakeModelRecorder{}
	s := NewModelStore(nil, rec)

	mc := s.Create(context.Background(), ModelConfig{
		DatasetID: "iris",
		Layers:    []nn.Layer{{Kind: nn.KindInput, Neurons: 4}, {Kind: nn.KindOutput, Neurons: 3}},
	})
	if mc.ID == "" {
		t.Fatalf("Create() left ID empty")
	}
	if mc.Name != "iris_model" {
		t.Fatalf("Name = %q, want %q", mc.Name, "iris_model")
	}
	if mc.Status != "created" {
		t.Fatalf("Status = %q, want %q", mc.Status, "created")
	}
	if mc.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not set")
	}

	got, err := s.Get(mc.ID)
	if err != nil {
		t.Fatalf("Get(%s) = %v", mc.ID, err)
	}
	if got.Name != mc.Name || len(got.Layers) != 2 {
		t.Fatalf("Get(%s) = %+v, want the created config", mc.ID, got)
	}
	if len(rec.saved) != 1 || rec.saved[0].ID != mc.ID {
		t.Fatalf("write-through recorded %d configs, want the created one", len(rec.saved))
	}
}

func TestModelStoreCreateKeepsExplicitFields(t *testing.T) {
	s := NewModelStore(nil, nil)
	mc := s.Create(context.Background(), ModelConfig{ID: "fixed-id", Name: "custom", DatasetID: "iris"})
	if mc.ID != "fixed-id" || mc.Name != "custom" {
		t.Fatalf("Create() = %s/%s, want fixed-id/custom", mc.ID, mc.Name)
	}
}

func TestModelStoreGetUnknown(t *testing.T) {
	s := NewModelStore(nil, nil)
	if _, err := s.Get("ghost"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("Get(ghost) = %v, want %v", err, ErrModelNotFound)
	}
}

func TestModelStoreRecorderFailureKeepsConfig(t *testing.T) {
	s := NewModelStore(nil, &fakeModelRecorder{fail: true})
	mc := s.Create(context.Background(), ModelConfig{DatasetID: "iris"})
	if _, err := s.Get(mc.ID); err != nil {
		t.Fatalf("Get after failed write-through = %v", err)
	}
}

func TestModelStoreListSortedByID(t *testing.T) {
	s := NewModelStore(nil, nil)
	s.Put(ModelConfig{ID: "b"})
	s.Put(ModelConfig{ID: "a"})
	s.Put(ModelConfig{ID: "c"})

	got := s.List()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("List() returned %d configs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("List()[%d].ID = %s, want %s", i, got[i].ID, want[i])
		}
	}
}
