// Package template ships the prebuilt model architectures surfaced by the
// templates API. The catalog is embedded so every process serves the same
// set without external state.
package template

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xingyi1145/Neural-Network-Playground/internal/nn"
)

//go:embed catalog.yaml
var catalogYAML []byte

var ErrNotFound = errors.New("template not found")

// Template is a ready-to-train architecture bound to one dataset.
type Template struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	DatasetID   string     `json:"dataset_id" yaml:"dataset_id"`
	Layers      []nn.Layer `json:"layers" yaml:"layers"`
}

// Catalog is an immutable, ordered template set.
type Catalog struct {
	templates []Template
	byID      map[string]Template
}

// Load parses the embedded catalog. Failure means the shipped file is
// broken; callers treat it as fatal.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

func Parse(input []byte) (*Catalog, error) {
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return nil, fmt.Errorf("decode template catalog: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, errors.New("catalog.templates must be non-empty")
	}

	byID := make(map[string]Template, len(doc.Templates))
	for i, t := range doc.Templates {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog.templates[%d].id is required", i)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("catalog.templates[%d].id must be unique (duplicate %q)", i, id)
		}
		if strings.TrimSpace(t.DatasetID) == "" {
			return nil, fmt.Errorf("catalog.templates[%d].dataset_id is required", i)
		}
		if len(t.Layers) < 2 {
			return nil, fmt.Errorf("catalog.templates[%d].layers needs at least an input and an output layer", i)
		}
		byID[id] = t
	}
	return &Catalog{templates: doc.Templates, byID: byID}, nil
}

// All returns the templates in catalog order.
func (c *Catalog) All() []Template {
	return append([]Template(nil), c.templates...)
}

func (c *Catalog) Get(id string) (Template, error) {
	t, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// ForDataset returns the templates bound to one dataset, preserving
// catalog order. Unknown datasets yield an empty slice.
func (c *Catalog) ForDataset(datasetID string) []Template {
	var out []Template
	for _, t := range c.templates {
		if t.DatasetID == datasetID {
			out = append(out, t)
		}
	}
	return out
}
