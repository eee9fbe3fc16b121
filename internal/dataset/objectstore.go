package dataset

import (
	"context"
	"fmt"

	"github.com/xingyi1145/Neural-Network-Playground/internal/storage/objectstore"
)

// Curated object keys a deployment uploads once into the playground bucket.
const (
	californiaObjectKey = "datasets/california_housing.csv"
	wineObjectKey       = "datasets/winequality-red.csv"
)

// CSVDataset streams one curated CSV from the object store and preprocesses
// it on load. The last column is the target, everything before it a feature.
type CSVDataset struct {
	store  objectstore.Store
	bucket string
	key    string
	comma  rune
	spec   Spec
	label  func(float64) (float64, error)
}

// NewCaliforniaHousing serves the housing table: 8 numeric features followed
// by the median house value.
func NewCaliforniaHousing(store objectstore.Store, bucket string) *CSVDataset {
	return &CSVDataset{
		store:  store,
		bucket: bucket,
		key:    californiaObjectKey,
		comma:  ',',
		spec: Spec{
			ID:          "california_housing",
			Name:        "California Housing",
			Task:        TaskRegression,
			InputShape:  []int{8},
			OutputArity: 1,
			NumSamples:  20000,
			Description: "Predict median house values from 8 numeric features (regression).",
			Recommended: Recommended{Epochs: 20, LearningRate: 0.001, BatchSize: 512, Optimizer: "adam"},
		},
	}
}

// NewWineQuality serves the semicolon-separated red wine table: 11 numeric
// features followed by a quality rating. Ratings run 3 through 8 and map to
// class indices 0 through 5, matching the shipped model templates.
func NewWineQuality(store objectstore.Store, bucket string) *CSVDataset {
	return &CSVDataset{
		store:  store,
		bucket: bucket,
		key:    wineObjectKey,
		comma:  ';',
		spec: Spec{
			ID:          "wine_quality",
			Name:        "Wine Quality (Red)",
			Task:        TaskClassification,
			InputShape:  []int{11},
			OutputArity: 6,
			NumSamples:  1600,
			Description: "Multi-class quality prediction on red wine (11 numeric features).",
			Recommended: Recommended{Epochs: 30, LearningRate: 0.001, BatchSize: 128, Optimizer: "adam"},
		},
		label: wineClass,
	}
}

func wineClass(v float64) (float64, error) {
	q := int(v)
	if float64(q) != v || q < 3 || q > 8 {
		return 0, fmt.Errorf("quality %v outside supported range [3, 8]", v)
	}
	return float64(q - 3), nil
}

func (p *CSVDataset) Spec() Spec { return p.spec }

// Ready stats the backing object so startup can report a missing upload
// before a training request trips over it.
func (p *CSVDataset) Ready(ctx context.Context) error {
	if _, err := p.store.Stat(ctx, p.bucket, p.key); err != nil {
		return fmt.Errorf("%s: stat %s/%s: %w", p.spec.ID, p.bucket, p.key, err)
	}
	return nil
}

func (p *CSVDataset) Load(ctx context.Context, maxSamples int) (*Split, error) {
	obj, _, err := p.store.Get(ctx, p.bucket, p.key)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch %s/%s: %w", p.spec.ID, p.bucket, p.key, err)
	}
	defer obj.Close()

	x, y, err := parseCSV(obj, p.comma, p.spec.NumFeatures())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.spec.ID, err)
	}
	if p.label != nil {
		for i, v := range y {
			mapped, err := p.label(v)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", p.spec.ID, i+1, err)
			}
			y[i] = mapped
		}
	}

	split := makeSplit(x, y, p.spec.Task, maxSamples)
	standardize(split)
	return split, nil
}
