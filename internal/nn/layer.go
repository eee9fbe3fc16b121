package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
)

// Kind discriminates the layer variants accepted by the builder payload.
// Unknown kinds are validation errors, never silent passes.
type Kind string

const (
	KindInput     Kind = "input"
	KindHidden    Kind = "hidden"
	KindOutput    Kind = "output"
	KindDropout   Kind = "dropout"
	KindConv2D    Kind = "conv2d"
	KindMaxPool2D Kind = "maxpool2d"
	KindFlatten   Kind = "flatten"
)

// Layer is one entry of an architecture as submitted by a client or a
// template. Position is optional; when any layer carries one, all must,
// and the sorted positions must be contiguous from zero.
type Layer struct {
	Kind       Kind    `json:"type" yaml:"type"`
	Neurons    int     `json:"neurons,omitempty" yaml:"neurons,omitempty"`
	Activation string  `json:"activation,omitempty" yaml:"activation,omitempty"`
	Position   *int    `json:"position,omitempty" yaml:"position,omitempty"`
	Rate       float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Filters    int     `json:"filters,omitempty" yaml:"filters,omitempty"`
	Kernel     int     `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Pool       int     `json:"pool,omitempty" yaml:"pool,omitempty"`
}

// Validation failure kinds. These surface verbatim in API error details so
// clients can match on them.
const (
	EmptyArchitecture               = "EmptyArchitecture"
	MissingInputOrOutput            = "MissingInputOrOutput"
	PositionGap                     = "PositionGap"
	ActivationOnInput               = "ActivationOnInput"
	SpatialOnNonImageDataset        = "SpatialOnNonImageDataset"
	DenseAfterSpatialWithoutFlatten = "DenseAfterSpatialWithoutFlatten"
	OutputArityMismatch             = "OutputArityMismatch"
	UnknownActivation               = "UnknownActivation"
	UnknownLayerKind                = "UnknownLayerKind"
	InvalidHyperparameter           = "InvalidHyperparameter"
)

// ValidationError reports a structural problem in a submitted architecture.
type ValidationError struct {
	Kind   string
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Kind + ": " + e.Detail
}

func validationErrorf(kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks an architecture against a dataset descriptor and returns
// the canonical ordered form. Canonicalization sorts by position, rewrites
// positions to 0..N-1, lower-cases activations, infers the input width from
// the dataset when absent, and substitutes the dataset's output arity into
// the output layer. Validate is pure: equal inputs yield equal outputs.
func Validate(layers []Layer, spec dataset.Spec) ([]Layer, error) {
	if len(layers) == 0 {
		return nil, validationErrorf(EmptyArchitecture, "architecture must contain at least an input and an output layer")
	}

	ordered, err := orderByPosition(layers)
	if err != nil {
		return nil, err
	}

	canonical := make([]Layer, len(ordered))
	inputs, outputs := 0, 0
	for i, l := range ordered {
		c := l
		c.Kind = Kind(strings.ToLower(strings.TrimSpace(string(l.Kind))))
		c.Activation = strings.ToLower(strings.TrimSpace(l.Activation))
		pos := i
		c.Position = &pos

		switch c.Kind {
		case KindInput:
			inputs++
			if i != 0 {
				return nil, validationErrorf(MissingInputOrOutput, "input layer must be first (found at position %d)", i)
			}
			if c.Activation != "" && c.Activation != "linear" {
				return nil, validationErrorf(ActivationOnInput, "input layer must not declare an activation (got %q)", c.Activation)
			}
			c.Activation = ""
			if c.Neurons == 0 {
				c.Neurons = spec.NumFeatures()
			}
			if c.Neurons != spec.NumFeatures() {
				return nil, validationErrorf(InvalidHyperparameter, "input layer has %d neurons, dataset %q expects %d", c.Neurons, spec.ID, spec.NumFeatures())
			}
		case KindHidden:
			if c.Neurons <= 0 {
				return nil, validationErrorf(InvalidHyperparameter, "hidden layer at position %d must have neurons > 0", i)
			}
			if err := checkActivation(c.Activation, i); err != nil {
				return nil, err
			}
		case KindOutput:
			outputs++
			if i != len(ordered)-1 {
				return nil, validationErrorf(MissingInputOrOutput, "output layer must be last (found at position %d)", i)
			}
			if err := checkOutputActivation(c.Activation, spec.Task, i); err != nil {
				return nil, err
			}
			if c.Neurons != 0 && c.Neurons != spec.OutputArity {
				return nil, validationErrorf(OutputArityMismatch, "output layer has %d neurons, dataset %q expects %d", c.Neurons, spec.ID, spec.OutputArity)
			}
			c.Neurons = spec.OutputArity
		case KindDropout:
			if i == 0 || i == len(ordered)-1 {
				return nil, validationErrorf(MissingInputOrOutput, "dropout layer at position %d must be interior", i)
			}
			if c.Rate < 0 || c.Rate >= 1 {
				return nil, validationErrorf(InvalidHyperparameter, "dropout rate %v at position %d must be in [0,1)", c.Rate, i)
			}
		case KindConv2D:
			if !spec.IsImage() {
				return nil, validationErrorf(SpatialOnNonImageDataset, "conv2d at position %d requires an image dataset (%q is tabular)", i, spec.ID)
			}
			if c.Filters <= 0 {
				return nil, validationErrorf(InvalidHyperparameter, "conv2d at position %d must have filters > 0", i)
			}
			if c.Kernel < 1 || c.Kernel > spec.InputShape[0] {
				return nil, validationErrorf(InvalidHyperparameter, "conv2d kernel %d at position %d must be in [1,%d]", c.Kernel, i, spec.InputShape[0])
			}
			if err := checkActivation(c.Activation, i); err != nil {
				return nil, err
			}
		case KindMaxPool2D:
			if !spec.IsImage() {
				return nil, validationErrorf(SpatialOnNonImageDataset, "maxpool2d at position %d requires an image dataset (%q is tabular)", i, spec.ID)
			}
			if c.Pool <= 0 {
				return nil, validationErrorf(InvalidHyperparameter, "maxpool2d at position %d must have pool > 0", i)
			}
		case KindFlatten:
			if !spec.IsImage() {
				return nil, validationErrorf(SpatialOnNonImageDataset, "flatten at position %d requires an image dataset (%q is tabular)", i, spec.ID)
			}
		default:
			return nil, validationErrorf(UnknownLayerKind, "unknown layer type %q at position %d", string(l.Kind), i)
		}
		canonical[i] = c
	}

	if inputs != 1 || outputs != 1 {
		return nil, validationErrorf(MissingInputOrOutput, "architecture needs exactly one input and one output layer (got %d input, %d output)", inputs, outputs)
	}
	if err := checkSpatialOrdering(canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

// orderByPosition sorts layers by their declared positions. Layers either
// all carry positions (which must be a permutation of 0..N-1) or none do,
// in which case list order stands.
func orderByPosition(layers []Layer) ([]Layer, error) {
	withPos := 0
	for _, l := range layers {
		if l.Position != nil {
			withPos++
		}
	}
	out := make([]Layer, len(layers))
	copy(out, layers)
	if withPos == 0 {
		return out, nil
	}
	if withPos != len(layers) {
		return nil, validationErrorf(PositionGap, "either every layer carries a position or none does (%d of %d set)", withPos, len(layers))
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Position < *out[j].Position })
	for i, l := range out {
		if *l.Position != i {
			return nil, validationErrorf(PositionGap, "positions must be contiguous from 0 (missing position %d)", i)
		}
	}
	return out, nil
}

// checkSpatialOrdering rejects a dense layer directly following a spatial
// stage without an intervening flatten.
func checkSpatialOrdering(layers []Layer) error {
	spatial := false
	for i, l := range layers {
		switch l.Kind {
		case KindConv2D, KindMaxPool2D:
			spatial = true
		case KindFlatten:
			spatial = false
		case KindHidden, KindOutput:
			if spatial {
				return validationErrorf(DenseAfterSpatialWithoutFlatten, "dense layer at position %d follows a spatial layer; insert a flatten layer", i)
			}
		}
	}
	return nil
}

func checkActivation(name string, pos int) error {
	if name == "" {
		return nil
	}
	if _, ok := activations[name]; !ok {
		return validationErrorf(UnknownActivation, "unsupported activation %q at position %d", name, pos)
	}
	return nil
}

// checkOutputActivation enforces the loss pairing rules: classification
// heads emit logits (declared softmax is fused into the loss), regression
// heads are linear.
func checkOutputActivation(name string, task dataset.TaskKind, pos int) error {
	switch task {
	case dataset.TaskClassification:
		if name != "" && name != "linear" && name != "softmax" {
			return validationErrorf(UnknownActivation, "classification output at position %d must use softmax or linear logits (got %q)", pos, name)
		}
	case dataset.TaskRegression:
		if name != "" && name != "linear" {
			return validationErrorf(UnknownActivation, "regression output at position %d must be linear (got %q)", pos, name)
		}
	}
	return nil
}
