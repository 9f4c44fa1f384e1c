package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrModelNotLoaded indicates Predict was called before a model was
// activated on this engine.
var ErrModelNotLoaded = errors.New("model is not loaded")

// Engine runs classification over a decoded model. Load replaces the
// active model atomically with respect to Predict.
type Engine interface {
	Load(model []byte) error
	Predict(reading []float64) (int, error)
}

// modelSpec is the on-wire model format: a linear scorer whose score is
// bucketed into ordered class labels by cutpoints.
type modelSpec struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Cutpoints    []float64 `json:"cutpoints"`
}

// LinearModel classifies a reading by scoring it against learned
// coefficients and counting how many cutpoints the score clears.
type LinearModel struct {
	mu   sync.RWMutex
	spec *modelSpec
}

// NewLinearModel creates an engine with no model loaded.
func NewLinearModel() *LinearModel {
	return &LinearModel{}
}

// Load parses and activates a model. The previous model stays active if
// the new one is rejected.
func (m *LinearModel) Load(model []byte) error {
	var spec modelSpec
	if err := json.Unmarshal(model, &spec); err != nil {
		return fmt.Errorf("parse model: %w", err)
	}
	if len(spec.Coefficients) == 0 {
		return errors.New("model has no coefficients")
	}
	for i := 1; i < len(spec.Cutpoints); i++ {
		if spec.Cutpoints[i] < spec.Cutpoints[i-1] {
			return fmt.Errorf("model cutpoints not sorted at index %d", i)
		}
	}

	m.mu.Lock()
	m.spec = &spec
	m.mu.Unlock()
	return nil
}

// Predict classifies one reading. The reading must match the model's
// coefficient count.
func (m *LinearModel) Predict(reading []float64) (int, error) {
	m.mu.RLock()
	spec := m.spec
	m.mu.RUnlock()

	if spec == nil {
		return 0, ErrModelNotLoaded
	}
	if len(reading) != len(spec.Coefficients) {
		return 0, fmt.Errorf("reading has %d features, model expects %d", len(reading), len(spec.Coefficients))
	}

	score := spec.Intercept
	for i, x := range reading {
		score += spec.Coefficients[i] * x
	}

	label := 0
	for _, cut := range spec.Cutpoints {
		if score >= cut {
			label++
		}
	}
	return label, nil
}
