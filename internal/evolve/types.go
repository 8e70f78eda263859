package evolve

// #region imports
import (
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region config

// Config holds the drift policy for template evolution.
type Config struct {
	DriftFloor   float64 // at or below: observation noise, ignored
	DriftCeiling float64 // at or above: anomaly, never absorbed
	MinTrendRun  int     // consecutive same-direction observations required
	Smoothing    float64 // EMA factor blending the observation into the template
}

// DefaultConfig returns conservative defaults for gradual behavioral drift.
func DefaultConfig() Config {
	return Config{
		DriftFloor:   0.05,
		DriftCeiling: 0.35,
		MinTrendRun:  5,
		Smoothing:    0.2,
	}
}

// #endregion config

// #region outcome

// Action is what the evolution policy decided for one observation.
type Action string

const (
	ActionEvolved  Action = "evolved"  // template blended and saved
	ActionDeferred Action = "deferred" // drift in band but trend not yet established
	ActionNoOp     Action = "no_op"    // drift within the noise floor
	ActionAnomaly  Action = "anomaly"  // drift above the ceiling, surfaced to audit
)

// Outcome records what the evolution policy decided for one accepted
// observation.
type Outcome struct {
	Action   Action
	Reason   string
	Drift    float64
	TrendRun int
	Template template.Template // active template after the call
}

// #endregion outcome
