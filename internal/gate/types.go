package gate

// #region imports
import (
	"errors"
	"fmt"
)

// #endregion imports

// #region stage

// Stage enumerates the validation state machine states. A result's
// trace records every stage the request passed through, terminated by
// StageAccepted or StageRejected.
type Stage string

const (
	StagePending     Stage = "pending"
	StageLiveness    Stage = "liveness_checked"
	StageConsistency Stage = "consistency_checked"
	StageCorrelation Stage = "correlation_checked"
	StageAccepted    Stage = "accepted"
	StageRejected    Stage = "rejected"
)

// #endregion stage

// #region config

// Config holds thresholds for the anti-spoof checks.
type Config struct {
	Threshold          float64 // min overall score to accept
	Forensic           bool    // run every check even after a failure
	WindowSize         int     // accepted composites retained per agent
	EntropyBins        int     // histogram bins for segment entropy
	EntropyFloor       float64 // liveness: min natural entropy ratio
	EntropyCeiling     float64 // liveness: max natural entropy ratio
	MaxJump            float64 // temporal: relative distance scoring zero
	MinCorrelation     float64 // cross-modal: |Pearson| marking a pair as coupled
	DecorrelationBound float64 // cross-modal: correlation drop scoring zero
}

// DefaultConfig returns conservative defaults for live authentication.
func DefaultConfig() Config {
	return Config{
		Threshold:          0.75,
		Forensic:           false,
		WindowSize:         16,
		EntropyBins:        16,
		EntropyFloor:       0.2,
		EntropyCeiling:     0.9,
		MaxJump:            1.0,
		MinCorrelation:     0.5,
		DecorrelationBound: 0.4,
	}
}

// #endregion config

// #region result

// ValidationResult carries every sub-score for audit. A score of -1
// means the check never ran (fail-fast stopped earlier).
type ValidationResult struct {
	Trace       []Stage `json:"trace"`
	Liveness    float64 `json:"liveness"`
	Temporal    float64 `json:"temporal_consistency"`
	Correlation float64 `json:"cross_modal"`
	Overall     float64 `json:"overall"`
	Passed      bool    `json:"passed"`
	FailedCheck string  `json:"failed_check,omitempty"`
}

// #endregion result

// #region errors

// ErrValidationFailed reports that one or more anti-spoof checks vetoed
// the match.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError wraps a failing result so callers keep the sub-scores
// for forensic review.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s (overall %.3f)", e.Result.FailedCheck, e.Result.Overall)
}

// Is reports equivalence to ErrValidationFailed for errors.Is chains.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// #endregion errors
