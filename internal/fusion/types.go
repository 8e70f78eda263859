package fusion

// #region imports
import (
	"errors"
	"fmt"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
)

// #endregion imports

// #region config

// Config governs weight adaptation and the fusion floor.
type Config struct {
	// BaseWeights is the fixed prior weight per modality. Modalities
	// absent from the map never contribute.
	BaseWeights map[fingerprint.Modality]float64

	// MinModalities is the minimum number of modalities that must
	// survive the reliability floor for fusion to succeed.
	MinModalities int

	// ReliabilityFloor excludes a modality entirely when its assessed
	// reliability falls below it.
	ReliabilityFloor float64

	Quality quality.Config
}

// DefaultConfig returns the tuned defaults: equal priors over the four
// canonical modalities, two-modality minimum, 0.3 reliability floor.
func DefaultConfig() Config {
	base := make(map[fingerprint.Modality]float64, 4)
	for _, m := range fingerprint.Modalities() {
		base[m] = 1.0
	}
	return Config{
		BaseWeights:      base,
		MinModalities:    2,
		ReliabilityFloor: 0.3,
		Quality:          quality.DefaultConfig(),
	}
}

// Context carries read-only per-call hints. Trust is the operational
// context multiplier (e.g. reduced trust for a channel observed over a
// degraded link); modalities absent from the map get full trust.
type Context struct {
	AgentClaim string
	Trust      map[fingerprint.Modality]float64
}

func (c Context) trustFor(m fingerprint.Modality) float64 {
	t, ok := c.Trust[m]
	if !ok {
		return 1.0
	}
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1.0
	}
	return t
}

// #endregion config

// #region errors

// ErrInsufficientModalities is the match target for fusion failures
// caused by too few reliable modalities.
var ErrInsufficientModalities = errors.New("insufficient reliable modalities")

// InsufficientModalitiesError carries the per-modality reliabilities so
// callers can report which channels fell short.
type InsufficientModalitiesError struct {
	Reliable      int
	Required      int
	Reliabilities map[fingerprint.Modality]float64
}

func (e *InsufficientModalitiesError) Error() string {
	return fmt.Sprintf("insufficient reliable modalities: %d of %d required", e.Reliable, e.Required)
}

// Is reports true for ErrInsufficientModalities targets.
func (e *InsufficientModalitiesError) Is(target error) bool {
	return target == ErrInsufficientModalities
}

// #endregion errors
