package auth

// #region imports
import (
	"errors"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
)

// #endregion imports

// #region outcomes

// Authentication outcomes.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeRejected      = "rejected"
	OutcomeTimeout       = "timeout"
	OutcomeInsufficient  = "insufficient_modalities"
	OutcomeError         = "error"
)

// ErrIdentificationTimeout reports that candidate retrieval and scoring
// exceeded the real-time deadline.
var ErrIdentificationTimeout = errors.New("identification deadline exceeded")

// #endregion outcomes

// #region attempt

// Attempt is one authentication request assembled from buffered samples.
type Attempt struct {
	ID          string
	AgentClaim  string // empty requests pure identification
	Samples     []fingerprint.Sample
	Trust       map[fingerprint.Modality]float64 // per-channel context trust, nil means full trust
	SubmittedAt time.Time
}

// #endregion attempt

// #region decision

// Decision is the terminal result of one attempt. Every attempt yields
// exactly one decision, failures included.
type Decision struct {
	ID         string
	AgentID    string // empty when no agent was resolved
	Outcome    string
	Confidence float64
	Similarity float64 // negative when matching never ran
	Validation *gate.ValidationResult
	Evolution  evolve.Action // empty when evolution never ran
	Reason     string
	DecidedAt  time.Time
	Latency    time.Duration
}

// DecisionSink receives completed decisions. Sinks run outside the
// authentication path and must not block it.
type DecisionSink func(Decision)

// #endregion decision

// #region config

// Config bounds the real-time authentication path.
type Config struct {
	Deadline       time.Duration // identification budget per attempt
	SampleWindow   time.Duration // collector buffering window
	Workers        int           // concurrent attempt processors
	QueueDepth     int           // pending attempts before submission blocks
	EvolveOnAccept bool          // feed accepted composites to template evolution
}

// DefaultConfig returns the real-time defaults.
func DefaultConfig() Config {
	return Config{
		Deadline:       5 * time.Millisecond,
		SampleWindow:   40 * time.Millisecond,
		Workers:        4,
		QueueDepth:     64,
		EvolveOnAccept: true,
	}
}

// #endregion config
