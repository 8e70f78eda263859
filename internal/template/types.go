package template

// #region imports
import (
	"context"
	"errors"
	"time"
)

// #endregion imports

// #region types

// Template is the stored, slowly-evolving reference fingerprint for one
// agent identity. Exactly one active template exists per agent.
type Template struct {
	AgentID        string
	Vector         [128]float32
	CreatedAt      time.Time
	LastEvolvedAt  time.Time
	EvolutionCount int64
	Stability      float64
}

// Archived is one history entry: the template exactly as it stood when
// displaced, plus the row id used to address rollbacks.
type Archived struct {
	HistoryID  int64
	Template   Template
	ArchivedAt time.Time
}

// #endregion types

// #region errors

var (
	// ErrNotFound marks a missing agent or history entry.
	ErrNotFound = errors.New("template not found")

	// ErrExists marks an enrollment for an already-enrolled agent.
	ErrExists = errors.New("agent already enrolled")

	// ErrCorrupt marks a stored vector whose dimensionality does not
	// match the engine's. Fatal for that agent: processing halts until
	// an operator rolls back to an intact history entry.
	ErrCorrupt = errors.New("template vector corrupt")
)

// #endregion errors

// #region backend

// Backend is the persistence contract for templates. Implementations
// must make Save and Rollback atomic: the active swap, history push and
// cap prune land together or not at all. History is ordered oldest
// first and bounded; implementations evict the oldest entry beyond the
// cap.
type Backend interface {
	Load(ctx context.Context, agentID string) (Template, error)
	LoadHistory(ctx context.Context, agentID string) ([]Archived, error)

	// Save replaces the agent's active template. A non-nil archive is
	// pushed onto history in the same transaction.
	Save(ctx context.Context, next Template, archive *Template) error

	Enroll(ctx context.Context, t Template) error

	// Rollback restores the addressed history entry as active, exactly
	// as archived; the displaced active template is archived in turn.
	Rollback(ctx context.Context, agentID string, historyID int64) (Template, error)

	Agents(ctx context.Context) ([]string, error)
}

// #endregion backend
