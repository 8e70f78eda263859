package evolve

// #region imports
import (
	"context"
	"fmt"
	"sync"

	"github.com/mlindqvist/agentprint/go-engine/internal/clock"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region manager

// Manager applies the drift policy to accepted observations and keeps
// templates current. Writes are serialized per agent by a keyed mutex;
// distinct agents never block each other.
type Manager struct {
	cfg     Config
	backend template.Backend
	clk     clock.Clock

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	trends map[string]*trend
}

// trend tracks the direction of recent in-band drift for one agent.
type trend struct {
	direction [fingerprint.Dim]float32
	run       int
}

// NewManager creates a Manager over the given backend. A nil clk falls
// back to the wall clock.
func NewManager(cfg Config, backend template.Backend, clk clock.Clock) *Manager {
	if cfg.MinTrendRun < 1 {
		cfg.MinTrendRun = DefaultConfig().MinTrendRun
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = DefaultConfig().Smoothing
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		cfg:     cfg,
		backend: backend,
		clk:     clk,
		locks:   make(map[string]*sync.Mutex),
		trends:  make(map[string]*trend),
	}
}

// lockFor returns the agent's writer lock, creating it on first use.
func (m *Manager) lockFor(agentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[agentID] = l
	}
	return l
}

func (m *Manager) trendFor(agentID string) *trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.trends[agentID]
	if !ok {
		tr = &trend{}
		m.trends[agentID] = tr
	}
	return tr
}

func (m *Manager) resetTrend(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trends, agentID)
}

// #endregion manager

// #region evolve

// Evolve folds one accepted observation into the agent's template per
// the drift policy. Evolution replaces the active template with an EMA
// blend and archives the displaced one atomically; anything short of
// that leaves the store untouched.
func (m *Manager) Evolve(ctx context.Context, agentID string, accepted fingerprint.Composite) (Outcome, error) {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.backend.Load(ctx, agentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load active template: %w", err)
	}

	delta := fingerprint.Delta(accepted.Vector, active.Vector)
	dist := fingerprint.Norm(delta)
	scale := fingerprint.Norm(active.Vector)
	if scale < 1e-9 {
		scale = 1e-9
	}
	drift := dist / scale

	if drift <= m.cfg.DriftFloor {
		m.resetTrend(agentID)
		return Outcome{
			Action:   ActionNoOp,
			Reason:   fmt.Sprintf("drift %.4f within noise floor %.4f", drift, m.cfg.DriftFloor),
			Drift:    drift,
			Template: active,
		}, nil
	}

	if drift >= m.cfg.DriftCeiling {
		m.resetTrend(agentID)
		return Outcome{
			Action:   ActionAnomaly,
			Reason:   fmt.Sprintf("drift %.4f at or above ceiling %.4f, not absorbed", drift, m.cfg.DriftCeiling),
			Drift:    drift,
			Template: active,
		}, nil
	}

	dir := unit(delta, dist)
	tr := m.trendFor(agentID)
	if tr.run > 0 && dot(dir, tr.direction) >= 0 {
		tr.run++
	} else {
		tr.run = 1
	}
	tr.direction = dir

	if tr.run < m.cfg.MinTrendRun {
		return Outcome{
			Action:   ActionDeferred,
			Reason:   fmt.Sprintf("trend run %d of %d", tr.run, m.cfg.MinTrendRun),
			Drift:    drift,
			TrendRun: tr.run,
			Template: active,
		}, nil
	}

	// Cancellation is honored up to here; once the write starts it runs
	// to completion so the store is never left half-applied.
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	alpha := m.cfg.Smoothing
	next := active
	for i := range next.Vector {
		next.Vector[i] = float32((1-alpha)*float64(active.Vector[i]) + alpha*float64(accepted.Vector[i]))
	}
	next.LastEvolvedAt = m.clk.Now().UTC()
	next.EvolutionCount = active.EvolutionCount + 1
	next.Stability = 0.9*active.Stability + 0.1*(1-drift/m.cfg.DriftCeiling)

	archive := active
	if err := m.backend.Save(context.WithoutCancel(ctx), next, &archive); err != nil {
		return Outcome{}, fmt.Errorf("save evolved template: %w", err)
	}
	m.resetTrend(agentID)

	run := tr.run
	return Outcome{
		Action:   ActionEvolved,
		Reason:   fmt.Sprintf("drift %.4f absorbed after %d-observation trend", drift, run),
		Drift:    drift,
		TrendRun: run,
		Template: next,
	}, nil
}

// #endregion evolve

// #region rollback

// RollbackTo restores a history entry as the agent's active template,
// the operator response to anomaly streaks or corruption. The trend
// state is cleared so evolution restarts from the restored baseline.
func (m *Manager) RollbackTo(ctx context.Context, agentID string, historyID int64) (template.Template, error) {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	restored, err := m.backend.Rollback(ctx, agentID, historyID)
	if err != nil {
		return template.Template{}, fmt.Errorf("rollback %s to %d: %w", agentID, historyID, err)
	}
	m.resetTrend(agentID)
	return restored, nil
}

// #endregion rollback

// #region helpers

// unit scales a delta to length 1. dist must be the delta's norm.
func unit(delta [fingerprint.Dim]float32, dist float64) [fingerprint.Dim]float32 {
	var u [fingerprint.Dim]float32
	for i := range delta {
		u[i] = float32(float64(delta[i]) / dist)
	}
	return u
}

func dot(a, b [fingerprint.Dim]float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// #endregion helpers
