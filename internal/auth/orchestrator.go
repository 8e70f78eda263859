package auth

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/clock"
	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/fusion"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
	"github.com/mlindqvist/agentprint/go-engine/internal/match"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for fusion, matching,
// validation, evolution, and decision delivery.
type Orchestrator struct {
	cfg     Config
	fuser   *fusion.Engine
	matcher *match.Matcher
	gate    *gate.Gate
	evolver *evolve.Manager
	backend template.Backend
	clk     clock.Clock
	log     *logging.Logger

	mu    sync.RWMutex
	sinks []DecisionSink
}

// Components bundles the per-stage configurations.
type Components struct {
	Fusion fusion.Config
	Match  match.Config
	Gate   gate.Config
	Evolve evolve.Config
}

// DefaultComponents returns every stage's DefaultConfig.
func DefaultComponents() Components {
	return Components{
		Fusion: fusion.DefaultConfig(),
		Match:  match.DefaultConfig(),
		Gate:   gate.DefaultConfig(),
		Evolve: evolve.DefaultConfig(),
	}
}

// #endregion orchestrator-struct

// #region constructor

// NewOrchestrator creates a fully wired orchestrator over the given
// backend. A nil clk uses the wall clock, a nil log discards records.
func NewOrchestrator(cfg Config, comp Components, backend template.Backend, clk clock.Clock, log *logging.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logging.Discard()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = DefaultConfig().SampleWindow
	}

	return &Orchestrator{
		cfg:     cfg,
		fuser:   fusion.New(comp.Fusion),
		matcher: match.NewMatcher(comp.Match, backend, clk),
		gate:    gate.NewGate(comp.Gate),
		evolver: evolve.NewManager(comp.Evolve, backend, clk),
		backend: backend,
		clk:     clk,
		log:     log.WithComponent("auth"),
	}
}

// OnDecision registers a sink for completed decisions. Sinks run on
// their own goroutines; a slow or panicking sink never stalls an
// authentication.
func (o *Orchestrator) OnDecision(sink DecisionSink) {
	o.mu.Lock()
	o.sinks = append(o.sinks, sink)
	o.mu.Unlock()
}

// #endregion constructor

// #region authenticate

// Authenticate runs one attempt through the full pipeline. Every call
// yields exactly one decision; domain rejections return a nil error,
// deadline misses return ErrIdentificationTimeout, infrastructure
// faults return the underlying error. The decision is dispatched to
// registered sinks in all cases.
func (o *Orchestrator) Authenticate(ctx context.Context, attempt Attempt) (Decision, error) {
	start := o.clk.Now()
	d := Decision{ID: attempt.ID, Similarity: -1}

	fp, err := o.fuser.Fuse(attempt.Samples, fusion.Context{
		AgentClaim: attempt.AgentClaim,
		Trust:      attempt.Trust,
	}, start.UTC())
	if err != nil {
		if errors.Is(err, fusion.ErrInsufficientModalities) {
			o.finish(&d, OutcomeInsufficient, err.Error(), start)
			return d, nil
		}
		o.finish(&d, OutcomeError, err.Error(), start)
		return d, err
	}

	ictx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	res, err := o.matcher.Identify(ictx, fp, 0)
	if err != nil {
		switch {
		case errors.Is(err, match.ErrNoCandidates):
			o.finish(&d, OutcomeRejected, err.Error(), start)
			return d, nil
		case errors.Is(err, context.DeadlineExceeded):
			o.finish(&d, OutcomeTimeout, ErrIdentificationTimeout.Error(), start)
			return d, fmt.Errorf("attempt %s: %w", attempt.ID, ErrIdentificationTimeout)
		default:
			o.finish(&d, OutcomeError, err.Error(), start)
			return d, err
		}
	}

	best := res.Best
	d.AgentID = best.AgentID
	d.Similarity = best.Similarity

	tmpl, err := o.backend.Load(ctx, best.AgentID)
	if err != nil {
		o.finish(&d, OutcomeError, err.Error(), start)
		return d, err
	}

	val := o.gate.Validate(best.AgentID, fp, tmpl)
	d.Validation = &val
	d.Confidence = fp.Confidence * best.Similarity

	if !val.Passed {
		reason := fmt.Sprintf("validation overall %.3f below threshold", val.Overall)
		if val.FailedCheck != "" {
			reason = fmt.Sprintf("validation failed %s check", val.FailedCheck)
		}
		o.finish(&d, OutcomeRejected, reason, start)
		return d, nil
	}

	count := tmpl.EvolutionCount
	if o.cfg.EvolveOnAccept {
		out, eerr := o.evolver.Evolve(ctx, best.AgentID, fp)
		if eerr != nil {
			// Authentication already succeeded; evolution is maintenance.
			o.log.Warn("evolution failed", "attempt_id", attempt.ID, "agent_id", best.AgentID, "err", eerr)
		} else {
			d.Evolution = out.Action
			count = out.Template.EvolutionCount
			if out.Action == evolve.ActionEvolved {
				o.matcher.Update(best.AgentID, out.Template.Vector)
			}
		}
	}
	o.gate.Observe(best.AgentID, fp, count)

	o.finish(&d, OutcomeAuthenticated, "matched enrolled template", start)
	return d, nil
}

// finish stamps the terminal fields and hands the decision to sinks.
func (o *Orchestrator) finish(d *Decision, outcome, reason string, start time.Time) {
	d.Outcome = outcome
	d.Reason = reason
	d.DecidedAt = o.clk.Now().UTC()
	d.Latency = d.DecidedAt.Sub(start.UTC())

	o.log.Info("attempt resolved",
		"attempt_id", d.ID,
		"agent_id", d.AgentID,
		"outcome", d.Outcome,
		"confidence", d.Confidence,
		"latency", d.Latency,
	)
	o.dispatch(*d)
}

// dispatch fans the decision out to sinks, one goroutine each.
func (o *Orchestrator) dispatch(d Decision) {
	o.mu.RLock()
	sinks := make([]DecisionSink, len(o.sinks))
	copy(sinks, o.sinks)
	o.mu.RUnlock()

	for _, sink := range sinks {
		go func(s DecisionSink) {
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("decision sink panicked", "attempt_id", d.ID, "panic", r)
				}
			}()
			s(d)
		}(sink)
	}
}

// #endregion authenticate

// #region enroll

// Enroll fuses enrollment samples into a fresh template, persists it,
// and registers it with the index. The claim is the agent itself, so
// fusion applies the same reliability policy as authentication.
func (o *Orchestrator) Enroll(ctx context.Context, agentID string, samples []fingerprint.Sample) (template.Template, error) {
	now := o.clk.Now().UTC()
	fp, err := o.fuser.Fuse(samples, fusion.Context{AgentClaim: agentID}, now)
	if err != nil {
		return template.Template{}, fmt.Errorf("enroll %s: %w", agentID, err)
	}

	t := template.Template{
		AgentID:       agentID,
		Vector:        fp.Vector,
		CreatedAt:     now,
		LastEvolvedAt: now,
		Stability:     1,
	}
	if err := o.backend.Enroll(ctx, t); err != nil {
		return template.Template{}, err
	}
	o.matcher.Insert(agentID, t.Vector)

	o.log.Info("agent enrolled", "agent_id", agentID, "modalities", len(fp.Contributing()))
	return t, nil
}

// #endregion enroll

// #region maintenance

// Rollback restores an archived template as active and resyncs the
// index and validation window.
func (o *Orchestrator) Rollback(ctx context.Context, agentID string, historyID int64) (template.Template, error) {
	t, err := o.evolver.RollbackTo(ctx, agentID, historyID)
	if err != nil {
		return t, err
	}
	o.matcher.Update(agentID, t.Vector)
	o.gate.Forget(agentID)

	o.log.Info("template rolled back", "agent_id", agentID, "history_id", historyID, "evolution_count", t.EvolutionCount)
	return t, nil
}

// Rebuild reindexes every stored template. Called at startup so the
// index covers agents enrolled in earlier runs.
func (o *Orchestrator) Rebuild(ctx context.Context) (int, error) {
	return o.matcher.Rebuild(ctx)
}

// Stats reports index and cache occupancy.
func (o *Orchestrator) Stats() (indexed, cached int) {
	return o.matcher.Stats()
}

// #endregion maintenance

// #region audit-sink

// NewAuditSink returns a sink that persists decisions to the
// decision_log table. Write failures are logged, never surfaced: the
// audit trail must not block authentication.
func NewAuditSink(db *sql.DB, log *logging.Logger) DecisionSink {
	if log == nil {
		log = logging.Discard()
	}
	return func(d Decision) {
		entry := logging.DecisionEntry{
			DecisionID: d.ID,
			AgentID:    d.AgentID,
			Outcome:    d.Outcome,
			Confidence: d.Confidence,
			Similarity: d.Similarity,
			Evolution:  string(d.Evolution),
			Reason:     d.Reason,
			Latency:    d.Latency,
			CreatedAt:  d.DecidedAt,
		}
		if d.Validation != nil {
			raw, err := json.Marshal(d.Validation)
			if err != nil {
				log.Error("encode validation trace", "decision_id", d.ID, "err", err)
			} else {
				entry.ValidationJSON = string(raw)
			}
		}
		if err := logging.LogDecision(db, entry); err != nil {
			log.Error("audit decision", "decision_id", d.ID, "err", err)
		}
	}
}

// #endregion audit-sink
