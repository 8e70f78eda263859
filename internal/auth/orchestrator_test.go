package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/fusion"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #region helpers

var capturedAt = time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

// liveFeatures returns a 32-slot vector with a dominant level plus a
// spread tail, the shape a healthy extractor produces.
func liveFeatures(shift, scale float32) []float32 {
	features := make([]float32, 32)
	for i := 0; i < 16; i++ {
		features[i] = (0.5 + shift) * scale
	}
	for i := 16; i < 32; i++ {
		features[i] = (float32(i-16)*0.05 + shift) * scale
	}
	return features
}

// samplesAt returns one sample per modality, segments shifted so they
// differ, everything scaled by scale.
func samplesAt(base, scale float32) []fingerprint.Sample {
	shifts := map[fingerprint.Modality]float32{
		fingerprint.Timing:   base,
		fingerprint.Resource: base + 0.1,
		fingerprint.Memory:   base + 0.2,
		fingerprint.Sequence: base + 0.3,
	}
	var out []fingerprint.Sample
	for _, m := range fingerprint.Modalities() {
		out = append(out, fingerprint.Sample{
			Modality:   m,
			Features:   liveFeatures(shifts[m], scale),
			CapturedAt: capturedAt,
		})
	}
	return out
}

func newTestOrchestrator(backend template.Backend) *Orchestrator {
	return NewOrchestrator(DefaultConfig(), DefaultComponents(), backend, nil, nil)
}

func mustEnroll(t *testing.T, o *Orchestrator, agentID string, samples []fingerprint.Sample) template.Template {
	t.Helper()
	tmpl, err := o.Enroll(context.Background(), agentID, samples)
	require.NoError(t, err)
	return tmpl
}

// blockedBackend stalls every Load until the caller's deadline fires.
type blockedBackend struct {
	template.Backend
}

func (b blockedBackend) Load(ctx context.Context, agentID string) (template.Template, error) {
	<-ctx.Done()
	return template.Template{}, ctx.Err()
}

// #endregion helpers

// #region authenticate-tests

func TestAuthenticateVerifiedClaim(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-1",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	assert.Equal(t, "agent-1", d.AgentID)
	assert.InDelta(t, 1.0, d.Similarity, 1e-9)
	require.NotNil(t, d.Validation)
	assert.True(t, d.Validation.Passed)
	assert.Equal(t, evolve.ActionNoOp, d.Evolution)
	assert.False(t, d.DecidedAt.IsZero())

	// Confidence is the fused confidence scaled by an exact match.
	fp, err := fusion.New(DefaultComponents().Fusion).Fuse(samplesAt(0, 1), fusion.Context{}, capturedAt)
	require.NoError(t, err)
	assert.InDelta(t, fp.Confidence, d.Confidence, 1e-9)
}

func TestAuthenticateIdentifiesWithoutClaim(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))
	mustEnroll(t, o, "agent-2", samplesAt(0.5, 1))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:      "att-2",
		Samples: samplesAt(0, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	assert.Equal(t, "agent-1", d.AgentID)
	assert.InDelta(t, 1.0, d.Similarity, 1e-9)
}

func TestAuthenticateInsufficientModalities(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:      "att-3",
		Samples: samplesAt(0, 1)[:1],
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInsufficient, d.Outcome)
	assert.Empty(t, d.AgentID)
	assert.Equal(t, -1.0, d.Similarity)
	assert.Nil(t, d.Validation)
}

func TestAuthenticateUnknownClaim(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-4",
		AgentClaim: "ghost",
		Samples:    samplesAt(0, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, d.Outcome)
	assert.Contains(t, d.Reason, "not enrolled")
	assert.Equal(t, -1.0, d.Similarity)
}

func TestAuthenticateTimeout(t *testing.T) {
	mem := template.NewMemoryBackend(10)
	o := newTestOrchestrator(blockedBackend{mem})
	// Enroll through the inner backend so only Load stalls.
	_, err := NewOrchestrator(DefaultConfig(), DefaultComponents(), mem, nil, nil).
		Enroll(context.Background(), "agent-1", samplesAt(0, 1))
	require.NoError(t, err)

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-5",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1),
	})
	require.ErrorIs(t, err, ErrIdentificationTimeout)
	assert.Equal(t, OutcomeTimeout, d.Outcome)
	assert.Equal(t, -1.0, d.Similarity)
}

func TestAuthenticateRejectsTemplateJump(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	// Build a short history of accepted attempts at the baseline level.
	for i := 0; i < 3; i++ {
		d, err := o.Authenticate(context.Background(), Attempt{
			ID:         "warm",
			AgentClaim: "agent-1",
			Samples:    samplesAt(0, 1),
		})
		require.NoError(t, err)
		require.Equal(t, OutcomeAuthenticated, d.Outcome)
	}

	// A 1.3x level jump with no evolution behind it fails consistency.
	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-6",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1.3),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, d.Outcome)
	require.NotNil(t, d.Validation)
	assert.False(t, d.Validation.Passed)
	assert.Equal(t, "temporal", d.Validation.FailedCheck)
	assert.Contains(t, d.Reason, "temporal")
}

func TestAuthenticateEvolvesOnDrift(t *testing.T) {
	comp := DefaultComponents()
	comp.Evolve.MinTrendRun = 1
	backend := template.NewMemoryBackend(10)
	o := NewOrchestrator(DefaultConfig(), comp, backend, nil, nil)
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-7",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1.15),
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	assert.Equal(t, evolve.ActionEvolved, d.Evolution)

	tmpl, err := backend.Load(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tmpl.EvolutionCount)
}

// #endregion authenticate-tests

// #region maintenance-tests

func TestRollbackRestoresBaseline(t *testing.T) {
	comp := DefaultComponents()
	comp.Evolve.MinTrendRun = 1
	backend := template.NewMemoryBackend(10)
	o := NewOrchestrator(DefaultConfig(), comp, backend, nil, nil)
	baseline := mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-8",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1.15),
	})
	require.NoError(t, err)
	require.Equal(t, evolve.ActionEvolved, d.Evolution)

	history, err := backend.LoadHistory(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	restored, err := o.Rollback(context.Background(), "agent-1", history[0].HistoryID)
	require.NoError(t, err)
	assert.Equal(t, baseline.Vector, restored.Vector)
	assert.Equal(t, int64(0), restored.EvolutionCount)

	// The restored template authenticates the original behavior again.
	d, err = o.Authenticate(context.Background(), Attempt{
		ID:         "att-9",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	assert.InDelta(t, 1.0, d.Similarity, 1e-9)
}

func TestEnrollDuplicate(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	_, err := o.Enroll(context.Background(), "agent-1", samplesAt(0, 1))
	require.ErrorIs(t, err, template.ErrExists)
}

func TestRebuildWarmsIndex(t *testing.T) {
	backend := template.NewMemoryBackend(10)
	seed := newTestOrchestrator(backend)
	mustEnroll(t, seed, "agent-1", samplesAt(0, 1))
	mustEnroll(t, seed, "agent-2", samplesAt(0.5, 1))

	// A fresh orchestrator starts with an empty index.
	o := newTestOrchestrator(backend)
	indexed, _ := o.Stats()
	require.Zero(t, indexed)

	n, err := o.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := o.Authenticate(context.Background(), Attempt{
		ID:      "att-10",
		Samples: samplesAt(0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	assert.Equal(t, "agent-1", d.AgentID)
}

// #endregion maintenance-tests

// #region sink-tests

func TestDecisionSinkDelivery(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	got := make(chan Decision, 1)
	o.OnDecision(func(Decision) { panic("misbehaving sink") })
	o.OnDecision(func(d Decision) { got <- d })

	_, err := o.Authenticate(context.Background(), Attempt{
		ID:         "att-11",
		AgentClaim: "agent-1",
		Samples:    samplesAt(0, 1),
	})
	require.NoError(t, err)

	select {
	case d := <-got:
		assert.Equal(t, "att-11", d.ID)
		assert.Equal(t, OutcomeAuthenticated, d.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the decision")
	}
}

func TestAuditSinkWritesRow(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE decision_log (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id     TEXT NOT NULL,
		agent_id        TEXT,
		outcome         TEXT NOT NULL,
		confidence      REAL NOT NULL,
		similarity      REAL,
		validation_json TEXT,
		evolution       TEXT,
		reason          TEXT,
		latency_ns      INTEGER NOT NULL,
		digest          TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`)
	require.NoError(t, err)

	sink := NewAuditSink(db, nil)
	sink(Decision{
		ID:         "d-1",
		AgentID:    "agent-1",
		Outcome:    OutcomeAuthenticated,
		Confidence: 0.91,
		Similarity: 0.97,
		Validation: &gate.ValidationResult{Overall: 0.88, Passed: true},
		Evolution:  evolve.ActionNoOp,
		Reason:     "matched enrolled template",
		DecidedAt:  time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		Latency:    800 * time.Microsecond,
	})

	var outcome, agentID, validationJSON, digest string
	err = db.QueryRow("SELECT outcome, agent_id, validation_json, digest FROM decision_log").
		Scan(&outcome, &agentID, &validationJSON, &digest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, outcome)
	assert.Equal(t, "agent-1", agentID)
	assert.Contains(t, validationJSON, `"passed":true`)
	assert.Len(t, digest, 64)
}

// #endregion sink-tests
