package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

func TestPoolProcessesQueuedAttempts(t *testing.T) {
	o := newTestOrchestrator(template.NewMemoryBackend(10))
	mustEnroll(t, o, "agent-1", samplesAt(0, 1))

	decisions := make(chan Decision, 16)
	o.OnDecision(func(d Decision) { decisions <- d })

	pool := NewPool(o)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(ctx, Attempt{
			ID:         fmt.Sprintf("att-%d", i),
			AgentClaim: "agent-1",
			Samples:    samplesAt(0, 1),
		}))
	}

	for i := 0; i < 5; i++ {
		select {
		case d := <-decisions:
			assert.Equal(t, OutcomeAuthenticated, d.Outcome)
			assert.Equal(t, "agent-1", d.AgentID)
		case <-time.After(2 * time.Second):
			t.Fatalf("decision %d never arrived", i)
		}
	}

	cancel()
	pool.Wait()
	assert.Zero(t, pool.Backlog())
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueDepth = 1
	o := NewOrchestrator(cfg, DefaultComponents(), template.NewMemoryBackend(10), nil, nil)

	// No workers running, so the single queue slot fills up.
	pool := NewPool(o)
	require.NoError(t, pool.Submit(context.Background(), Attempt{ID: "fits"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, Attempt{ID: "blocked"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pool.Backlog())
}
