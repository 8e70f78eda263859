package match

import (
	"context"
	"errors"
	mathbits "math/bits"
	"testing"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/clock"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func halfVector(firstHalf bool) [fingerprint.Dim]float32 {
	var v [fingerprint.Dim]float32
	start, end := 0, fingerprint.Dim/2
	if !firstHalf {
		start, end = fingerprint.Dim/2, fingerprint.Dim
	}
	for i := start; i < end; i++ {
		v[i] = 1.0
	}
	return v
}

func rampVector(scale float32) [fingerprint.Dim]float32 {
	var v [fingerprint.Dim]float32
	for i := range v {
		v[i] = scale * (0.1 + float32(i)*0.01)
	}
	return v
}

func composite(claim string, v [fingerprint.Dim]float32) fingerprint.Composite {
	return fingerprint.Composite{
		AgentClaim:  claim,
		Vector:      v,
		Weights:     map[fingerprint.Modality]float64{fingerprint.Timing: 1},
		Confidence:  0.9,
		GeneratedAt: testEpoch,
	}
}

func enroll(t *testing.T, b template.Backend, id string, v [fingerprint.Dim]float32, evolved time.Time) {
	t.Helper()
	err := b.Enroll(context.Background(), template.Template{
		AgentID:       id,
		Vector:        v,
		CreatedAt:     evolved,
		LastEvolvedAt: evolved,
		Stability:     1,
	})
	if err != nil {
		t.Fatalf("enroll %s: %v", id, err)
	}
}

func TestSignatureDeterministic(t *testing.T) {
	a := NewIndex(16, 2, 42)
	b := NewIndex(16, 2, 42)
	v := rampVector(1)

	if a.signature(v) != b.signature(v) {
		t.Fatal("same seed must yield same signature")
	}

	var neg [fingerprint.Dim]float32
	for i := range v {
		neg[i] = -v[i]
	}
	if a.signature(v) == a.signature(neg) {
		t.Fatal("opposite vectors must not share a signature")
	}
}

func TestRingMasks(t *testing.T) {
	if got := ringMasks(16, 0); len(got) != 1 || got[0] != 0 {
		t.Fatalf("weight 0: expected [0], got %v", got)
	}
	if got := ringMasks(16, 1); len(got) != 16 {
		t.Fatalf("weight 1: expected 16 masks, got %d", len(got))
	}
	masks := ringMasks(16, 2)
	if len(masks) != 120 {
		t.Fatalf("weight 2: expected 120 masks, got %d", len(masks))
	}
	for _, m := range masks {
		if mathbits.OnesCount32(m) != 2 {
			t.Fatalf("mask %b has wrong weight", m)
		}
	}
}

func TestRingBound(t *testing.T) {
	x := NewIndex(16, 2, 42)
	if x.ringBound(0) != 1 || x.ringBound(1) != 1 {
		t.Fatal("rings within slack must bound at 1")
	}
	prev := 1.0
	for h := 2; h <= 8; h++ {
		b := x.ringBound(h)
		if b >= prev {
			t.Fatalf("bound must decrease with ring distance: ring %d bound %f", h, b)
		}
		prev = b
	}
}

func TestIndexInsertProbeRemove(t *testing.T) {
	x := NewIndex(16, 2, 42)
	v := rampVector(1)

	x.Insert("a", v)
	if x.Len() != 1 {
		t.Fatalf("expected 1 indexed, got %d", x.Len())
	}
	hits := x.probe(v, 8)
	if len(hits) != 1 || hits[0].agentID != "a" || hits[0].ring != 0 {
		t.Fatalf("expected own bucket hit at ring 0, got %+v", hits)
	}

	// Re-inserting moves, never duplicates.
	x.Insert("a", halfVector(true))
	if x.Len() != 1 {
		t.Fatalf("expected 1 indexed after update, got %d", x.Len())
	}

	x.Remove("a")
	if x.Len() != 0 {
		t.Fatalf("expected empty index, got %d", x.Len())
	}
	if hits := x.probe(v, 8); len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestProbeHonorsLimit(t *testing.T) {
	x := NewIndex(16, 2, 42)
	v := rampVector(1)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		x.Insert(id, v)
	}
	hits := x.probe(v, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	// Bucket order is insertion order.
	for i, want := range []string{"a", "b", "c"} {
		if hits[i].agentID != want {
			t.Fatalf("hit %d: expected %s, got %s", i, want, hits[i].agentID)
		}
	}
}

func TestIdentifyExactMatch(t *testing.T) {
	b := template.NewMemoryBackend(10)
	m := NewMatcher(DefaultConfig(), b, nil)

	vecs := map[string][fingerprint.Dim]float32{
		"alpha": halfVector(true),
		"beta":  halfVector(false),
		"gamma": rampVector(1),
	}
	for id, v := range vecs {
		enroll(t, b, id, v, testEpoch)
		m.Insert(id, v)
	}

	res, err := m.Identify(context.Background(), composite("", vecs["alpha"]), 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Best.AgentID != "alpha" {
		t.Fatalf("expected alpha, got %s", res.Best.AgentID)
	}
	if res.Best.Similarity < 0.999 {
		t.Fatalf("expected near-perfect similarity, got %f", res.Best.Similarity)
	}
	for i, c := range res.Candidates {
		if c.Similarity < DefaultConfig().AcceptFloor {
			t.Fatalf("candidate %s below floor: %f", c.AgentID, c.Similarity)
		}
		if i > 0 && c.Similarity > res.Candidates[i-1].Similarity {
			t.Fatal("candidates not sorted descending")
		}
	}
}

func TestIdentifyEmptyPopulation(t *testing.T) {
	b := template.NewMemoryBackend(10)
	m := NewMatcher(DefaultConfig(), b, nil)

	_, err := m.Identify(context.Background(), composite("", rampVector(1)), 0)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestIdentifyNothingAboveFloor(t *testing.T) {
	b := template.NewMemoryBackend(10)
	m := NewMatcher(DefaultConfig(), b, nil)

	enroll(t, b, "alpha", halfVector(true), testEpoch)
	m.Insert("alpha", halfVector(true))

	// Orthogonal query: similarity 0 if scored, or not probed at all.
	res, err := m.Identify(context.Background(), composite("", halfVector(false)), 0)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(res.Candidates))
	}
}

func TestVerifyClaim(t *testing.T) {
	b := template.NewMemoryBackend(10)
	m := NewMatcher(DefaultConfig(), b, nil)

	enroll(t, b, "alpha", halfVector(true), testEpoch)

	res, err := m.Identify(context.Background(), composite("alpha", halfVector(true)), 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Best.AgentID != "alpha" || res.Scored != 1 || res.Probed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Claim by an agent whose behavior does not match.
	_, err = m.Identify(context.Background(), composite("alpha", halfVector(false)), 0)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates for impostor claim, got %v", err)
	}

	// Claim for an unknown agent.
	_, err = m.Identify(context.Background(), composite("ghost", halfVector(true)), 0)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates for unknown claim, got %v", err)
	}
}

func TestIdentifyCacheHit(t *testing.T) {
	b := template.NewMemoryBackend(10)
	clk := clock.Fake(testEpoch)
	m := NewMatcher(DefaultConfig(), b, clk)

	enroll(t, b, "alpha", rampVector(1), testEpoch)
	m.Insert("alpha", rampVector(1))

	fp := composite("", rampVector(1))
	first, err := m.Identify(context.Background(), fp, 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first call must not be a cache hit")
	}

	second, err := m.Identify(context.Background(), fp, 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("identical burst must be served from cache")
	}
	if second.Best != first.Best {
		t.Fatalf("cached best differs: %+v vs %+v", second.Best, first.Best)
	}

	clk.Advance(3 * time.Second)
	third, err := m.Identify(context.Background(), fp, 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if third.CacheHit {
		t.Fatal("expired entry must not be served")
	}
}

func TestTieBreakPrefersRecentlyEvolved(t *testing.T) {
	b := template.NewMemoryBackend(10)
	m := NewMatcher(DefaultConfig(), b, nil)

	v := rampVector(1)
	enroll(t, b, "old", v, testEpoch)
	enroll(t, b, "new", v, testEpoch.Add(time.Hour))
	m.Insert("old", v)
	m.Insert("new", v)

	res, err := m.Identify(context.Background(), composite("", v), 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Best.AgentID != "new" {
		t.Fatalf("tie must prefer the more recently evolved template, got %s", res.Best.AgentID)
	}
}

type corruptingBackend struct {
	template.Backend
	corrupt map[string]bool
}

func (c *corruptingBackend) Load(ctx context.Context, agentID string) (template.Template, error) {
	if c.corrupt[agentID] {
		return template.Template{}, template.ErrCorrupt
	}
	return c.Backend.Load(ctx, agentID)
}

func TestIdentifyQuarantinesCorrupt(t *testing.T) {
	mem := template.NewMemoryBackend(10)
	b := &corruptingBackend{Backend: mem, corrupt: map[string]bool{"bad": true}}
	m := NewMatcher(DefaultConfig(), b, nil)

	v := rampVector(1)
	enroll(t, mem, "bad", v, testEpoch)
	enroll(t, mem, "good", v, testEpoch)
	m.Insert("bad", v)
	m.Insert("good", v)

	res, err := m.Identify(context.Background(), composite("", v), 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Best.AgentID != "good" {
		t.Fatalf("expected good, got %s", res.Best.AgentID)
	}
	if res.Dropped != 1 {
		t.Fatalf("expected 1 dropped candidate, got %d", res.Dropped)
	}
	if indexed, _ := m.Stats(); indexed != 1 {
		t.Fatalf("corrupt template must leave the index, got %d indexed", indexed)
	}
}

func TestRebuildSkipsCorrupt(t *testing.T) {
	mem := template.NewMemoryBackend(10)
	b := &corruptingBackend{Backend: mem, corrupt: map[string]bool{"bad": true}}
	m := NewMatcher(DefaultConfig(), b, nil)

	enroll(t, mem, "bad", halfVector(true), testEpoch)
	enroll(t, mem, "good", halfVector(false), testEpoch)

	indexed, err := m.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if indexed != 1 {
		t.Fatalf("expected 1 indexed, got %d", indexed)
	}
}

func TestStopEarlyBounds(t *testing.T) {
	m := NewMatcher(DefaultConfig(), template.NewMemoryBackend(10), nil)

	// Near ring bounds stay above any reachable best, far rings cannot win.
	if m.stopEarly(0.96, 2) {
		t.Fatal("ring 2 bound still exceeds best, must keep scoring")
	}
	if !m.stopEarly(0.96, 5) {
		t.Fatal("ring 5 cannot outrank 0.96, must stop")
	}
	if m.stopEarly(0.90, 5) {
		t.Fatal("below the high-confidence threshold scoring continues")
	}

	euclid := DefaultConfig()
	euclid.Metric = MetricEuclidean
	me := NewMatcher(euclid, template.NewMemoryBackend(10), nil)
	if me.stopEarly(0.99, 8) {
		t.Fatal("euclidean metric has no ring bound, must never stop early")
	}
}

func TestResultCache(t *testing.T) {
	c := newResultCache(2, 2*time.Second)
	now := testEpoch
	k1 := [32]byte{1}
	k2 := [32]byte{2}
	k3 := [32]byte{3}

	c.put(k1, Result{Scored: 1}, now)
	c.put(k2, Result{Scored: 2}, now)

	if _, ok := c.get(k1, now); !ok {
		t.Fatal("expected k1 hit")
	}
	// k1 was just touched, so inserting k3 evicts k2.
	c.put(k3, Result{Scored: 3}, now)
	if _, ok := c.get(k2, now); ok {
		t.Fatal("expected k2 evicted")
	}
	if _, ok := c.get(k1, now); !ok {
		t.Fatal("expected k1 retained")
	}

	if _, ok := c.get(k1, now.Add(3*time.Second)); ok {
		t.Fatal("expected k1 expired")
	}
	if c.len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", c.len())
	}
}
