package fusion

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
)

var fuseAt = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// liveFeatures returns a 32-slot vector with a dominant level plus a
// spread tail, shifted per modality so segments differ.
func liveFeatures(shift float32) []float32 {
	features := make([]float32, 32)
	for i := 0; i < 16; i++ {
		features[i] = 0.5 + shift
	}
	for i := 16; i < 32; i++ {
		features[i] = float32(i-16)*0.05 + shift
	}
	return features
}

func sampleFor(m fingerprint.Modality, shift float32, hint float64) fingerprint.Sample {
	return fingerprint.Sample{
		Modality:   m,
		Features:   liveFeatures(shift),
		CapturedAt: fuseAt.Add(-5 * time.Millisecond),
		Hint:       hint,
	}
}

func allModalitySamples() []fingerprint.Sample {
	return []fingerprint.Sample{
		sampleFor(fingerprint.Timing, 0, 0),
		sampleFor(fingerprint.Resource, 0.1, 0),
		sampleFor(fingerprint.Memory, 0.2, 0),
		sampleFor(fingerprint.Sequence, 0.3, 0),
	}
}

func TestFuseWeightsSumToOne(t *testing.T) {
	e := New(DefaultConfig())
	c, err := e.Fuse(allModalitySamples(), Context{}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	var sum float64
	for _, w := range c.Weights {
		if w <= 0 {
			t.Errorf("non-positive weight %v", w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("weight sum = %v, want 1 ± 1e-6", sum)
	}
}

func TestFuseDeterministic(t *testing.T) {
	e := New(DefaultConfig())
	first, err := e.Fuse(allModalitySamples(), Context{AgentClaim: "agent-1"}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	second, err := e.Fuse(allModalitySamples(), Context{AgentClaim: "agent-1"}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if first.Vector != second.Vector {
		t.Fatal("composite vectors are not bit-identical")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("composites differ: %+v vs %+v", first, second)
	}
}

func TestFuseReliabilityDominatesWeight(t *testing.T) {
	// Two modalities with identical signal but hints 0.9 and 0.1: the
	// strong channel must end up above 0.8 after normalization.
	cfg := DefaultConfig()
	cfg.ReliabilityFloor = 0
	cfg.MinModalities = 2
	e := New(cfg)

	c, err := e.Fuse([]fingerprint.Sample{
		sampleFor(fingerprint.Timing, 0, 0.9),
		sampleFor(fingerprint.Resource, 0, 0.1),
	}, Context{}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if w := c.Weights[fingerprint.Timing]; w <= 0.8 {
		t.Errorf("strong-channel weight = %v, want > 0.8", w)
	}
	if len(c.Weights) != 2 {
		t.Errorf("contributing modalities = %d, want 2", len(c.Weights))
	}
}

func TestFuseInsufficientModalities(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Fuse([]fingerprint.Sample{sampleFor(fingerprint.Timing, 0, 0)}, Context{}, fuseAt)
	if !errors.Is(err, ErrInsufficientModalities) {
		t.Fatalf("err = %v, want ErrInsufficientModalities", err)
	}
	var detail *InsufficientModalitiesError
	if !errors.As(err, &detail) {
		t.Fatalf("err %T carries no detail", err)
	}
	if detail.Reliable != 1 || detail.Required != 2 {
		t.Errorf("detail = %d/%d, want 1/2", detail.Reliable, detail.Required)
	}
	if _, ok := detail.Reliabilities[fingerprint.Timing]; !ok {
		t.Error("detail missing timing reliability")
	}
}

func TestFuseExcludesBelowFloor(t *testing.T) {
	e := New(DefaultConfig())
	samples := []fingerprint.Sample{
		sampleFor(fingerprint.Timing, 0, 0),
		sampleFor(fingerprint.Resource, 0.1, 0),
		sampleFor(fingerprint.Memory, 0.2, 0.1), // reliability ~0.09, below 0.3 floor
	}
	c, err := e.Fuse(samples, Context{}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if _, ok := c.Weights[fingerprint.Memory]; ok {
		t.Fatal("below-floor modality still carries weight")
	}
	seg, _ := fingerprint.Segment(fingerprint.Memory)
	for i := seg[0]; i < seg[1]; i++ {
		if c.Vector[i] != 0 {
			t.Fatalf("excluded modality wrote slot %d = %v", i, c.Vector[i])
		}
	}
	var sum float64
	for _, w := range c.Weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("weight sum after exclusion = %v, want 1", sum)
	}
}

func TestFuseConfidence(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	samples := []fingerprint.Sample{
		sampleFor(fingerprint.Timing, 0, 0),
		sampleFor(fingerprint.Resource, 0.1, 0),
	}
	c, err := e.Fuse(samples, Context{}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}

	// Recompute the expectation from the same quality pipeline.
	assessor := quality.New(cfg.Quality)
	var invHarmonic float64
	for _, s := range samples {
		rel := assessor.Assess(s, nil).Reliability
		invHarmonic += c.Weights[s.Modality] / rel
	}
	want := (1.0 / invHarmonic) * math.Sqrt(2.0/4.0)
	if math.Abs(c.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", c.Confidence, want)
	}

	full, err := e.Fuse(allModalitySamples(), Context{}, fuseAt)
	if err != nil {
		t.Fatalf("fuse full: %v", err)
	}
	if full.Confidence <= c.Confidence {
		t.Errorf("full coverage confidence %v not above degraded %v", full.Confidence, c.Confidence)
	}
}

func TestFuseContextTrustShiftsWeights(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	samples := []fingerprint.Sample{
		sampleFor(fingerprint.Timing, 0, 0),
		sampleFor(fingerprint.Resource, 0, 0),
	}
	ctx := Context{Trust: map[fingerprint.Modality]float64{fingerprint.Resource: 0.5}}
	c, err := e.Fuse(samples, ctx, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	// Identical signal, so weights follow trust: 1 vs 0.5 gives 2/3 vs 1/3.
	if math.Abs(c.Weights[fingerprint.Timing]-2.0/3.0) > 1e-9 {
		t.Errorf("timing weight = %v, want 2/3", c.Weights[fingerprint.Timing])
	}
	if math.Abs(c.Weights[fingerprint.Resource]-1.0/3.0) > 1e-9 {
		t.Errorf("resource weight = %v, want 1/3", c.Weights[fingerprint.Resource])
	}
}

func TestFuseStampsClaimAndTime(t *testing.T) {
	e := New(DefaultConfig())
	c, err := e.Fuse(allModalitySamples(), Context{AgentClaim: "agent-42"}, fuseAt)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if c.AgentClaim != "agent-42" {
		t.Errorf("claim = %q, want agent-42", c.AgentClaim)
	}
	if !c.GeneratedAt.Equal(fuseAt) {
		t.Errorf("generated at = %v, want %v", c.GeneratedAt, fuseAt)
	}
}
