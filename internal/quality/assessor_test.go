package quality

import (
	"math"
	"testing"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
)

// mixedFeatures returns a 32-slot vector with one dominant level plus a
// spread tail, giving mid-band entropy the way live behavior does.
func mixedFeatures() []float32 {
	features := make([]float32, 32)
	for i := 0; i < 16; i++ {
		features[i] = 0.5
	}
	for i := 16; i < 32; i++ {
		features[i] = float32(i-16) * 0.05
	}
	return features
}

func TestAssessHealthySample(t *testing.T) {
	a := New(DefaultConfig())
	score := a.Assess(fingerprint.Sample{Modality: fingerprint.Timing, Features: mixedFeatures()}, nil)

	if score.Completeness != 1.0 {
		t.Errorf("completeness = %v, want 1", score.Completeness)
	}
	if score.Consistency != 1.0 {
		t.Errorf("lone-sample consistency = %v, want 1", score.Consistency)
	}
	if score.SignalToNoise < 0.5 {
		t.Errorf("snr = %v, want mid-band > 0.5", score.SignalToNoise)
	}
	if score.Distinctiveness < 0.4 || score.Distinctiveness > 0.95 {
		t.Errorf("distinctiveness = %v, want mid-band", score.Distinctiveness)
	}
	if score.Reliability < 0.7 {
		t.Errorf("reliability = %v, want > 0.7", score.Reliability)
	}
}

func TestCompletenessShortAndNaN(t *testing.T) {
	a := New(DefaultConfig())

	short := make([]float32, 16)
	for i := range short {
		short[i] = float32(i)
	}
	score := a.Assess(fingerprint.Sample{Modality: fingerprint.Memory, Features: short}, nil)
	if score.Completeness != 0.5 {
		t.Errorf("16/32 slots completeness = %v, want 0.5", score.Completeness)
	}

	holed := mixedFeatures()
	holed[0] = float32(math.NaN())
	holed[1] = float32(math.Inf(1))
	score = a.Assess(fingerprint.Sample{Modality: fingerprint.Memory, Features: holed}, nil)
	if want := 30.0 / 32.0; math.Abs(score.Completeness-want) > 1e-9 {
		t.Errorf("completeness with 2 bad slots = %v, want %v", score.Completeness, want)
	}
}

func TestConstantVectorScoresZeroReliability(t *testing.T) {
	a := New(DefaultConfig())
	flat := make([]float32, 32)
	for i := range flat {
		flat[i] = 0.7
	}
	score := a.Assess(fingerprint.Sample{Modality: fingerprint.Sequence, Features: flat}, nil)

	if score.SignalToNoise != 0 {
		t.Errorf("flat snr = %v, want 0", score.SignalToNoise)
	}
	if score.Distinctiveness != 0 {
		t.Errorf("flat distinctiveness = %v, want 0", score.Distinctiveness)
	}
	if score.Reliability != 0 {
		t.Errorf("flat reliability = %v, want 0", score.Reliability)
	}
}

func TestConsistencyAgainstPeers(t *testing.T) {
	a := New(DefaultConfig())
	base := fingerprint.Sample{Modality: fingerprint.Timing, Features: mixedFeatures()}

	agreeing := []fingerprint.Sample{
		{Modality: fingerprint.Timing, Features: mixedFeatures()},
		{Modality: fingerprint.Timing, Features: mixedFeatures()},
	}
	agree := a.Assess(base, agreeing).Consistency
	if agree < 0.99 {
		t.Errorf("identical peers consistency = %v, want ~1", agree)
	}

	divergent := make([]float32, 32)
	for i := range divergent {
		divergent[i] = float32(i)*3 + 5
	}
	disagree := a.Assess(base, []fingerprint.Sample{
		{Modality: fingerprint.Timing, Features: divergent},
	}).Consistency
	if disagree >= agree {
		t.Errorf("divergent peers consistency %v not below agreeing %v", disagree, agree)
	}
	if disagree > 0.6 {
		t.Errorf("divergent peers consistency = %v, want < 0.6", disagree)
	}
}

func TestHintScalesReliability(t *testing.T) {
	a := New(DefaultConfig())
	full := a.Assess(fingerprint.Sample{Modality: fingerprint.Timing, Features: mixedFeatures()}, nil)
	hinted := a.Assess(fingerprint.Sample{Modality: fingerprint.Timing, Features: mixedFeatures(), Hint: 0.5}, nil)

	if want := full.Reliability * 0.5; math.Abs(hinted.Reliability-want) > 1e-9 {
		t.Errorf("hinted reliability = %v, want %v", hinted.Reliability, want)
	}
}

func TestAssessDeterministic(t *testing.T) {
	a := New(DefaultConfig())
	s := fingerprint.Sample{Modality: fingerprint.Resource, Features: mixedFeatures()}
	first := a.Assess(s, nil)
	second := a.Assess(s, nil)
	if first != second {
		t.Fatalf("assessment not deterministic: %+v vs %+v", first, second)
	}
}
