package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/fusion"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
	"github.com/mlindqvist/agentprint/go-engine/internal/match"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
)

// #endregion imports

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string              `json:"description"`
	Config      FixtureConfig       `json:"config"`
	Enrollments []FixtureEnrollment `json:"enrollments"`
	Attempts    []FixtureAttempt    `json:"attempts"`
	Expected    []FixtureExpected   `json:"expected_results"`
}

// FixtureEnrollment seeds one agent template before the attempts run.
type FixtureEnrollment struct {
	AgentID string          `json:"agent_id"`
	Samples []FixtureSample `json:"samples"`
}

// FixtureSample mirrors fingerprint.Sample with JSON tags.
type FixtureSample struct {
	Modality   string    `json:"modality"`
	Features   []float32 `json:"features"`
	Hint       float64   `json:"hint,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// FixtureAttempt mirrors auth.Attempt with JSON tags.
type FixtureAttempt struct {
	ID      string             `json:"attempt_id"`
	Claim   string             `json:"agent_claim,omitempty"`
	Trust   map[string]float64 `json:"trust,omitempty"`
	Samples []FixtureSample    `json:"samples"`
}

// FixtureExpected captures the expected decision per attempt. Evolution
// is only compared when non-empty.
type FixtureExpected struct {
	AttemptID string `json:"attempt_id"`
	Outcome   string `json:"outcome"`
	Evolution string `json:"evolution,omitempty"`
}

// FixtureConfig bundles the component configs for a replay run.
type FixtureConfig struct {
	HistoryCap int                     `json:"history_cap"`
	Fusion     FixtureFusionConfig     `json:"fusion"`
	Matching   FixtureMatchingConfig   `json:"matching"`
	Validation FixtureValidationConfig `json:"validation"`
	Evolution  FixtureEvolutionConfig  `json:"evolution"`
}

// FixtureFusionConfig mirrors fusion.Config, quality knobs inlined.
type FixtureFusionConfig struct {
	BaseWeights      map[string]float64 `json:"base_weights"`
	MinModalities    int                `json:"min_modalities"`
	ReliabilityFloor float64            `json:"reliability_floor"`
	EntropyBins      int                `json:"entropy_bins"`
	CompletenessExp  float64            `json:"completeness_exp"`
	ConsistencyExp   float64            `json:"consistency_exp"`
	SNRExp           float64            `json:"snr_exp"`
	DistinctExp      float64            `json:"distinct_exp"`
}

// FixtureMatchingConfig mirrors match.Config with JSON tags.
type FixtureMatchingConfig struct {
	Metric         string  `json:"metric"`
	AcceptFloor    float64 `json:"accept_floor"`
	HighConfidence float64 `json:"high_confidence"`
	MaxCandidates  int     `json:"max_candidates"`
	ProjectionBits int     `json:"projection_bits"`
	ProbeRadius    int     `json:"probe_radius"`
	CacheSize      int     `json:"cache_size"`
	CacheTTLMs     int     `json:"cache_ttl_ms"`
	Seed           uint64  `json:"seed"`
}

// FixtureValidationConfig mirrors gate.Config with JSON tags.
type FixtureValidationConfig struct {
	Threshold          float64 `json:"threshold"`
	Forensic           bool    `json:"forensic"`
	WindowSize         int     `json:"window_size"`
	EntropyBins        int     `json:"entropy_bins"`
	EntropyFloor       float64 `json:"entropy_floor"`
	EntropyCeiling     float64 `json:"entropy_ceiling"`
	MaxJump            float64 `json:"max_jump"`
	MinCorrelation     float64 `json:"min_correlation"`
	DecorrelationBound float64 `json:"decorrelation_bound"`
}

// FixtureEvolutionConfig mirrors evolve.Config with JSON tags.
type FixtureEvolutionConfig struct {
	DriftFloor   float64 `json:"drift_floor"`
	DriftCeiling float64 `json:"drift_ceiling"`
	MinTrendRun  int     `json:"min_trend_run"`
	Smoothing    float64 `json:"smoothing"`
}

// #endregion fixture-types

// #region fixture-io

// LoadFixture reads, parses, and sanity-checks a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes a fixture as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// check rejects modality names the engine has no segment for; a typo'd
// channel would otherwise surface as a confusing min-modality failure.
func (f *Fixture) check() error {
	for _, e := range f.Enrollments {
		for _, s := range e.Samples {
			if _, ok := fingerprint.Segment(fingerprint.Modality(s.Modality)); !ok {
				return fmt.Errorf("enrollment %s: unknown modality %q", e.AgentID, s.Modality)
			}
		}
	}
	for _, a := range f.Attempts {
		for _, s := range a.Samples {
			if _, ok := fingerprint.Segment(fingerprint.Modality(s.Modality)); !ok {
				return fmt.Errorf("attempt %s: unknown modality %q", a.ID, s.Modality)
			}
		}
	}
	return nil
}

// #endregion fixture-io

// #region converters

// ToSample converts to a domain sample.
func (s *FixtureSample) ToSample() fingerprint.Sample {
	return fingerprint.Sample{
		Modality:   fingerprint.Modality(s.Modality),
		Features:   s.Features,
		Hint:       s.Hint,
		CapturedAt: s.CapturedAt,
	}
}

// ToAttempt converts to a domain attempt.
func (a *FixtureAttempt) ToAttempt() auth.Attempt {
	samples := make([]fingerprint.Sample, len(a.Samples))
	for i := range a.Samples {
		samples[i] = a.Samples[i].ToSample()
	}
	var trust map[fingerprint.Modality]float64
	if len(a.Trust) > 0 {
		trust = make(map[fingerprint.Modality]float64, len(a.Trust))
		for m, v := range a.Trust {
			trust[fingerprint.Modality(m)] = v
		}
	}
	return auth.Attempt{
		ID:         a.ID,
		AgentClaim: a.Claim,
		Samples:    samples,
		Trust:      trust,
	}
}

// ToComponents converts the fixture config to the component configs.
func (fc *FixtureConfig) ToComponents() auth.Components {
	base := make(map[fingerprint.Modality]float64, len(fc.Fusion.BaseWeights))
	for m, w := range fc.Fusion.BaseWeights {
		base[fingerprint.Modality(m)] = w
	}
	return auth.Components{
		Fusion: fusion.Config{
			BaseWeights:      base,
			MinModalities:    fc.Fusion.MinModalities,
			ReliabilityFloor: fc.Fusion.ReliabilityFloor,
			Quality: quality.Config{
				EntropyBins:     fc.Fusion.EntropyBins,
				CompletenessExp: fc.Fusion.CompletenessExp,
				ConsistencyExp:  fc.Fusion.ConsistencyExp,
				SNRExp:          fc.Fusion.SNRExp,
				DistinctExp:     fc.Fusion.DistinctExp,
			},
		},
		Match: match.Config{
			Metric:         match.Metric(fc.Matching.Metric),
			AcceptFloor:    fc.Matching.AcceptFloor,
			HighConfidence: fc.Matching.HighConfidence,
			MaxCandidates:  fc.Matching.MaxCandidates,
			ProjectionBits: fc.Matching.ProjectionBits,
			ProbeRadius:    fc.Matching.ProbeRadius,
			CacheSize:      fc.Matching.CacheSize,
			CacheTTL:       time.Duration(fc.Matching.CacheTTLMs) * time.Millisecond,
			Seed:           fc.Matching.Seed,
		},
		Gate: gate.Config{
			Threshold:          fc.Validation.Threshold,
			Forensic:           fc.Validation.Forensic,
			WindowSize:         fc.Validation.WindowSize,
			EntropyBins:        fc.Validation.EntropyBins,
			EntropyFloor:       fc.Validation.EntropyFloor,
			EntropyCeiling:     fc.Validation.EntropyCeiling,
			MaxJump:            fc.Validation.MaxJump,
			MinCorrelation:     fc.Validation.MinCorrelation,
			DecorrelationBound: fc.Validation.DecorrelationBound,
		},
		Evolve: evolve.Config{
			DriftFloor:   fc.Evolution.DriftFloor,
			DriftCeiling: fc.Evolution.DriftCeiling,
			MinTrendRun:  fc.Evolution.MinTrendRun,
			Smoothing:    fc.Evolution.Smoothing,
		},
	}
}

// DefaultFixtureConfig mirrors every component default; exported
// fixtures start from it so they replay identically on a stock engine.
func DefaultFixtureConfig() FixtureConfig {
	comp := auth.DefaultComponents()
	base := make(map[string]float64, len(comp.Fusion.BaseWeights))
	for m, w := range comp.Fusion.BaseWeights {
		base[string(m)] = w
	}
	return FixtureConfig{
		HistoryCap: 10,
		Fusion: FixtureFusionConfig{
			BaseWeights:      base,
			MinModalities:    comp.Fusion.MinModalities,
			ReliabilityFloor: comp.Fusion.ReliabilityFloor,
			EntropyBins:      comp.Fusion.Quality.EntropyBins,
			CompletenessExp:  comp.Fusion.Quality.CompletenessExp,
			ConsistencyExp:   comp.Fusion.Quality.ConsistencyExp,
			SNRExp:           comp.Fusion.Quality.SNRExp,
			DistinctExp:      comp.Fusion.Quality.DistinctExp,
		},
		Matching: FixtureMatchingConfig{
			Metric:         string(comp.Match.Metric),
			AcceptFloor:    comp.Match.AcceptFloor,
			HighConfidence: comp.Match.HighConfidence,
			MaxCandidates:  comp.Match.MaxCandidates,
			ProjectionBits: comp.Match.ProjectionBits,
			ProbeRadius:    comp.Match.ProbeRadius,
			CacheSize:      comp.Match.CacheSize,
			CacheTTLMs:     int(comp.Match.CacheTTL / time.Millisecond),
			Seed:           comp.Match.Seed,
		},
		Validation: FixtureValidationConfig{
			Threshold:          comp.Gate.Threshold,
			Forensic:           comp.Gate.Forensic,
			WindowSize:         comp.Gate.WindowSize,
			EntropyBins:        comp.Gate.EntropyBins,
			EntropyFloor:       comp.Gate.EntropyFloor,
			EntropyCeiling:     comp.Gate.EntropyCeiling,
			MaxJump:            comp.Gate.MaxJump,
			MinCorrelation:     comp.Gate.MinCorrelation,
			DecorrelationBound: comp.Gate.DecorrelationBound,
		},
		Evolution: FixtureEvolutionConfig{
			DriftFloor:   comp.Evolve.DriftFloor,
			DriftCeiling: comp.Evolve.DriftCeiling,
			MinTrendRun:  comp.Evolve.MinTrendRun,
			Smoothing:    comp.Evolve.Smoothing,
		},
	}
}

// #endregion converters
