package config

// #region imports
import (
	"fmt"
	"math"
	"strings"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
)

// #endregion imports

// #region errors

// ValidationError reports one rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rejected field so a bad file is
// reported in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// #endregion errors

// #region validate

// Validate checks every section and returns all rejected fields.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateQuality(&c.Quality)...)
	errs = append(errs, validateFusion(&c.Fusion)...)
	errs = append(errs, validateMatching(&c.Matching)...)
	errs = append(errs, validateValidation(&c.Validation)...)
	errs = append(errs, validateEvolution(&c.Evolution)...)
	errs = append(errs, validateRuntime(&c.Runtime)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	switch s.Backend {
	case "sqlite":
		if s.Path == "" {
			errs = append(errs, ValidationError{"storage.path", "required for the sqlite backend"})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{"storage.backend", fmt.Sprintf("unknown backend %q (want sqlite or memory)", s.Backend)})
	}
	if s.HistoryCap < 1 {
		errs = append(errs, ValidationError{"storage.history_cap", "must be at least 1"})
	}
	return errs
}

func validateQuality(q *QualityConfig) ValidationErrors {
	var errs ValidationErrors
	if q.EntropyBins < 2 {
		errs = append(errs, ValidationError{"quality.entropy_bins", "must be at least 2"})
	}
	exps := [...]struct {
		field string
		value float64
	}{
		{"quality.completeness_exp", q.CompletenessExp},
		{"quality.consistency_exp", q.ConsistencyExp},
		{"quality.snr_exp", q.SNRExp},
		{"quality.distinct_exp", q.DistinctExp},
	}
	sum := 0.0
	for _, e := range exps {
		if e.value < 0 {
			errs = append(errs, ValidationError{e.field, "must not be negative"})
		}
		sum += e.value
	}
	if math.Abs(sum-1) > 1e-6 {
		errs = append(errs, ValidationError{"quality", fmt.Sprintf("exponents sum to %g, want 1", sum)})
	}
	return errs
}

func validateFusion(f *FusionConfig) ValidationErrors {
	var errs ValidationErrors
	if f.MinModalities < 2 {
		errs = append(errs, ValidationError{"fusion.min_modalities", "must be at least 2"})
	}
	if f.ReliabilityFloor < 0 || f.ReliabilityFloor >= 1 {
		errs = append(errs, ValidationError{"fusion.reliability_floor", "must be in [0, 1)"})
	}
	positive := 0
	for name, w := range f.BaseWeights {
		if _, ok := fingerprint.Segment(fingerprint.Modality(name)); !ok {
			errs = append(errs, ValidationError{"fusion.base_weights." + name, "unknown modality"})
			continue
		}
		if w < 0 {
			errs = append(errs, ValidationError{"fusion.base_weights." + name, "must not be negative"})
		}
		if w > 0 {
			positive++
		}
	}
	if positive < f.MinModalities {
		errs = append(errs, ValidationError{"fusion.base_weights", fmt.Sprintf("only %d positive weights, min_modalities needs %d", positive, f.MinModalities)})
	}
	return errs
}

func validateMatching(m *MatchingConfig) ValidationErrors {
	var errs ValidationErrors
	if m.Metric != "cosine" && m.Metric != "euclidean" {
		errs = append(errs, ValidationError{"matching.metric", fmt.Sprintf("unknown metric %q (want cosine or euclidean)", m.Metric)})
	}
	if m.AcceptFloor < 0 || m.AcceptFloor > 1 {
		errs = append(errs, ValidationError{"matching.accept_floor", "must be in [0, 1]"})
	}
	if m.HighConfidence <= 0 || m.HighConfidence > 1 {
		errs = append(errs, ValidationError{"matching.high_confidence", "must be in (0, 1]"})
	} else if m.HighConfidence < m.AcceptFloor {
		errs = append(errs, ValidationError{"matching.high_confidence", "must not be below accept_floor"})
	}
	if m.MaxCandidates < 1 {
		errs = append(errs, ValidationError{"matching.max_candidates", "must be at least 1"})
	}
	if m.ProjectionBits < 1 || m.ProjectionBits > 30 {
		errs = append(errs, ValidationError{"matching.projection_bits", "must be in [1, 30]"})
	}
	if m.ProbeRadius < 0 || m.ProbeRadius > m.ProjectionBits {
		errs = append(errs, ValidationError{"matching.probe_radius", "must be in [0, projection_bits]"})
	}
	if m.CacheSize < 0 {
		errs = append(errs, ValidationError{"matching.cache_size", "must not be negative"})
	}
	if m.CacheTTLMs < 0 {
		errs = append(errs, ValidationError{"matching.cache_ttl_ms", "must not be negative"})
	}
	return errs
}

func validateValidation(v *ValidationConfig) ValidationErrors {
	var errs ValidationErrors
	if v.Threshold <= 0 || v.Threshold > 1 {
		errs = append(errs, ValidationError{"validation.threshold", "must be in (0, 1]"})
	}
	if v.WindowSize < 2 {
		errs = append(errs, ValidationError{"validation.window_size", "must be at least 2"})
	}
	if v.EntropyBins < 2 {
		errs = append(errs, ValidationError{"validation.entropy_bins", "must be at least 2"})
	}
	if v.EntropyFloor < 0 || v.EntropyFloor >= v.EntropyCeiling {
		errs = append(errs, ValidationError{"validation.entropy_floor", "must be in [0, entropy_ceiling)"})
	}
	if v.EntropyCeiling > 1 {
		errs = append(errs, ValidationError{"validation.entropy_ceiling", "must not exceed 1"})
	}
	if v.MaxJump <= 0 {
		errs = append(errs, ValidationError{"validation.max_jump", "must be positive"})
	}
	if v.MinCorrelation <= 0 || v.MinCorrelation > 1 {
		errs = append(errs, ValidationError{"validation.min_correlation", "must be in (0, 1]"})
	}
	if v.DecorrelationBound <= 0 {
		errs = append(errs, ValidationError{"validation.decorrelation_bound", "must be positive"})
	}
	return errs
}

func validateEvolution(e *EvolutionConfig) ValidationErrors {
	var errs ValidationErrors
	if e.DriftFloor < 0 {
		errs = append(errs, ValidationError{"evolution.drift_floor", "must not be negative"})
	}
	if e.DriftCeiling <= e.DriftFloor {
		errs = append(errs, ValidationError{"evolution.drift_ceiling", "must exceed drift_floor"})
	}
	if e.MinTrendRun < 1 {
		errs = append(errs, ValidationError{"evolution.min_trend_run", "must be at least 1"})
	}
	if e.Smoothing <= 0 || e.Smoothing > 1 {
		errs = append(errs, ValidationError{"evolution.smoothing", "must be in (0, 1]"})
	}
	return errs
}

func validateRuntime(r *RuntimeConfig) ValidationErrors {
	var errs ValidationErrors
	if r.DeadlineMs < 1 {
		errs = append(errs, ValidationError{"runtime.deadline_ms", "must be at least 1"})
	}
	if r.SampleWindowMs < 1 {
		errs = append(errs, ValidationError{"runtime.sample_window_ms", "must be at least 1"})
	}
	if r.Workers < 1 {
		errs = append(errs, ValidationError{"runtime.workers", "must be at least 1"})
	}
	if r.QueueDepth < 1 {
		errs = append(errs, ValidationError{"runtime.queue_depth", "must be at least 1"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{"logging.level", err.Error()})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{"logging.format", err.Error()})
	}
	return errs
}

// #endregion validate
