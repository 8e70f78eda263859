package config

// #region imports
import (
	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fusion"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
	"github.com/mlindqvist/agentprint/go-engine/internal/match"
)

// #endregion imports

// #region defaults

// Default mirrors every component's DefaultConfig into one file-shaped
// config. Component packages stay the single source of the numbers.
func Default() *Config {
	f := fusion.DefaultConfig()
	m := match.DefaultConfig()
	g := gate.DefaultConfig()
	e := evolve.DefaultConfig()
	r := auth.DefaultConfig()

	base := make(map[string]float64, len(f.BaseWeights))
	for modality, w := range f.BaseWeights {
		base[string(modality)] = w
	}

	return &Config{
		Storage: StorageConfig{
			Backend:    "sqlite",
			Path:       "agentprint.db",
			HistoryCap: 10,
		},
		Quality: QualityConfig{
			EntropyBins:     f.Quality.EntropyBins,
			CompletenessExp: f.Quality.CompletenessExp,
			ConsistencyExp:  f.Quality.ConsistencyExp,
			SNRExp:          f.Quality.SNRExp,
			DistinctExp:     f.Quality.DistinctExp,
		},
		Fusion: FusionConfig{
			BaseWeights:      base,
			MinModalities:    f.MinModalities,
			ReliabilityFloor: f.ReliabilityFloor,
		},
		Matching: MatchingConfig{
			Metric:         string(m.Metric),
			AcceptFloor:    m.AcceptFloor,
			HighConfidence: m.HighConfidence,
			MaxCandidates:  m.MaxCandidates,
			ProjectionBits: m.ProjectionBits,
			ProbeRadius:    m.ProbeRadius,
			CacheSize:      m.CacheSize,
			CacheTTLMs:     int(m.CacheTTL.Milliseconds()),
			Seed:           m.Seed,
		},
		Validation: ValidationConfig{
			Threshold:          g.Threshold,
			Forensic:           g.Forensic,
			WindowSize:         g.WindowSize,
			EntropyBins:        g.EntropyBins,
			EntropyFloor:       g.EntropyFloor,
			EntropyCeiling:     g.EntropyCeiling,
			MaxJump:            g.MaxJump,
			MinCorrelation:     g.MinCorrelation,
			DecorrelationBound: g.DecorrelationBound,
		},
		Evolution: EvolutionConfig{
			DriftFloor:   e.DriftFloor,
			DriftCeiling: e.DriftCeiling,
			MinTrendRun:  e.MinTrendRun,
			Smoothing:    e.Smoothing,
		},
		Runtime: RuntimeConfig{
			DeadlineMs:     int(r.Deadline.Milliseconds()),
			SampleWindowMs: int(r.SampleWindow.Milliseconds()),
			Workers:        r.Workers,
			QueueDepth:     r.QueueDepth,
			EvolveOnAccept: r.EvolveOnAccept,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
	}
}

// #endregion defaults
