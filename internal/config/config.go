// Package config loads, validates, and applies the engine TOML
// configuration. Component packages keep their own Config structs;
// this package maps one file onto all of them.
package config

// #region imports
import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mlindqvist/agentprint/go-engine/internal/auth"
	"github.com/mlindqvist/agentprint/go-engine/internal/evolve"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/fusion"
	"github.com/mlindqvist/agentprint/go-engine/internal/gate"
	"github.com/mlindqvist/agentprint/go-engine/internal/logging"
	"github.com/mlindqvist/agentprint/go-engine/internal/match"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
)

// #endregion imports

// #region sections

// Config holds the complete engine configuration.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Quality    QualityConfig    `toml:"quality"`
	Fusion     FusionConfig     `toml:"fusion"`
	Matching   MatchingConfig   `toml:"matching"`
	Validation ValidationConfig `toml:"validation"`
	Evolution  EvolutionConfig  `toml:"evolution"`
	Runtime    RuntimeConfig    `toml:"runtime"`
	Logging    LoggingConfig    `toml:"logging"`
}

// StorageConfig selects and locates the template backend.
type StorageConfig struct {
	// Backend is the store type: "sqlite" or "memory".
	Backend string `toml:"backend"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `toml:"path"`

	// HistoryCap is the archived templates retained per agent.
	HistoryCap int `toml:"history_cap"`
}

// QualityConfig tunes per-sample quality assessment.
type QualityConfig struct {
	// EntropyBins is the histogram resolution for distinctiveness.
	EntropyBins int `toml:"entropy_bins"`

	// The four exponents weight the sub-scores in the reliability
	// geometric mean and must sum to 1.
	CompletenessExp float64 `toml:"completeness_exp"`
	ConsistencyExp  float64 `toml:"consistency_exp"`
	SNRExp          float64 `toml:"snr_exp"`
	DistinctExp     float64 `toml:"distinct_exp"`
}

// FusionConfig governs composite assembly.
type FusionConfig struct {
	// BaseWeights is the prior weight per modality name. Modalities
	// absent from the map never contribute.
	BaseWeights map[string]float64 `toml:"base_weights"`

	// MinModalities is the minimum channel count for fusion to succeed.
	MinModalities int `toml:"min_modalities"`

	// ReliabilityFloor excludes a modality assessed below it.
	ReliabilityFloor float64 `toml:"reliability_floor"`
}

// MatchingConfig bounds candidate retrieval and scoring.
type MatchingConfig struct {
	// Metric is the exact similarity metric: "cosine" or "euclidean".
	Metric string `toml:"metric"`

	AcceptFloor    float64 `toml:"accept_floor"`
	HighConfidence float64 `toml:"high_confidence"`
	MaxCandidates  int     `toml:"max_candidates"`
	ProjectionBits int     `toml:"projection_bits"`
	ProbeRadius    int     `toml:"probe_radius"`
	CacheSize      int     `toml:"cache_size"`

	// CacheTTLMs is the result cache staleness bound in milliseconds.
	CacheTTLMs int `toml:"cache_ttl_ms"`

	// Seed fixes the projection hyperplanes. Changing it invalidates
	// nothing persistent but reshuffles index buckets.
	Seed uint64 `toml:"seed"`
}

// ValidationConfig holds the anti-spoof thresholds.
type ValidationConfig struct {
	Threshold          float64 `toml:"threshold"`
	Forensic           bool    `toml:"forensic"`
	WindowSize         int     `toml:"window_size"`
	EntropyBins        int     `toml:"entropy_bins"`
	EntropyFloor       float64 `toml:"entropy_floor"`
	EntropyCeiling     float64 `toml:"entropy_ceiling"`
	MaxJump            float64 `toml:"max_jump"`
	MinCorrelation     float64 `toml:"min_correlation"`
	DecorrelationBound float64 `toml:"decorrelation_bound"`
}

// EvolutionConfig holds the drift policy.
type EvolutionConfig struct {
	DriftFloor   float64 `toml:"drift_floor"`
	DriftCeiling float64 `toml:"drift_ceiling"`
	MinTrendRun  int     `toml:"min_trend_run"`
	Smoothing    float64 `toml:"smoothing"`
}

// RuntimeConfig bounds the real-time authentication path.
type RuntimeConfig struct {
	// DeadlineMs is the identification budget per attempt in milliseconds.
	DeadlineMs int `toml:"deadline_ms"`

	// SampleWindowMs is the collector buffering window in milliseconds.
	SampleWindowMs int `toml:"sample_window_ms"`

	Workers    int `toml:"workers"`
	QueueDepth int `toml:"queue_depth"`

	// EvolveOnAccept feeds accepted composites to template evolution.
	EvolveOnAccept bool `toml:"evolve_on_accept"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	Level string `toml:"level"`

	// Format is the handler encoding: "text" or "json".
	Format string `toml:"format"`

	// AddSource includes source file and line in records.
	AddSource bool `toml:"add_source"`
}

// #endregion sections

// #region load

// Load reads and validates a TOML config file. Keys absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes cfg as TOML. Used to seed a starter config file.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// #endregion load

// #region converters

// Assessor maps the quality section onto quality.Config.
func (c *Config) Assessor() quality.Config {
	return quality.Config{
		EntropyBins:     c.Quality.EntropyBins,
		CompletenessExp: c.Quality.CompletenessExp,
		ConsistencyExp:  c.Quality.ConsistencyExp,
		SNRExp:          c.Quality.SNRExp,
		DistinctExp:     c.Quality.DistinctExp,
	}
}

// Fuser maps the fusion and quality sections onto fusion.Config.
func (c *Config) Fuser() fusion.Config {
	base := make(map[fingerprint.Modality]float64, len(c.Fusion.BaseWeights))
	for name, w := range c.Fusion.BaseWeights {
		base[fingerprint.Modality(name)] = w
	}
	return fusion.Config{
		BaseWeights:      base,
		MinModalities:    c.Fusion.MinModalities,
		ReliabilityFloor: c.Fusion.ReliabilityFloor,
		Quality:          c.Assessor(),
	}
}

// Matcher maps the matching section onto match.Config.
func (c *Config) Matcher() match.Config {
	return match.Config{
		Metric:         match.Metric(c.Matching.Metric),
		AcceptFloor:    c.Matching.AcceptFloor,
		HighConfidence: c.Matching.HighConfidence,
		MaxCandidates:  c.Matching.MaxCandidates,
		ProjectionBits: c.Matching.ProjectionBits,
		ProbeRadius:    c.Matching.ProbeRadius,
		CacheSize:      c.Matching.CacheSize,
		CacheTTL:       time.Duration(c.Matching.CacheTTLMs) * time.Millisecond,
		Seed:           c.Matching.Seed,
	}
}

// Gate maps the validation section onto gate.Config.
func (c *Config) Gate() gate.Config {
	return gate.Config{
		Threshold:          c.Validation.Threshold,
		Forensic:           c.Validation.Forensic,
		WindowSize:         c.Validation.WindowSize,
		EntropyBins:        c.Validation.EntropyBins,
		EntropyFloor:       c.Validation.EntropyFloor,
		EntropyCeiling:     c.Validation.EntropyCeiling,
		MaxJump:            c.Validation.MaxJump,
		MinCorrelation:     c.Validation.MinCorrelation,
		DecorrelationBound: c.Validation.DecorrelationBound,
	}
}

// Evolver maps the evolution section onto evolve.Config.
func (c *Config) Evolver() evolve.Config {
	return evolve.Config{
		DriftFloor:   c.Evolution.DriftFloor,
		DriftCeiling: c.Evolution.DriftCeiling,
		MinTrendRun:  c.Evolution.MinTrendRun,
		Smoothing:    c.Evolution.Smoothing,
	}
}

// Orchestrator maps the runtime section onto auth.Config.
func (c *Config) Orchestrator() auth.Config {
	return auth.Config{
		Deadline:       time.Duration(c.Runtime.DeadlineMs) * time.Millisecond,
		SampleWindow:   time.Duration(c.Runtime.SampleWindowMs) * time.Millisecond,
		Workers:        c.Runtime.Workers,
		QueueDepth:     c.Runtime.QueueDepth,
		EvolveOnAccept: c.Runtime.EvolveOnAccept,
	}
}

// Logger maps the logging section onto logging.Config.
func (c *Config) Logger() (logging.Config, error) {
	lvl, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{Level: lvl, Format: format, AddSource: c.Logging.AddSource}, nil
}

// #endregion converters
