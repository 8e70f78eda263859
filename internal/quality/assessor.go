package quality

// #region imports
import (
	"math"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
)

// #endregion imports

// #region config

// Config tunes the quality formulas. The four exponents weight the
// geometric mean that folds the sub-scores into reliability; they must
// sum to 1 so reliability stays in [0,1].
type Config struct {
	EntropyBins     int
	CompletenessExp float64
	ConsistencyExp  float64
	SNRExp          float64
	DistinctExp     float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		EntropyBins:     16,
		CompletenessExp: 0.3,
		ConsistencyExp:  0.3,
		SNRExp:          0.2,
		DistinctExp:     0.2,
	}
}

// #endregion config

// #region assessor

// Assessor grades modality samples for completeness, consistency,
// signal-to-noise and distinctiveness. Pure; safe for concurrent use.
type Assessor struct {
	cfg Config
}

// New returns an Assessor with the given config.
func New(cfg Config) *Assessor {
	if cfg.EntropyBins <= 1 {
		cfg.EntropyBins = DefaultConfig().EntropyBins
	}
	return &Assessor{cfg: cfg}
}

// Assess grades one sample. peers are the other samples of the same
// modality buffered in the same attempt; a lone sample scores full
// consistency since there is no evidence of disagreement.
func (a *Assessor) Assess(s fingerprint.Sample, peers []fingerprint.Sample) fingerprint.QualityScore {
	completeness := a.completeness(s)
	consistency := a.consistency(s, peers)
	r := a.entropyRatio(s.Features)

	// Mid-band entropy scores high; the degenerate extremes score low,
	// whether constant (replay-flat) or saturated (white noise).
	snr := clamp01(4 * r * (1 - r))
	distinct := clamp01(r)

	rel := math.Pow(completeness, a.cfg.CompletenessExp) *
		math.Pow(consistency, a.cfg.ConsistencyExp) *
		math.Pow(snr, a.cfg.SNRExp) *
		math.Pow(distinct, a.cfg.DistinctExp)
	rel = clamp01(rel * s.HintOr())

	return fingerprint.QualityScore{
		Modality:        s.Modality,
		Completeness:    completeness,
		Consistency:     consistency,
		SignalToNoise:   snr,
		Distinctiveness: distinct,
		Reliability:     rel,
	}
}

// #endregion assessor

// #region completeness

// completeness is the fraction of the expected slots carrying a finite
// value. Slots beyond the segment width are ignored by alignment.
func (a *Assessor) completeness(s fingerprint.Sample) float64 {
	populated := 0
	for i := 0; i < fingerprint.SegmentWidth; i++ {
		if i < len(s.Features) && isFinite(s.Features[i]) {
			populated++
		}
	}
	return float64(populated) / float64(fingerprint.SegmentWidth)
}

// #endregion completeness

// #region consistency

// consistency measures slot-wise agreement between the sample and its
// peers via the mean coefficient of variation, mapped by 1/(1+cv).
func (a *Assessor) consistency(s fingerprint.Sample, peers []fingerprint.Sample) float64 {
	if len(peers) == 0 {
		return 1.0
	}

	group := make([][]float32, 0, len(peers)+1)
	group = append(group, s.Features)
	for _, p := range peers {
		group = append(group, p.Features)
	}

	var cvSum float64
	slots := 0
	for i := 0; i < fingerprint.SegmentWidth; i++ {
		var sum, sumSq float64
		n := 0
		for _, features := range group {
			if i < len(features) && isFinite(features[i]) {
				v := float64(features[i])
				sum += v
				sumSq += v * v
				n++
			}
		}
		if n < 2 {
			continue
		}
		mean := sum / float64(n)
		variance := sumSq/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		cvSum += math.Sqrt(variance) / (math.Abs(mean) + 1e-9)
		slots++
	}
	if slots == 0 {
		return 1.0
	}
	return 1.0 / (1.0 + cvSum/float64(slots))
}

// #endregion consistency

// #region entropy

func (a *Assessor) entropyRatio(features []float32) float64 {
	return EntropyRatio(features, a.cfg.EntropyBins)
}

// EntropyRatio estimates H/Hmax of the value distribution over a
// fixed-bin histogram. A constant vector has ratio 0. Shared with the
// anti-spoof liveness check, which grades composite segments with it.
func EntropyRatio(features []float32, entropyBins int) float64 {
	if entropyBins <= 1 {
		entropyBins = DefaultConfig().EntropyBins
	}
	var values []float64
	for _, f := range features {
		if isFinite(f) {
			values = append(values, float64(f))
		}
	}
	if len(values) < 2 {
		return 0
	}

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if maxV == minV {
		return 0
	}

	bins := make([]int, entropyBins)
	width := (maxV - minV) / float64(entropyBins)
	for _, v := range values {
		idx := int((v - minV) / width)
		if idx >= entropyBins {
			idx = entropyBins - 1
		}
		bins[idx]++
	}

	var h float64
	total := float64(len(values))
	for _, count := range bins {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		h -= p * math.Log2(p)
	}
	return clamp01(h / math.Log2(float64(entropyBins)))
}

// #endregion entropy

// #region helpers

func isFinite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
