package fusion

// #region imports
import (
	"math"
	"time"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
)

// #endregion imports

// #region engine

// Engine fuses modality samples into one composite fingerprint. Pure:
// the same samples, context and timestamp always produce bit-identical
// output. Safe for concurrent use.
type Engine struct {
	cfg      Config
	assessor *quality.Assessor
}

// New returns an Engine with the given config.
func New(cfg Config) *Engine {
	if cfg.MinModalities <= 0 {
		cfg.MinModalities = DefaultConfig().MinModalities
	}
	return &Engine{cfg: cfg, assessor: quality.New(cfg.Quality)}
}

// #endregion engine

// #region fuse

type contribution struct {
	modality fingerprint.Modality
	aligned  [fingerprint.SegmentWidth]float64
	score    fingerprint.QualityScore
	weight   float64
}

// Fuse converts an attempt's samples into a composite fingerprint.
// Weight per modality = base weight × assessed reliability × context
// trust, normalized to sum 1 over the survivors. Modalities below the
// reliability floor are excluded entirely; fewer survivors than
// MinModalities fails with ErrInsufficientModalities.
func (e *Engine) Fuse(samples []fingerprint.Sample, ctx Context, at time.Time) (fingerprint.Composite, error) {
	grouped := make(map[fingerprint.Modality][]fingerprint.Sample)
	for _, s := range samples {
		grouped[s.Modality] = append(grouped[s.Modality], s)
	}

	reliabilities := make(map[fingerprint.Modality]float64)
	var contribs []contribution
	var weightSum float64

	// Canonical modality order keeps every float operation sequence fixed.
	for _, m := range fingerprint.Modalities() {
		group := grouped[m]
		if len(group) == 0 {
			continue
		}

		aligned, present := alignGroup(group)
		rep := representative(m, group, aligned, present)
		var peers []fingerprint.Sample
		if len(group) > 1 {
			peers = group
		}
		score := e.assessor.Assess(rep, peers)
		reliabilities[m] = score.Reliability

		if score.Reliability < e.cfg.ReliabilityFloor {
			continue
		}
		w := e.cfg.BaseWeights[m] * score.Reliability * ctx.trustFor(m)
		if w <= 0 {
			continue
		}
		contribs = append(contribs, contribution{modality: m, aligned: aligned, score: score, weight: w})
		weightSum += w
	}

	if len(contribs) < e.cfg.MinModalities {
		return fingerprint.Composite{}, &InsufficientModalitiesError{
			Reliable:      len(contribs),
			Required:      e.cfg.MinModalities,
			Reliabilities: reliabilities,
		}
	}

	composite := fingerprint.Composite{
		AgentClaim:  ctx.AgentClaim,
		Weights:     make(map[fingerprint.Modality]float64, len(contribs)),
		GeneratedAt: at,
	}

	// Weighted concatenation: each surviving modality writes its own
	// segment scaled by its normalized weight.
	var invHarmonic float64
	for _, c := range contribs {
		w := c.weight / weightSum
		composite.Weights[c.modality] = w
		seg, _ := fingerprint.Segment(c.modality)
		for j := 0; j < fingerprint.SegmentWidth; j++ {
			composite.Vector[seg[0]+j] = float32(w * c.aligned[j])
		}
		invHarmonic += w / c.score.Reliability
	}

	confidence := 1.0 / invHarmonic
	if len(contribs) < len(fingerprint.Modalities()) {
		// Degraded coverage: flag reduced confidence rather than
		// pretending a partial view is a full one.
		confidence *= math.Sqrt(float64(len(contribs)) / float64(len(fingerprint.Modalities())))
	}
	composite.Confidence = clamp01(confidence)

	return composite, nil
}

// #endregion fuse

// #region align

// alignGroup reduces a modality's samples to one 32-slot vector by
// slot-wise mean over the finite values. Slots with no finite value
// stay 0 and are reported absent so quality still sees the gap.
func alignGroup(group []fingerprint.Sample) ([fingerprint.SegmentWidth]float64, [fingerprint.SegmentWidth]bool) {
	var aligned [fingerprint.SegmentWidth]float64
	var present [fingerprint.SegmentWidth]bool
	for i := 0; i < fingerprint.SegmentWidth; i++ {
		var sum float64
		n := 0
		for _, s := range group {
			if i < len(s.Features) && finite(s.Features[i]) {
				sum += float64(s.Features[i])
				n++
			}
		}
		if n > 0 {
			aligned[i] = sum / float64(n)
			present[i] = true
		}
	}
	return aligned, present
}

// representative builds the synthetic sample the assessor grades: the
// aligned mean vector with the group's mean hint. Absent slots stay NaN
// so completeness reflects the real coverage.
func representative(m fingerprint.Modality, group []fingerprint.Sample, aligned [fingerprint.SegmentWidth]float64, present [fingerprint.SegmentWidth]bool) fingerprint.Sample {
	features := make([]float32, fingerprint.SegmentWidth)
	for i, v := range aligned {
		if !present[i] {
			features[i] = float32(math.NaN())
			continue
		}
		features[i] = float32(v)
	}
	var hintSum float64
	for _, s := range group {
		hintSum += s.HintOr()
	}
	return fingerprint.Sample{
		Modality:   m,
		Features:   features,
		CapturedAt: group[0].CapturedAt,
		Hint:       hintSum / float64(len(group)),
	}
}

func finite(f float32) bool {
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

// #endregion align
