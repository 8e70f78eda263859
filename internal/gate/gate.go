package gate

// #region imports
import (
	"math"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/quality"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region gate

// Gate runs the anti-spoof checks on a proposed match before it is
// accepted. Checks execute in a fixed order and short-circuit on the
// first failure unless forensic mode collects full diagnostics. The
// overall score is the minimum of the sub-scores: one severely failing
// check vetoes acceptance no matter how strong the others are.
type Gate struct {
	cfg     Config
	windows *windowSet
}

// NewGate creates a gate with the given configuration.
func NewGate(cfg Config) *Gate {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	return &Gate{cfg: cfg, windows: newWindowSet(cfg.WindowSize)}
}

// Validate grades the composite against the matched agent's template
// and rolling history. CPU-bound, never blocks.
func (g *Gate) Validate(agentID string, fp fingerprint.Composite, tmpl template.Template) ValidationResult {
	res := ValidationResult{
		Trace:       []Stage{StagePending},
		Liveness:    -1,
		Temporal:    -1,
		Correlation: -1,
	}
	window := g.windows.snapshot(agentID, tmpl.EvolutionCount)

	res.Liveness = g.livenessScore(fp)
	res.Trace = append(res.Trace, StageLiveness)
	if g.failed(&res, res.Liveness, "liveness") {
		return g.seal(res)
	}

	res.Temporal = g.temporalScore(fp, window)
	res.Trace = append(res.Trace, StageConsistency)
	if g.failed(&res, res.Temporal, "temporal") {
		return g.seal(res)
	}

	res.Correlation = g.correlationScore(fp, window)
	res.Trace = append(res.Trace, StageCorrelation)
	if g.failed(&res, res.Correlation, "correlation") {
		return g.seal(res)
	}

	return g.seal(res)
}

// failed records the first failing check and reports whether to
// short-circuit. Forensic mode keeps going.
func (g *Gate) failed(res *ValidationResult, score float64, check string) bool {
	if score >= g.cfg.Threshold {
		return false
	}
	if res.FailedCheck == "" {
		res.FailedCheck = check
	}
	return !g.cfg.Forensic
}

// seal folds the executed sub-scores into the overall minimum and
// closes the trace.
func (g *Gate) seal(res ValidationResult) ValidationResult {
	overall := 1.0
	for _, s := range []float64{res.Liveness, res.Temporal, res.Correlation} {
		if s < 0 {
			continue
		}
		if s < overall {
			overall = s
		}
	}
	res.Overall = overall
	res.Passed = res.FailedCheck == "" && overall >= g.cfg.Threshold
	if res.Passed {
		res.Trace = append(res.Trace, StageAccepted)
	} else {
		res.Trace = append(res.Trace, StageRejected)
	}
	return res
}

// Observe feeds an accepted composite into the agent's rolling window.
// Call only after the full decision accepted the request.
func (g *Gate) Observe(agentID string, fp fingerprint.Composite, evolutionCount int64) {
	g.windows.observe(agentID, newEntry(fp.Vector), evolutionCount)
}

// Forget drops an agent's rolling window, e.g. after rollback.
func (g *Gate) Forget(agentID string) {
	g.windows.forget(agentID)
}

// #endregion gate

// #region liveness

// livenessScore grades each contributing modality's segment entropy
// against the naturalness band. A constant segment scores 0: replayed
// or synthesized samples are implausibly regular. The overall score is
// the worst modality.
func (g *Gate) livenessScore(fp fingerprint.Composite) float64 {
	contributing := fp.Contributing()
	if len(contributing) == 0 {
		return 0
	}
	score := 1.0
	for _, m := range contributing {
		seg, ok := fingerprint.Segment(m)
		if !ok {
			continue
		}
		r := quality.EntropyRatio(fp.Vector[seg[0]:seg[1]], g.cfg.EntropyBins)
		s := g.bandScore(r)
		if s < score {
			score = s
		}
	}
	return score
}

// bandScore maps an entropy ratio onto [0,1]: full score inside the
// naturalness band, linear falloff toward the degenerate extremes.
func (g *Gate) bandScore(r float64) float64 {
	switch {
	case r >= g.cfg.EntropyFloor && r <= g.cfg.EntropyCeiling:
		return 1
	case r < g.cfg.EntropyFloor:
		if g.cfg.EntropyFloor <= 0 {
			return 1
		}
		return r / g.cfg.EntropyFloor
	default:
		if g.cfg.EntropyCeiling >= 1 {
			return 1
		}
		return (1 - r) / (1 - g.cfg.EntropyCeiling)
	}
}

// #endregion liveness

// #region temporal

// temporalScore compares the composite against the centroid of the
// agent's recently accepted composites. A large instantaneous jump
// without a matching evolution event scores low. An empty window is
// neutral.
func (g *Gate) temporalScore(fp fingerprint.Composite, window []entry) float64 {
	if len(window) == 0 {
		return 1
	}
	var centroid [fingerprint.Dim]float32
	for _, e := range window {
		for i := range centroid {
			centroid[i] += e.vector[i]
		}
	}
	n := float32(len(window))
	for i := range centroid {
		centroid[i] /= n
	}

	dist := fingerprint.Norm(fingerprint.Delta(fp.Vector, centroid))
	scale := fingerprint.Norm(centroid)
	if scale < 1e-9 {
		scale = 1e-9
	}
	rel := dist / scale
	if g.cfg.MaxJump <= 0 {
		return 1
	}
	s := 1 - rel/g.cfg.MaxJump
	if s < 0 {
		return 0
	}
	return s
}

// #endregion temporal

// #region correlation

// correlationScore verifies that modality pairs historically coupled
// for this agent stay coupled in the current observation. Partial
// spoofing of a modality subset decorrelates the pair. Fewer than four
// window entries cannot establish history and score neutral.
func (g *Gate) correlationScore(fp fingerprint.Composite, window []entry) float64 {
	if len(window) < 4 {
		return 1
	}
	current := newEntry(fp.Vector)
	mods := fingerprint.Modalities()

	score := 1.0
	for i := 0; i < len(mods); i++ {
		for j := i + 1; j < len(mods); j++ {
			histA := make([]float64, len(window))
			histB := make([]float64, len(window))
			for k, e := range window {
				histA[k] = e.norms[i]
				histB[k] = e.norms[j]
			}
			hist := math.Abs(pearson(histA, histB))
			if hist < g.cfg.MinCorrelation {
				continue
			}
			ext := math.Abs(pearson(append(histA, current.norms[i]), append(histB, current.norms[j])))
			drop := hist - ext
			if drop <= 0 {
				continue
			}
			s := 1.0
			if g.cfg.DecorrelationBound > 0 {
				s = 1 - drop/g.cfg.DecorrelationBound
			}
			if s < 0 {
				s = 0
			}
			if s < score {
				score = s
			}
		}
	}
	return score
}

// pearson computes the correlation coefficient of two equal-length
// series. Degenerate series (zero variance) yield 0.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n < 2 {
		return 0
	}
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA < 1e-18 || varB < 1e-18 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// #endregion correlation
