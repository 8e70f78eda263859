package match

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mlindqvist/agentprint/go-engine/internal/clock"
	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
	"github.com/mlindqvist/agentprint/go-engine/internal/template"
)

// #endregion imports

// #region matcher

// Matcher retrieves and scores candidate templates for an observed
// composite fingerprint. Candidate vectors are loaded through the
// backend under the request context; the store is the only suspension
// point in a matching call.
type Matcher struct {
	cfg     Config
	backend template.Backend
	index   *Index
	cache   *resultCache
	clk     clock.Clock
}

// NewMatcher creates a Matcher over the given template backend. A nil
// clk falls back to the wall clock.
func NewMatcher(cfg Config, backend template.Backend, clk clock.Clock) *Matcher {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	return &Matcher{
		cfg:     cfg,
		backend: backend,
		index:   NewIndex(cfg.ProjectionBits, cfg.ProbeRadius, cfg.Seed),
		cache:   newResultCache(cfg.CacheSize, cfg.CacheTTL),
		clk:     clk,
	}
}

// withDefaults fills structural zero values so a partially populated
// config still yields a usable matcher. Thresholds are taken as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Metric == "" {
		c.Metric = def.Metric
	}
	if c.MaxCandidates < 1 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.ProjectionBits < 1 {
		c.ProjectionBits = def.ProjectionBits
	}
	if c.ProbeRadius < 1 {
		c.ProbeRadius = def.ProbeRadius
	}
	if c.CacheSize < 1 {
		c.CacheSize = def.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	return c
}

// #endregion matcher

// #region identify

// Identify scores candidate templates against the composite and returns
// them in descending similarity order, ties broken by more recently
// evolved template. A non-empty agent claim skips the index and verifies
// against the claimed template only. maxCandidates <= 0 uses the
// configured default.
func (m *Matcher) Identify(ctx context.Context, fp fingerprint.Composite, maxCandidates int) (Result, error) {
	if maxCandidates <= 0 {
		maxCandidates = m.cfg.MaxCandidates
	}

	key, keyErr := fingerprint.RoundedDigest(fp)
	if keyErr == nil {
		if cached, ok := m.cache.get(key, m.clk.Now()); ok {
			cached.CacheHit = true
			return cached, nil
		}
	}

	var (
		res Result
		err error
	)
	if fp.AgentClaim != "" {
		res, err = m.verify(ctx, fp)
	} else {
		res, err = m.search(ctx, fp, maxCandidates)
	}
	if err != nil {
		return res, err
	}
	if keyErr == nil {
		m.cache.put(key, res, m.clk.Now())
	}
	return res, nil
}

// verify scores only the claimed agent's template.
func (m *Matcher) verify(ctx context.Context, fp fingerprint.Composite) (Result, error) {
	var res Result
	t, err := m.backend.Load(ctx, fp.AgentClaim)
	if errors.Is(err, template.ErrNotFound) {
		return res, fmt.Errorf("claimed agent %s not enrolled: %w", fp.AgentClaim, ErrNoCandidates)
	}
	if err != nil {
		return res, fmt.Errorf("load claimed template: %w", err)
	}
	res.Scored = 1

	sim := m.similarity(fp.Vector, t.Vector)
	if sim < m.cfg.AcceptFloor {
		return res, fmt.Errorf("claim %s scored %.3f, floor %.3f: %w",
			fp.AgentClaim, sim, m.cfg.AcceptFloor, ErrNoCandidates)
	}
	cand := Candidate{AgentID: t.AgentID, Similarity: sim, LastEvolvedAt: t.LastEvolvedAt}
	res.Best = cand
	res.Candidates = []Candidate{cand}
	return res, nil
}

// search runs index-assisted identification with early termination.
func (m *Matcher) search(ctx context.Context, fp fingerprint.Composite, maxCandidates int) (Result, error) {
	hits := m.index.probe(fp.Vector, maxCandidates)
	res := Result{Probed: len(hits)}
	if len(hits) == 0 {
		return res, fmt.Errorf("no templates indexed near query: %w", ErrNoCandidates)
	}

	best := -1.0
	var cands []Candidate
	for i, h := range hits {
		if i > 0 && h.ring > hits[i-1].ring && m.stopEarly(best, h.ring) {
			res.EarlyExit = true
			break
		}
		t, err := m.backend.Load(ctx, h.agentID)
		switch {
		case errors.Is(err, template.ErrNotFound), errors.Is(err, template.ErrCorrupt):
			// Stale or quarantined entry. Drop it from the index and
			// keep scoring the rest.
			m.index.Remove(h.agentID)
			res.Dropped++
			continue
		case err != nil:
			return res, fmt.Errorf("load candidate %s: %w", h.agentID, err)
		}
		res.Scored++

		sim := m.similarity(fp.Vector, t.Vector)
		if sim > best {
			best = sim
		}
		if sim < m.cfg.AcceptFloor {
			continue
		}
		cands = append(cands, Candidate{AgentID: t.AgentID, Similarity: sim, LastEvolvedAt: t.LastEvolvedAt})
	}

	if len(cands) == 0 {
		return res, fmt.Errorf("best similarity %.3f, floor %.3f: %w", best, m.cfg.AcceptFloor, ErrNoCandidates)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		return cands[i].LastEvolvedAt.After(cands[j].LastEvolvedAt)
	})
	res.Best = cands[0]
	res.Candidates = cands
	return res, nil
}

// stopEarly reports whether no candidate in the given ring can outrank
// the current best. Only the angular metric ties ring distance to a
// similarity bound.
func (m *Matcher) stopEarly(best float64, ring int) bool {
	if m.cfg.Metric != MetricCosine {
		return false
	}
	return best >= m.cfg.HighConfidence && m.index.ringBound(ring) <= best
}

func (m *Matcher) similarity(a, b [fingerprint.Dim]float32) float64 {
	if m.cfg.Metric == MetricEuclidean {
		return fingerprint.EuclideanSimilarity(a, b)
	}
	return fingerprint.Cosine(a, b)
}

// #endregion identify

// #region maintenance

// Insert indexes a newly enrolled agent's template vector.
func (m *Matcher) Insert(agentID string, v [fingerprint.Dim]float32) {
	m.index.Insert(agentID, v)
}

// Update re-indexes an agent after evolution or rollback.
func (m *Matcher) Update(agentID string, v [fingerprint.Dim]float32) {
	m.index.Insert(agentID, v)
}

// Remove drops an agent from the index.
func (m *Matcher) Remove(agentID string) {
	m.index.Remove(agentID)
}

// Rebuild reindexes every enrolled agent from the backend, skipping
// corrupt templates until an operator rolls them back. Returns the
// number of templates indexed.
func (m *Matcher) Rebuild(ctx context.Context) (int, error) {
	agents, err := m.backend.Agents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agents: %w", err)
	}
	indexed := 0
	for _, id := range agents {
		t, err := m.backend.Load(ctx, id)
		if errors.Is(err, template.ErrCorrupt) {
			continue
		}
		if err != nil {
			return indexed, fmt.Errorf("load %s: %w", id, err)
		}
		m.index.Insert(id, t.Vector)
		indexed++
	}
	return indexed, nil
}

// Stats reports indexed agents and live cache entries.
func (m *Matcher) Stats() (indexed, cached int) {
	return m.index.Len(), m.cache.len()
}

// #endregion maintenance
