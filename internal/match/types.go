package match

// #region imports
import (
	"errors"
	"time"
)

// #endregion imports

// #region metric

// Metric selects the exact similarity function applied to probed candidates.
type Metric string

const (
	// MetricCosine scores candidates by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricEuclidean scores candidates by normalized Euclidean similarity.
	MetricEuclidean Metric = "euclidean"
)

// #endregion metric

// #region config

// Config holds thresholds and limits for candidate retrieval and scoring.
type Config struct {
	Metric         Metric        // exact similarity metric for retrieved candidates
	AcceptFloor    float64       // min similarity for a candidate to count at all
	HighConfidence float64       // early-termination threshold
	MaxCandidates  int           // max IDs gathered from the index per call
	ProjectionBits int           // hyperplanes in the signature, <= 30
	ProbeRadius    int           // max Hamming distance probed around the query signature
	CacheSize      int           // bounded LRU entries for repeated-input bursts
	CacheTTL       time.Duration // staleness bound for cached results
	Seed           uint64        // hyperplane generator seed, fixed per deployment
}

// DefaultConfig returns sensible defaults for real-time identification.
func DefaultConfig() Config {
	return Config{
		Metric:         MetricCosine,
		AcceptFloor:    0.6,
		HighConfidence: 0.95,
		MaxCandidates:  8,
		ProjectionBits: 16,
		ProbeRadius:    2,
		CacheSize:      512,
		CacheTTL:       2 * time.Second,
		Seed:           0x5eed,
	}
}

// #endregion config

// #region candidate

// Candidate is one scored template, ephemeral within a single Identify call.
type Candidate struct {
	AgentID       string
	Similarity    float64
	LastEvolvedAt time.Time
}

// #endregion candidate

// #region result

// Result captures the outcome of one identification call.
type Result struct {
	Best       Candidate
	Candidates []Candidate // descending by similarity, all above the floor
	Probed     int         // IDs gathered from the index
	Scored     int         // templates actually loaded and scored
	Dropped    int         // probed IDs skipped for missing or corrupt templates
	EarlyExit  bool        // scoring stopped before exhausting probed IDs
	CacheHit   bool        // served from the bounded LRU
}

// #endregion result

// #region errors

// ErrNoCandidates reports that no template scored at or above the
// acceptance floor. Callers surface it as a rejected decision, not a fault.
var ErrNoCandidates = errors.New("no candidates above similarity floor")

// #endregion errors
