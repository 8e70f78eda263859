package match

// #region imports
import (
	"math"
	"math/rand"
	"sync"

	"github.com/mlindqvist/agentprint/go-engine/internal/fingerprint"
)

// #endregion imports

// #region index

// Index is a sign-random-projection hash over template vectors. A
// template's signature is the sign pattern of its projections onto a
// fixed set of pseudo-random hyperplanes; nearby vectors land in
// buckets at small Hamming distance.
type Index struct {
	mu      sync.RWMutex
	bits    int
	radius  int
	planes  [][fingerprint.Dim]float32
	rings   [][]uint32 // XOR masks grouped by Hamming weight 0..radius
	buckets map[uint32][]string
	sigs    map[string]uint32
}

// NewIndex builds an empty index with bits hyperplanes drawn from a
// seeded generator. The same seed always yields the same planes, so
// signatures are stable across restarts.
func NewIndex(bits, radius int, seed uint64) *Index {
	if bits < 1 {
		bits = 1
	}
	if bits > 30 {
		bits = 30
	}
	if radius < 0 {
		radius = 0
	}
	if radius > bits {
		radius = bits
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	planes := make([][fingerprint.Dim]float32, bits)
	for i := range planes {
		for j := range planes[i] {
			planes[i][j] = float32(rng.NormFloat64())
		}
	}

	rings := make([][]uint32, radius+1)
	for w := 0; w <= radius; w++ {
		rings[w] = ringMasks(bits, w)
	}

	return &Index{
		bits:    bits,
		radius:  radius,
		planes:  planes,
		rings:   rings,
		buckets: make(map[uint32][]string),
		sigs:    make(map[string]uint32),
	}
}

// ringMasks enumerates all bit masks of the given Hamming weight over
// the low bits, in ascending combination order.
func ringMasks(bits, weight int) []uint32 {
	if weight == 0 {
		return []uint32{0}
	}
	var masks []uint32
	idx := make([]int, weight)
	for i := range idx {
		idx[i] = i
	}
	for {
		var m uint32
		for _, b := range idx {
			m |= 1 << uint(b)
		}
		masks = append(masks, m)

		i := weight - 1
		for i >= 0 && idx[i] == bits-weight+i {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < weight; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return masks
}

// #endregion index

// #region signature

// signature projects a vector onto every hyperplane and packs the signs.
func (x *Index) signature(v [fingerprint.Dim]float32) uint32 {
	var sig uint32
	for i := range x.planes {
		var dot float64
		for j := range x.planes[i] {
			dot += float64(x.planes[i][j]) * float64(v[j])
		}
		if dot >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// ringBound is the best cosine similarity attainable by a candidate at
// Hamming distance h from the query signature, with slack for sign
// noise near plane boundaries.
func (x *Index) ringBound(h int) float64 {
	eff := h - ringSlack
	if eff < 0 {
		eff = 0
	}
	return math.Cos(math.Pi * float64(eff) / float64(x.bits))
}

const ringSlack = 1

// #endregion signature

// #region membership

// Insert registers or re-registers an agent's template vector.
func (x *Index) Insert(agentID string, v [fingerprint.Dim]float32) {
	sig := x.signature(v)
	x.mu.Lock()
	defer x.mu.Unlock()
	if old, ok := x.sigs[agentID]; ok {
		x.dropLocked(old, agentID)
	}
	x.sigs[agentID] = sig
	x.buckets[sig] = append(x.buckets[sig], agentID)
}

// Remove forgets an agent entirely.
func (x *Index) Remove(agentID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	sig, ok := x.sigs[agentID]
	if !ok {
		return
	}
	delete(x.sigs, agentID)
	x.dropLocked(sig, agentID)
}

// Len reports the number of indexed agents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.sigs)
}

func (x *Index) dropLocked(sig uint32, agentID string) {
	ids := x.buckets[sig]
	for i, id := range ids {
		if id == agentID {
			x.buckets[sig] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(x.buckets[sig]) == 0 {
		delete(x.buckets, sig)
	}
}

// #endregion membership

// #region probe

// probeHit is one candidate gathered from the index, tagged with the
// Hamming ring it was found in.
type probeHit struct {
	agentID string
	ring    int
}

// probe gathers up to limit agent IDs around the query vector's
// signature, walking Hamming rings outward. Hits within a ring keep
// bucket insertion order, so probing is deterministic.
func (x *Index) probe(v [fingerprint.Dim]float32, limit int) []probeHit {
	sig := x.signature(v)
	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []probeHit
	for r := 0; r <= x.radius; r++ {
		for _, mask := range x.rings[r] {
			for _, id := range x.buckets[sig^mask] {
				hits = append(hits, probeHit{agentID: id, ring: r})
				if len(hits) >= limit {
					return hits
				}
			}
		}
	}
	return hits
}

// #endregion probe
