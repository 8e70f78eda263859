package fingerprint

// #region imports
import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// #endregion imports

// #region encoding

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding. Same logical composite
// always produces identical bytes, so digests are stable.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("fingerprint: CBOR encoder initialization failed: " + err.Error())
	}
}

// digestBody is the canonical digest payload. GeneratedAt is excluded
// so re-submissions of the same observation hash identically.
type digestBody struct {
	Claim      string
	Vector     [128]float32
	Weights    map[string]float64
	Confidence float64
}

// roundedBody quantizes slots to 1e-3 so near-identical bursts collide.
type roundedBody struct {
	Claim string
	Slots [128]int32
}

// #endregion encoding

// #region digest

// Digest returns the BLAKE3 content address of a composite.
func Digest(c Composite) ([32]byte, error) {
	body := digestBody{
		Claim:      c.AgentClaim,
		Vector:     c.Vector,
		Confidence: c.Confidence,
		Weights:    make(map[string]float64, len(c.Weights)),
	}
	for m, w := range c.Weights {
		body.Weights[string(m)] = w
	}
	raw, err := encMode.Marshal(body)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode composite: %w", err)
	}
	return blake3.Sum256(raw), nil
}

// RoundedDigest hashes the claim plus the vector quantized to 1e-3.
// Used as the match-cache key: repeated near-identical inputs within a
// burst share an entry, while genuinely different fingerprints do not.
func RoundedDigest(c Composite) ([32]byte, error) {
	body := roundedBody{Claim: c.AgentClaim}
	for i, f := range c.Vector {
		body.Slots[i] = int32(math.Round(float64(f) * 1000))
	}
	raw, err := encMode.Marshal(body)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode rounded composite: %w", err)
	}
	return blake3.Sum256(raw), nil
}

// #endregion digest
