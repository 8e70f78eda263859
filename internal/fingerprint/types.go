package fingerprint

// #region imports
import (
	"time"
)

// #endregion imports

// #region modalities

// Modality identifies one behavioral signal channel.
type Modality string

const (
	Timing   Modality = "timing"   // API call timing patterns
	Resource Modality = "resource" // CPU / memory consumption patterns
	Memory   Modality = "memory"   // memory access patterns
	Sequence Modality = "sequence" // action sequence patterns
)

// SegmentWidth is the number of feature slots each modality contributes.
const SegmentWidth = 32

// Dim is the dimensionality of composite and template vectors.
const Dim = 128

// Modalities returns all channels in canonical segment order.
// Every loop over modalities uses this order so results are deterministic.
func Modalities() []Modality {
	return []Modality{Timing, Resource, Memory, Sequence}
}

// SegmentMap maps modality names to [start, end) ranges in a 128-dim vector.
type SegmentMap map[Modality][2]int

// DefaultSegmentMap returns the canonical layout: four contiguous 32-slot segments.
func DefaultSegmentMap() SegmentMap {
	return SegmentMap{
		Timing:   {0, 32},
		Resource: {32, 64},
		Memory:   {64, 96},
		Sequence: {96, 128},
	}
}

// Segment returns the canonical [start, end) range for a modality.
// The second return is false for an unknown modality.
func Segment(m Modality) ([2]int, bool) {
	seg, ok := DefaultSegmentMap()[m]
	return seg, ok
}

// #endregion modalities

// #region sample

// Sample is one modality observation produced by an external extractor.
// Immutable once created.
type Sample struct {
	Modality   Modality
	Features   []float32
	CapturedAt time.Time
	Hint       float64 // extractor's own confidence in [0,1]; 0 means unset and reads as 1
}

// HintOr returns the sample hint, treating an unset hint as full confidence.
func (s Sample) HintOr() float64 {
	if s.Hint <= 0 {
		return 1.0
	}
	if s.Hint > 1 {
		return 1.0
	}
	return s.Hint
}

// #endregion sample

// #region quality

// QualityScore grades one modality sample. All fields are in [0,1].
// Derived per sample and never persisted beyond the fusion call.
type QualityScore struct {
	Modality        Modality
	Completeness    float64
	Consistency     float64
	SignalToNoise   float64
	Distinctiveness float64
	Reliability     float64
}

// #endregion quality

// #region composite

// Composite is the fused fingerprint produced for one authentication attempt.
// Weights always sum to 1 (±1e-6) over the contributing modalities.
type Composite struct {
	AgentClaim  string // empty for pure identification
	Vector      [128]float32
	Weights     map[Modality]float64
	Confidence  float64
	GeneratedAt time.Time
}

// Contributing returns the modalities carrying non-zero weight, in canonical order.
func (c Composite) Contributing() []Modality {
	var out []Modality
	for _, m := range Modalities() {
		if c.Weights[m] > 0 {
			out = append(out, m)
		}
	}
	return out
}

// #endregion composite
