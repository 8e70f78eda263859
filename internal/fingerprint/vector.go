package fingerprint

// #region imports
import (
	"math"
)

// #endregion imports

// #region norms

// Norm computes the L2 norm of a full vector.
func Norm(v [128]float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// SegmentNorm computes the L2 norm of one modality's segment.
// Unknown modalities yield 0.
func SegmentNorm(v [128]float32, m Modality) float64 {
	seg, ok := Segment(m)
	if !ok {
		return 0
	}
	var sum float64
	for i := seg[0]; i < seg[1]; i++ {
		sum += float64(v[i]) * float64(v[i])
	}
	return math.Sqrt(sum)
}

// Delta computes the element-wise difference a - b.
func Delta(a, b [128]float32) [128]float32 {
	var d [128]float32
	for i := range a {
		d[i] = a[i] - b[i]
	}
	return d
}

// #endregion norms

// #region similarity

// Cosine computes cosine similarity between two vectors, 0 when either is zero.
func Cosine(a, b [128]float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanSimilarity maps normalized Euclidean distance into [0,1]:
// 1 for identical vectors, approaching 0 as the relative distance grows.
func EuclideanSimilarity(a, b [128]float32) float64 {
	var dist, na, nb float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		dist += d * d
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) + math.Sqrt(nb)
	if denom == 0 {
		return 1 // both zero vectors are trivially identical
	}
	sim := 1 - math.Sqrt(dist)/denom
	if sim < 0 {
		return 0
	}
	return sim
}

// #endregion similarity
