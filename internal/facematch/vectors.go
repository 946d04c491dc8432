package facematch

import "math"

const normEpsilon = 1e-8

// Normalize returns a unit-length copy of v. Vectors are always
// normalized before any distance comparison; normalizing an already
// normalized vector is a no-op up to floating tolerance.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Valid reports whether v is usable as an embedding: non-empty, finite,
// and with a norm that can be normalized away from zero.
func Valid(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		sum += f * f
	}
	return sum > 0
}

// Representative collapses one or more stored vectors for a person into
// a single reference vector: the element-wise mean, renormalized to unit
// length. Multiple registrations average out pose and lighting noise
// without a trained classifier. Vectors whose length disagrees with the
// first valid one are skipped. Returns nil when no valid vector remains.
func Representative(vectors [][]float32) []float32 {
	var mean []float64
	var dim, count int
	for _, v := range vectors {
		if !Valid(v) {
			continue
		}
		if mean == nil {
			dim = len(v)
			mean = make([]float64, dim)
		}
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i := range mean {
		out[i] = float32(mean[i] / float64(count))
	}
	return Normalize(out)
}

// Distance is the Euclidean distance between two unit vectors. A length
// mismatch yields +Inf so the pair can never be assigned.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
