package reembed

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a batch mixes vector sizes.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidVector is returned for empty vectors or non-finite components.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

// NormalizeVector scales v to unit length, returning a new slice. Zero
// vectors come back as zero vectors of the same size.
func NormalizeVector(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// normalizeBatch normalizes every vector of one embedding call. All vectors
// must be non-empty, finite and share one dimension.
func normalizeBatch(vectors [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: vector %d is empty", ErrInvalidVector, i)
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return nil, fmt.Errorf("%w: vector %d has a non-finite component", ErrInvalidVector, i)
			}
		}
		out[i] = NormalizeVector(v)
	}
	return out, nil
}
