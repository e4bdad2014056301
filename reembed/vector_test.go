package reembed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"pythagorean", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{-1 / float32(math.Sqrt2), 1 / float32(math.Sqrt2)}},
		{"zero vector", []float32{0, 0, 0}, []float32{0, 0, 0}},
		{"empty", []float32{}, []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
		})
	}

	t.Run("input is not modified", func(t *testing.T) {
		input := []float32{3, 4}
		NormalizeVector(input)
		assert.Equal(t, []float32{3, 4}, input)
	})
}

func TestNormalizeVector_UnitLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.SliceOfN(rapid.Float32Range(-1000, 1000), 1, 64).Draw(t, "v")
		if magnitude(v) < 1e-3 {
			t.Skip("near-zero vector")
		}
		if got := magnitude(NormalizeVector(v)); math.Abs(got-1) > 1e-4 {
			t.Fatalf("magnitude %f, want 1", got)
		}
	})
}

func TestNormalizeBatch(t *testing.T) {
	t.Run("normalizes every vector", func(t *testing.T) {
		out, err := normalizeBatch([][]float32{{3, 4}, {0, 2}})
		require.NoError(t, err)
		assert.InDelta(t, 0.6, out[0][0], 1e-6)
		assert.InDelta(t, 1.0, out[1][1], 1e-6)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := normalizeBatch([][]float32{{1, 0}, {1, 0, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := normalizeBatch([][]float32{{}})
		assert.ErrorIs(t, err, ErrInvalidVector)
	})

	t.Run("non-finite component", func(t *testing.T) {
		_, err := normalizeBatch([][]float32{{1, float32(math.NaN())}})
		assert.ErrorIs(t, err, ErrInvalidVector)
		_, err = normalizeBatch([][]float32{{float32(math.Inf(1)), 0}})
		assert.ErrorIs(t, err, ErrInvalidVector)
	})

	t.Run("empty batch", func(t *testing.T) {
		out, err := normalizeBatch(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
