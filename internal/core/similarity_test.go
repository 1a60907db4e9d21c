package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero magnitude", []float32{0, 0}, []float32{1, 2}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineLengthMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! Go is FUN.")
	assert.Equal(t, []string{"hello", "world", "fun"}, got)
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	assert.Empty(t, Tokenize("a an to it"))
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"redis": true, "cache": true, "lru": true}
	b := map[string]bool{"redis": true, "cache": true, "ttl": true}
	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)

	assert.Equal(t, 0.0, Jaccard(nil, b))
	assert.Equal(t, 0.0, Jaccard(a, map[string]bool{}))
}

func TestTextSimilarityIdenticalTexts(t *testing.T) {
	text := "configure the database connection pool"
	assert.InDelta(t, 1.0, TextSimilarity(text, text), 1e-9)
}

func TestTextSimilarityDisjointTexts(t *testing.T) {
	assert.Equal(t, 0.0, TextSimilarity("alpha bravo charlie", "delta echo foxtrot"))
}

func TestTFIDFSimilarity(t *testing.T) {
	a := "postgres connection pooling with pgbouncer"
	b := "postgres connection pooling tuning"
	idf := ComputeIDF([][]string{
		Tokenize(a),
		Tokenize(b),
		Tokenize("weekend gardening notes about tulips"),
	})

	sim := TFIDFSimilarity(a, b, idf)
	assert.Greater(t, sim, 0.0)
	assert.LessOrEqual(t, sim, 1.0)

	// 2-doc fallback corpus: every shared term has idf ln(2/2) = 0, so the
	// weighted vectors are orthogonal or empty
	assert.Equal(t, 0.0, TFIDFSimilarity(a, b, nil))
	assert.Equal(t, 0.0, TFIDFSimilarity("", "anything here", nil))
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float32{{1, 2}, {3, 4}})
	assert.Equal(t, []float32{2, 3}, got)

	assert.Nil(t, Centroid(nil))
}
