package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-6)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	require.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
}

func TestClampScore(t *testing.T) {
	require.Equal(t, 0.0, clampScore(-0.3))
	require.Equal(t, 1.0, clampScore(1.7))
	require.Equal(t, 0.42, clampScore(0.42))
}

func TestKeywordScore(t *testing.T) {
	require.Equal(t, 1.0, keywordScore(tokenize("Paris"), "I live in Paris"))
	require.Equal(t, 0.5, keywordScore(tokenize("Paris weather"), "I live in Paris"))
	require.Zero(t, keywordScore(tokenize("quantum physics"), "I live in Paris"))

	// Stopword-only queries cannot match anything.
	require.Zero(t, keywordScore(tokenize("the and of"), "the answer and more"))
}
