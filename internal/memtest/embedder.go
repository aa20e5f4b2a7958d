// Package memtest provides deterministic test doubles for the memory
// subsystem.
package memtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

// Embedder produces deterministic bag-of-words embeddings: each token
// hashes into a fixed bucket, so texts sharing tokens get a positive
// cosine similarity and unrelated texts score near zero. Good enough to
// exercise vector retrieval without a model.
type Embedder struct {
	dimensions int
	calls      atomic.Int64
	fail       atomic.Bool
}

// NewEmbedder creates an embedder with a small fixed dimension.
func NewEmbedder() *Embedder {
	return &Embedder{dimensions: 64}
}

// SetFailing makes every subsequent EmbedTexts call return an error,
// simulating a provider outage.
func (m *Embedder) SetFailing(fail bool) {
	m.fail.Store(fail)
}

// Calls returns how many EmbedTexts calls were made.
func (m *Embedder) Calls() int64 {
	return m.calls.Load()
}

func (m *Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.fail.Load() {
		return nil, context.DeadlineExceeded
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = m.embed(text)
	}
	return embeddings, nil
}

func (m *Embedder) Dimension() int {
	return m.dimensions
}

func (m *Embedder) ModelName() string {
	return "bag-of-words-mock"
}

func (m *Embedder) embed(text string) []float32 {
	vec := make([]float32, m.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'")
		if token == "" {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(token))
		vec[h.Sum64()%uint64(m.dimensions)]++
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
