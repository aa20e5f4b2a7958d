package memory

import (
	"math"
	"strings"
	"unicode"
)

// cosineSimilarity returns the cosine similarity of two vectors mapped into
// [0, 1]. Mismatched or empty vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clampScore(sim)
}

// clampScore maps a raw cosine similarity onto [0, 1]. Negative similarity
// carries no more relevance signal than orthogonality, so it clamps to 0.
// Applied to locally computed and backend-reported scores alike so
// thresholds mean the same thing for both tiers.
func clampScore(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "do": true, "for": true, "from": true,
	"has": true, "have": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "of": true, "on": true, "or": true, "so": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "with": true, "you": true, "your": true,
}

// tokenize lowercases text and splits it into content-bearing terms.
func tokenize(s string) map[string]bool {
	terms := map[string]bool{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		terms[f] = true
	}
	return terms
}

// keywordScore is the fallback relevance score used when either side lacks
// an embedding: the fraction of query terms present in the content.
func keywordScore(queryTerms map[string]bool, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := tokenize(content)
	matched := 0
	for t := range queryTerms {
		if contentTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
