package memory

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-service/internal/model"
	"github.com/recallhq/recall-service/internal/security"
)

const defaultRetrieveLimit = 10

// DefaultRelevanceThreshold drops records with effectively no relation to
// the query while keeping weak keyword-only matches alive.
const DefaultRelevanceThreshold = 0.1

// RetrieveResult is the merged answer of one retrieval pass.
type RetrieveResult struct {
	Memories       []model.ScoredRecord `json:"memories"`
	ShortTermCount int                  `json:"shortTermCount"`
	LongTermCount  int                  `json:"longTermCount"`

	// Degraded reports that a tier or the embedding provider was
	// unavailable and the result may be incomplete.
	Degraded bool `json:"degraded"`
}

// Retrieve returns the records most relevant to query, merged across both
// tiers and scored on a single [0, 1] scale. An empty query switches to
// list mode: the most recently created records, no threshold applied.
//
// A negative threshold selects DefaultRelevanceThreshold. Zero is honored
// literally: nothing scores below it, so every candidate is returned up to
// the limit.
//
// Every returned record counts as accessed, so retrieval itself drives
// promotion. A failing tier is skipped rather than failing the call; only
// when both tiers are down is the result empty, and even then the caller
// gets a degraded result, not an error.
func (s *Service) Retrieve(ctx context.Context, userID, query string, limit int, threshold float64) (*RetrieveResult, error) {
	if userID == "" {
		return nil, &ValidationError{Message: "userId is required"}
	}
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}
	if limit > s.opts.RetrieveLimitMax {
		limit = s.opts.RetrieveLimitMax
	}
	if threshold < 0 {
		threshold = DefaultRelevanceThreshold
	}

	candidates, degraded, err := s.gatherAll(ctx, userID)
	if err != nil {
		// Both tiers down: serve the conversation an empty context
		// instead of failing it.
		security.IncDegradedRetrieval()
		log.Error("Retrieval degraded, both stores unavailable", "user", userID, "err", err)
		return &RetrieveResult{Memories: []model.ScoredRecord{}, Degraded: true}, nil
	}

	var scored []model.ScoredRecord
	if query == "" {
		scored = listModeRecords(candidates, limit)
	} else {
		queryEmbedding, embedErr := s.embedQuery(ctx, query)
		if embedErr != nil {
			degraded = true
		}
		backendScores := s.backendScores(ctx, userID, queryEmbedding, limit, len(candidates))
		scored = rankCandidates(candidates, query, queryEmbedding, backendScores, threshold, limit)
	}

	result := &RetrieveResult{Memories: make([]model.ScoredRecord, 0, len(scored)), Degraded: degraded}
	for _, sr := range scored {
		sr.MemoryRecord = s.promoter.Touch(ctx, sr.MemoryRecord)
		if sr.Tier == model.TierLongTerm {
			result.LongTermCount++
		} else {
			result.ShortTermCount++
		}
		result.Memories = append(result.Memories, sr)
	}
	if degraded {
		security.IncDegradedRetrieval()
	}
	return result, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	embeddings, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(embeddings) != 1 {
		log.Warn("Query embedding failed, falling back to keyword matching", "err", err)
		return nil, ErrEmbeddingUnavailable
	}
	return embeddings[0], nil
}

// backendScores asks the long-term store to score its own records against
// the query embedding. Vector backends that do not return embeddings on
// List (qdrant, pgvector) need this; records the backend skips fall back
// to local scoring. A search failure only loses the backend scores, the
// candidates themselves came from List.
func (s *Service) backendScores(ctx context.Context, userID string, queryEmbedding []float32, limit, candidateCount int) map[string]float64 {
	if queryEmbedding == nil || candidateCount == 0 {
		return nil
	}
	searchLimit := limit
	if candidateCount > searchLimit {
		searchLimit = candidateCount
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	defer security.ObserveStoreLatency("long_term_search", time.Now())
	hits, err := s.longTerm.Search(ctx, userID, queryEmbedding, searchLimit)
	if err != nil {
		log.Warn("Long-term similarity search failed, scoring locally", "user", userID, "err", err)
		return nil
	}
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.Record.ID.String()] = clampScore(hit.Score)
	}
	return scores
}

// listModeRecords implements the empty-query path: newest first, scores
// zero, no threshold.
func listModeRecords(candidates []model.MemoryRecord, limit int) []model.ScoredRecord {
	sortByCreatedAtDesc(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	scored := make([]model.ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		scored = append(scored, model.ScoredRecord{MemoryRecord: rec})
	}
	return scored
}

// rankCandidates scores every candidate on one scale: the backend's own
// similarity score when it produced one, local cosine similarity when both
// embeddings are at hand, keyword overlap otherwise. Records below the
// threshold are dropped; survivors sort by score, newest first on ties.
func rankCandidates(candidates []model.MemoryRecord, query string, queryEmbedding []float32, backendScores map[string]float64, threshold float64, limit int) []model.ScoredRecord {
	queryTerms := tokenize(query)
	scored := make([]model.ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		score, ok := backendScores[rec.ID.String()]
		if !ok {
			if queryEmbedding != nil && len(rec.Embedding) == len(queryEmbedding) && len(rec.Embedding) > 0 {
				score = cosineSimilarity(queryEmbedding, rec.Embedding)
			} else {
				score = keywordScore(queryTerms, rec.Content)
			}
		}
		if score < threshold {
			continue
		}
		scored = append(scored, model.ScoredRecord{MemoryRecord: rec, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
