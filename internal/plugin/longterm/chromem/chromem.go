// Package chromem provides an embedded long-term store backed by
// chromem-go. It runs fully in-process with zero infrastructure, which
// makes it the default for development and tests. Deployments that need
// durability use the qdrant or pgvector plugins.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/recallhq/recall-service/internal/model"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
)

func init() {
	registrylongterm.Register(registrylongterm.Plugin{
		Name: "chromem",
		Loader: func(ctx context.Context) (registrylongterm.Store, error) {
			return New(), nil
		},
	})
}

// Store keeps the similarity index in chromem collections (one per user)
// and a typed side index for listing and deletion, which the collection
// API does not cover.
type Store struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	records     map[string]map[uuid.UUID]model.MemoryRecord // userID → id → record
}

// New creates an empty embedded long-term store.
func New() *Store {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		records:     make(map[string]map[uuid.UUID]model.MemoryRecord),
	}
}

func (s *Store) Name() string { return "chromem" }

// collection returns the per-user chromem collection, creating it on first
// use. Per-user collections are the isolation boundary for vector queries.
func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col := s.collections[userID]
	s.mu.RUnlock()
	if col != nil {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col := s.collections[userID]; col != nil {
		return col, nil
	}
	col, err := s.db.CreateCollection(fmt.Sprintf("user-%s", userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *Store) Upsert(ctx context.Context, rec model.MemoryRecord) error {
	if len(rec.Embedding) > 0 {
		col, err := s.collection(rec.UserID)
		if err != nil {
			return err
		}
		err = col.AddDocument(ctx, chromem.Document{
			ID:        rec.ID.String(),
			Content:   rec.Content,
			Embedding: rec.Embedding,
			Metadata:  map[string]string{"userId": rec.UserID},
		})
		if err != nil {
			return fmt.Errorf("chromem: add document: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.records[rec.UserID]
	if user == nil {
		user = make(map[uuid.UUID]model.MemoryRecord)
		s.records[rec.UserID] = user
	}
	user[rec.ID] = rec
	return nil
}

func (s *Store) IncrAccess(_ context.Context, userID string, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID][id]
	if !ok {
		return 0, nil
	}
	rec.AccessCount++
	s.records[userID][id] = rec
	return rec.AccessCount, nil
}

func (s *Store) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]registrylongterm.SearchResult, error) {
	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []registrylongterm.SearchResult
	for _, res := range results {
		id, err := uuid.Parse(res.ID)
		if err != nil {
			continue
		}
		rec, ok := s.records[userID][id]
		if !ok {
			continue
		}
		out = append(out, registrylongterm.SearchResult{
			Record: rec,
			Score:  float64(res.Similarity),
		})
	}
	return out, nil
}

func (s *Store) List(_ context.Context, userID string) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MemoryRecord, 0, len(s.records[userID]))
	for _, rec := range s.records[userID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	rec, ok := s.records[userID][id]
	if ok {
		delete(s.records[userID], id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if len(rec.Embedding) > 0 {
		col, err := s.collection(userID)
		if err != nil {
			return true, err
		}
		if err := col.Delete(ctx, nil, nil, id.String()); err != nil {
			return true, fmt.Errorf("chromem: delete document: %w", err)
		}
	}
	return true, nil
}

func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	n := len(s.records[userID])
	delete(s.records, userID)
	col := s.collections[userID]
	delete(s.collections, userID)
	s.mu.Unlock()

	if col != nil {
		if err := s.db.DeleteCollection(fmt.Sprintf("user-%s", userID)); err != nil {
			return n, fmt.Errorf("chromem: delete collection: %w", err)
		}
	}
	return n, nil
}

var _ registrylongterm.Store = (*Store)(nil)
