package longterm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/recallhq/recall-service/internal/model"
)

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	Record model.MemoryRecord
	// Score is the backend's cosine similarity in [0, 1].
	Score float64
}

// Store is the durable tier: a vector-similarity store with full metadata.
// Records here have no expiry and are only removed by explicit deletion.
type Store interface {
	// Upsert inserts or replaces a record by ID. Idempotent: repeating an
	// upsert with the same ID never creates a duplicate, which is what
	// keeps concurrent promotions safe.
	Upsert(ctx context.Context, rec model.MemoryRecord) error

	// IncrAccess adds one to a record's access count and returns the new
	// value, or 0 when the record is absent. Backends make the increment
	// atomic so concurrent touches never lose counts.
	IncrAccess(ctx context.Context, userID string, id uuid.UUID) (int64, error)

	// Search returns up to limit records nearest to the embedding, scoped
	// to userID, highest similarity first.
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]SearchResult, error)

	// List returns all records for a user. Used for keyword-only matching
	// and the list/fallback retrieval mode.
	List(ctx context.Context, userID string) ([]model.MemoryRecord, error)

	// Delete removes a record. Returns false when it was already absent.
	Delete(ctx context.Context, userID string, id uuid.UUID) (bool, error)

	// DeleteAll removes every record for a user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)

	// Name returns the plugin name (e.g. "qdrant", "pgvector", "chromem").
	Name() string
}

// Loader creates a Store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a long-term store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a long-term store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered long-term store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named long-term store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown long-term store %q; valid: %v", name, Names())
}
