package model

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies which backing store currently holds a memory record.
type Tier string

const (
	// TierShortTerm is the ephemeral tier. Records carry a TTL deadline and
	// may expire silently at any time after it.
	TierShortTerm Tier = "short_term"
	// TierLongTerm is the durable tier. Records have no expiry and are only
	// removed by explicit user-initiated deletion.
	TierLongTerm Tier = "long_term"
)

// Source records how a memory came to exist. Set at creation, never mutated.
type Source string

const (
	// SourceConversation marks records extracted heuristically from a
	// user/assistant exchange.
	SourceConversation Source = "conversation"
	// SourceExplicitSave marks records the user asked to keep
	// ("remember that ...") or saved through the explicit save operation.
	SourceExplicitSave Source = "explicit_save"
)

// MemoryRecord is the canonical memory item shared by both tiers.
// UserID is the sole isolation boundary: every store operation is scoped
// by it and no query may cross users.
type MemoryRecord struct {
	// ID is the opaque unique identifier, generated at creation.
	ID uuid.UUID `json:"id"`

	// UserID is the owning user.
	UserID string `json:"userId"`

	// Content is the normalized text extracted from an interaction.
	// Never empty.
	Content string `json:"content"`

	// Embedding is the vector produced at creation time. Nil when the
	// embedding provider was unavailable; the record then matches by
	// keyword overlap only.
	Embedding []float32 `json:"embedding,omitempty"`

	// Source is conversation or explicit_save.
	Source Source `json:"source"`

	// CreatedAt is when the record was created. Immutable.
	CreatedAt time.Time `json:"createdAt"`

	// AccessCount counts qualifying retrievals. Incremented exactly once
	// per retrieval event that returned this record.
	AccessCount int64 `json:"accessCount"`

	// Tier is the current backing tier. Transitions short_term →
	// long_term exactly once; never reverts.
	Tier Tier `json:"tier"`

	// TTLDeadline is set only while Tier is short_term. Cleared on
	// promotion; long-term records never expire.
	TTLDeadline *time.Time `json:"ttlDeadline,omitempty"`
}

// Expired reports whether a short-term record is past its TTL deadline.
// Long-term records never expire.
func (r *MemoryRecord) Expired(now time.Time) bool {
	return r.Tier == TierShortTerm && r.TTLDeadline != nil && now.After(*r.TTLDeadline)
}

// ScoredRecord pairs a record with the relevance score the retrieval path
// assigned to it.
type ScoredRecord struct {
	MemoryRecord
	// Score is cosine similarity when both query and record had
	// embeddings, else a keyword-overlap score. In [0, 1].
	Score float64 `json:"score"`
}

// CacheEntry is a stored response-cache value. The cache is colocated with
// the memory subsystem but unrelated to it: no tiers, no promotion.
type CacheEntry struct {
	// Value is the cached natural-language response text.
	Value string `json:"value"`

	// Version is the configuration version active when the entry was
	// written. A read under a different active version is a miss and
	// purges the entry.
	Version string `json:"version"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cachedAt"`
}
