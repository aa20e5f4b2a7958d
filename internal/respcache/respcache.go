// Package respcache caches finalized natural-language responses keyed by
// conversation and prompt. It shares a process with the memory subsystem
// but nothing else: cached responses never become memory records and
// memory operations never consult the cache.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-service/internal/extract"
	"github.com/recallhq/recall-service/internal/model"
	registryrespcache "github.com/recallhq/recall-service/internal/registry/respcache"
	"github.com/recallhq/recall-service/internal/security"
)

// Cache validates, fingerprints and versions entries on top of a raw byte
// backend.
type Cache struct {
	backend registryrespcache.Backend
	version string
	ttl     time.Duration
}

// New builds a response cache. version stamps every entry; bumping it
// invalidates the whole cache lazily, entry by entry on read.
func New(backend registryrespcache.Backend, version string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{backend: backend, version: version, ttl: ttl}
}

// Available reports whether the backend actually stores entries.
func (c *Cache) Available() bool {
	return c.backend.Available()
}

// Fingerprint derives the cache key. The prompt is normalized first so
// whitespace and trailing-punctuation variants of the same question share
// an entry; the version is part of the digest so a version bump can never
// collide with live keys.
func (c *Cache) Fingerprint(conversationID, prompt string) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(extract.Normalize(prompt))))
	h.Write([]byte{0})
	h.Write([]byte(c.version))
	return "resp:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for the prompt, or "" and false on a
// miss. An entry written under a different version counts as a miss and is
// purged on the spot.
func (c *Cache) Get(ctx context.Context, conversationID, prompt string) (string, bool) {
	key := c.Fingerprint(conversationID, prompt)
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		log.Warn("Response cache read failed", "err", err)
		security.IncCacheMiss()
		return "", false
	}
	if raw == nil {
		security.IncCacheMiss()
		return "", false
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Version != c.version {
		// Stale format or stale version; drop it so the next write is clean.
		if err := c.backend.Remove(ctx, key); err != nil {
			log.Warn("Failed to purge stale cache entry", "err", err)
		}
		security.IncCacheMiss()
		return "", false
	}
	security.IncCacheHit()
	return entry.Value, true
}

// Set stores a finalized response. A positive ttl overrides the cache's
// configured expiry for this entry only; zero or negative means the
// default. Values that are empty or look like structured payloads are
// skipped silently: the cache holds only plain natural-language text, and
// refusing to cache is never an error for the conversation flow.
func (c *Cache) Set(ctx context.Context, conversationID, prompt, value string, ttl time.Duration) {
	if !cacheable(value) {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := model.CacheEntry{
		Value:    value,
		Version:  c.version,
		CachedAt: time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, c.Fingerprint(conversationID, prompt), raw, ttl); err != nil {
		log.Warn("Response cache write failed", "err", err)
	}
}

// Invalidate removes the entry for one prompt.
func (c *Cache) Invalidate(ctx context.Context, conversationID, prompt string) {
	if err := c.backend.Remove(ctx, c.Fingerprint(conversationID, prompt)); err != nil {
		log.Warn("Response cache invalidation failed", "err", err)
	}
}

// cacheable rejects empty values and anything shaped like a structured
// payload (JSON object/array, XMLish markup). Tool-call results and other
// machine output must not be replayed as conversation responses.
func cacheable(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '{', '[':
		if json.Valid([]byte(trimmed)) {
			return false
		}
	case '<':
		if strings.HasSuffix(trimmed, ">") {
			return false
		}
	}
	return true
}
