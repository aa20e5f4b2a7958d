package shortterm

import (
	"context"
	"fmt"
	"time"

	"github.com/recallhq/recall-service/internal/model"
)

// Store is the ephemeral tier: a per-key TTL key/value store with atomic
// access counters. All operations are scoped by userID; implementations
// must never return another user's records.
type Store interface {
	// Put writes a record with the given TTL. The record's TTLDeadline
	// should already be set by the caller.
	Put(ctx context.Context, rec model.MemoryRecord, ttl time.Duration) error

	// Get returns a record, or nil when absent or expired.
	Get(ctx context.Context, userID string, id string) (*model.MemoryRecord, error)

	// List returns all live records for a user.
	List(ctx context.Context, userID string) ([]model.MemoryRecord, error)

	// IncrAccess atomically increments the record's access counter and
	// returns the new value. The atomicity is what makes promotion
	// exactly-once: only one concurrent caller observes the counter
	// crossing the threshold.
	IncrAccess(ctx context.Context, userID string, id string) (int64, error)

	// Delete removes a record. Returns false when it was already absent.
	Delete(ctx context.Context, userID string, id string) (bool, error)

	// DeleteAll removes every record for a user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)

	// PurgeExpired removes records past their TTL deadline and returns the
	// count. Backends with native expiry return 0.
	PurgeExpired(ctx context.Context) (int, error)

	// Name returns the plugin name (e.g. "redis", "memory").
	Name() string
}

// Loader creates a Store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a short-term store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a short-term store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered short-term store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named short-term store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown short-term store %q; valid: %v", name, Names())
}
