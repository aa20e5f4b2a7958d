// Package ristretto provides an in-process response-cache backend. Single
// replica only; shared deployments use the redis backend.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/recallhq/recall-service/internal/config"
	registryrespcache "github.com/recallhq/recall-service/internal/registry/respcache"
)

const defaultMaxCost = 64 * 1024 * 1024

func init() {
	registryrespcache.Register(registryrespcache.Plugin{
		Name:   "ristretto",
		Loader: load,
	})
}

func load(ctx context.Context) (registryrespcache.Backend, error) {
	maxCost := int64(defaultMaxCost)
	if cfg := config.FromContext(ctx); cfg != nil && cfg.RistrettoMaxCost > 0 {
		maxCost = cfg.RistrettoMaxCost
	}
	return New(maxCost)
}

// New creates a ristretto-backed cache with the given byte capacity.
func New(maxCost int64) (registryrespcache.Backend, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 100, // ~10x expected entries per ristretto guidance
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoBackend{cache: cache}, nil
}

type ristrettoBackend struct {
	cache *ristretto.Cache[string, []byte]
}

func (b *ristrettoBackend) Available() bool { return true }

func (b *ristrettoBackend) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := b.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (b *ristrettoBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	// Admission is async; Wait makes writes visible to an immediate read,
	// which both the version-purge path and the tests rely on.
	b.cache.Wait()
	return nil
}

func (b *ristrettoBackend) Remove(_ context.Context, key string) error {
	b.cache.Del(key)
	return nil
}

var _ registryrespcache.Backend = (*ristrettoBackend)(nil)
