package respcache

import (
	"context"
	"fmt"
	"time"
)

// Backend is a raw TTL byte store under the response cache. Validation,
// fingerprinting and version checks live above it in internal/respcache;
// backends only move bytes.
type Backend interface {
	// Available reports whether the backend actually stores anything.
	Available() bool

	// Get returns the stored bytes, or nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores bytes under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes the key. Absent keys are a no-op.
	Remove(ctx context.Context, key string) error
}

// Loader creates a Backend from config.
type Loader func(ctx context.Context) (Backend, error)

// Plugin represents a response-cache backend plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a response-cache backend plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache backend plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache backend plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache backend %q; valid: %v", name, Names())
}
