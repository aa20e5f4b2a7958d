package embed

import (
	"context"
	"fmt"
)

// Embedder turns text into a fixed-length vector. Treated as an external
// call: it has latency and failure modes, and callers must degrade to
// keyword matching when it fails.
type Embedder interface {
	// EmbedTexts embeds a batch of texts, one vector per input, in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector size, or 0 when unknown.
	Dimension() int

	// ModelName returns the embedding model identifier.
	ModelName() string
}

// Loader creates an Embedder from config.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin represents an embedding provider plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an embedding provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered embedding plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named embedding plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown embedder %q; valid: %v", name, Names())
}
