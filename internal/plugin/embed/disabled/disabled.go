// Package disabled provides the "none" embedder. Every call fails, which
// drops the retrieval path into keyword-only matching — the same degraded
// mode a provider outage produces.
package disabled

import (
	"context"
	"fmt"

	registryembed "github.com/recallhq/recall-service/internal/registry/embed"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registryembed.Embedder, error) {
			return &disabledEmbedder{}, nil
		},
	})
}

type disabledEmbedder struct{}

func (d *disabledEmbedder) ModelName() string { return "disabled" }
func (d *disabledEmbedder) Dimension() int    { return 0 }

func (d *disabledEmbedder) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding disabled")
}

var _ registryembed.Embedder = (*disabledEmbedder)(nil)
