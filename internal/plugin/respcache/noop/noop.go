package noop

import (
	"context"
	"time"

	registryrespcache "github.com/recallhq/recall-service/internal/registry/respcache"
)

func init() {
	registryrespcache.Register(registryrespcache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registryrespcache.Backend, error) {
			return &noopBackend{}, nil
		},
	})
}

type noopBackend struct{}

func (n *noopBackend) Available() bool                                                  { return false }
func (n *noopBackend) Get(_ context.Context, _ string) ([]byte, error)                  { return nil, nil }
func (n *noopBackend) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (n *noopBackend) Remove(_ context.Context, _ string) error                         { return nil }

var _ registryrespcache.Backend = (*noopBackend)(nil)
