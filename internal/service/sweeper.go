// Package service holds the background services that run alongside the
// HTTP listener for the lifetime of the process.
package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
)

// SweeperService purges expired short-term records on a fixed interval.
// Expiry is already enforced lazily on every read, so the sweeper only
// reclaims storage from records nobody asks for again; backends with
// native TTL support (redis) make its passes a no-op.
type SweeperService struct {
	store    registryshortterm.Store
	interval time.Duration
}

// NewSweeperService creates a new SweeperService.
func NewSweeperService(store registryshortterm.Store, interval time.Duration) *SweeperService {
	return &SweeperService{store: store, interval: interval}
}

// Start runs the sweeper until ctx is cancelled.
func (s *SweeperService) Start(ctx context.Context) {
	if s == nil || s.store == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweeperService) runOnce(ctx context.Context) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		log.Error("Short-term expiry sweep failed", "err", err)
	} else if n > 0 {
		log.Info("Short-term expiry sweep", "purged", n)
	}
}
