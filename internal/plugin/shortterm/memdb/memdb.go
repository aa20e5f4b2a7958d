// Package memdb provides an in-process short-term store. It is the default
// for development and tests; production deployments use the redis plugin.
package memdb

import (
	"context"
	"sync"
	"time"

	"github.com/recallhq/recall-service/internal/model"
	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
)

func init() {
	registryshortterm.Register(registryshortterm.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registryshortterm.Store, error) {
			return New(), nil
		},
	})
}

type entry struct {
	rec      model.MemoryRecord
	deadline time.Time
}

// Store is a mutex-guarded map store with sweep-based expiry. Expired
// entries are also filtered lazily on read so correctness does not depend
// on sweep timing.
type Store struct {
	mu      sync.Mutex
	entries map[string]map[string]*entry // userID → recordID → entry
}

// New creates an empty in-memory short-term store.
func New() *Store {
	return &Store{entries: make(map[string]map[string]*entry)}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Put(_ context.Context, rec model.MemoryRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.entries[rec.UserID]
	if user == nil {
		user = make(map[string]*entry)
		s.entries[rec.UserID] = user
	}
	user[rec.ID.String()] = &entry{rec: rec, deadline: time.Now().Add(ttl)}
	return nil
}

func (s *Store) Get(_ context.Context, userID string, id string) (*model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(userID, id)
	if e == nil {
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

func (s *Store) List(_ context.Context, userID string) ([]model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MemoryRecord
	now := time.Now()
	for id, e := range s.entries[userID] {
		if now.After(e.deadline) {
			delete(s.entries[userID], id)
			continue
		}
		out = append(out, e.rec)
	}
	return out, nil
}

func (s *Store) IncrAccess(_ context.Context, userID string, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(userID, id)
	if e == nil {
		return 0, nil
	}
	e.rec.AccessCount++
	return e.rec.AccessCount, nil
}

func (s *Store) Delete(_ context.Context, userID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(userID, id) == nil {
		return false, nil
	}
	delete(s.entries[userID], id)
	return true, nil
}

func (s *Store) DeleteAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now()
	for _, e := range s.entries[userID] {
		if !now.After(e.deadline) {
			n++
		}
	}
	delete(s.entries, userID)
	return n, nil
}

func (s *Store) PurgeExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now()
	for userID, user := range s.entries {
		for id, e := range user {
			if now.After(e.deadline) {
				delete(user, id)
				n++
			}
		}
		if len(user) == 0 {
			delete(s.entries, userID)
		}
	}
	return n, nil
}

// live returns the entry when present and unexpired, evicting it otherwise.
// Callers must hold s.mu.
func (s *Store) live(userID, id string) *entry {
	user := s.entries[userID]
	if user == nil {
		return nil
	}
	e := user[id]
	if e == nil {
		return nil
	}
	if time.Now().After(e.deadline) {
		delete(user, id)
		return nil
	}
	return e
}

var _ registryshortterm.Store = (*Store)(nil)
