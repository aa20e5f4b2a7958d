package memdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-service/internal/model"
)

func newRecord(userID, content string) model.MemoryRecord {
	return model.MemoryRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		Source:    model.SourceConversation,
		CreatedAt: time.Now(),
		Tier:      model.TierShortTerm,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := newRecord("alice", "I live in Paris")

	require.NoError(t, s.Put(ctx, rec, time.Hour))

	got, err := s.Get(ctx, "alice", rec.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, rec.Content, got.Content)
}

func TestStore_ExpiredRecordIsGone(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := newRecord("alice", "ephemeral")

	require.NoError(t, s.Put(ctx, rec, -time.Second))

	got, err := s.Get(ctx, "alice", rec.ID.String())
	require.NoError(t, err)
	require.Nil(t, got)

	count, err := s.IncrAccess(ctx, "alice", rec.ID.String())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestStore_UserIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := newRecord("alice", "secret")
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	got, err := s.Get(ctx, "bob", rec.ID.String())
	require.NoError(t, err)
	require.Nil(t, got)

	list, err := s.List(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestStore_IncrAccessIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := newRecord("alice", "hot record")
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	const workers = 16
	counts := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, _ := s.IncrAccess(ctx, "alice", rec.ID.String())
			counts[i] = n
		}(i)
	}
	wg.Wait()

	// Every caller observed a distinct count.
	seen := map[int64]bool{}
	for _, n := range counts {
		require.False(t, seen[n], "count %d observed twice", n)
		seen[n] = true
	}
	require.True(t, seen[int64(workers)])
}

func TestStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, newRecord("alice", "old"), -time.Second))
	require.NoError(t, s.Put(ctx, newRecord("alice", "fresh"), time.Hour))

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "fresh", list[0].Content)
}

func TestStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, newRecord("alice", "one"), time.Hour))
	require.NoError(t, s.Put(ctx, newRecord("alice", "two"), time.Hour))
	require.NoError(t, s.Put(ctx, newRecord("bob", "keep"), time.Hour))

	n, err := s.DeleteAll(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Idempotent: a second wipe deletes nothing.
	n, err = s.DeleteAll(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)

	list, err := s.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
}
