package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-service/internal/memtest"
	"github.com/recallhq/recall-service/internal/model"
	chromemstore "github.com/recallhq/recall-service/internal/plugin/longterm/chromem"
	"github.com/recallhq/recall-service/internal/plugin/shortterm/memdb"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
)

type fixture struct {
	svc       *Service
	shortTerm *memdb.Store
	longTerm  *chromemstore.Store
	embedder  *memtest.Embedder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		shortTerm: memdb.New(),
		longTerm:  chromemstore.New(),
		embedder:  memtest.NewEmbedder(),
	}
	f.svc = NewService(f.shortTerm, f.longTerm, f.embedder, nil, opts)
	return f
}

func TestService_SaveInteractionCreatesShortTermRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	created, err := f.svc.SaveInteraction(ctx, "alice", "conv-1", "My name is Ada. I love hiking.", "Nice to meet you, Ada!")
	require.NoError(t, err)
	require.Equal(t, 2, created)

	records, err := f.shortTerm.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, model.TierShortTerm, rec.Tier)
		require.Equal(t, model.SourceConversation, rec.Source)
		require.NotEmpty(t, rec.Embedding)
		require.NotNil(t, rec.TTLDeadline)
	}
}

func TestService_SaveInteractionNothingExtracted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	created, err := f.svc.SaveInteraction(ctx, "alice", "conv-1", "What's the weather?", "Sunny.")
	require.NoError(t, err)
	require.Zero(t, created)
	require.Zero(t, f.embedder.Calls())
}

func TestService_SaveExplicitRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	id, err := f.svc.SaveExplicit(ctx, "alice", "  My anniversary is   June 3rd. ")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	records, err := f.svc.ListMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, id, records[0].ID)
	require.Equal(t, "My anniversary is June 3rd", records[0].Content)
	require.Equal(t, model.SourceExplicitSave, records[0].Source)
}

func TestService_SaveExplicitRejectsEmptyContent(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(context.Background(), "alice", " . ")
	require.Error(t, err)
	require.True(t, IsValidation(err))
}

func TestService_RetrievePromotesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PromotionThreshold: 3})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)
	_, err = f.svc.SaveExplicit(ctx, "alice", "I love hiking")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		result, err := f.svc.Retrieve(ctx, "alice", "Where does the user live? Paris?", 10, -1)
		require.NoError(t, err)
		require.False(t, result.Degraded)
		require.Len(t, result.Memories, 1, "retrieval %d", i)
		require.Equal(t, "I live in Paris", result.Memories[0].Content)
		require.Equal(t, int64(i), result.Memories[0].AccessCount)

		if i < 3 {
			require.Equal(t, model.TierShortTerm, result.Memories[0].Tier)
		} else {
			require.Equal(t, model.TierLongTerm, result.Memories[0].Tier)
		}
	}

	// Touches after promotion keep counting on the long-term store.
	result, err := f.svc.Retrieve(ctx, "alice", "Where does the user live? Paris?", 10, -1)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	require.Equal(t, model.TierLongTerm, result.Memories[0].Tier)
	require.Equal(t, int64(4), result.Memories[0].AccessCount)

	stRecords, err := f.shortTerm.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stRecords, 1)
	require.Equal(t, "I love hiking", stRecords[0].Content)

	ltRecords, err := f.longTerm.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ltRecords, 1)
	require.Equal(t, "I live in Paris", ltRecords[0].Content)
	require.Nil(t, ltRecords[0].TTLDeadline)
}

func TestPromoter_ConcurrentTouchesPromoteOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PromotionThreshold: 3})

	id, err := f.svc.SaveExplicit(ctx, "alice", "I work at Acme")
	require.NoError(t, err)
	rec, err := f.shortTerm.Get(ctx, "alice", id.String())
	require.NoError(t, err)
	require.NotNil(t, rec)

	const touches = 10
	done := make(chan struct{})
	for i := 0; i < touches; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			f.svc.promoter.Touch(ctx, *rec)
		}()
	}
	for i := 0; i < touches; i++ {
		<-done
	}

	ltRecords, err := f.longTerm.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ltRecords, 1)
	require.Equal(t, model.TierLongTerm, ltRecords[0].Tier)

	stRecords, err := f.shortTerm.List(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, stRecords)
}

func TestService_UserIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)

	result, err := f.svc.Retrieve(ctx, "bob", "Paris", 10, 0)
	require.NoError(t, err)
	require.Empty(t, result.Memories)

	records, err := f.svc.ListMemories(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestService_RetrieveListMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "oldest fact")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.SaveExplicit(ctx, "alice", "newest fact")
	require.NoError(t, err)

	result, err := f.svc.Retrieve(ctx, "alice", "", 1, 0)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	require.Equal(t, "newest fact", result.Memories[0].Content)
	require.Zero(t, result.Memories[0].Score)
}

func TestService_RetrieveKeywordFallbackWhenEmbedderFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)

	f.embedder.SetFailing(true)
	result, err := f.svc.Retrieve(ctx, "alice", "Paris", 10, 0)
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Len(t, result.Memories, 1)
	require.Equal(t, "I live in Paris", result.Memories[0].Content)
}

func TestService_RetrieveZeroThresholdReturnsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)

	// The default threshold drops a record unrelated to the query.
	result, err := f.svc.Retrieve(ctx, "alice", "quantum chromodynamics", 10, -1)
	require.NoError(t, err)
	require.Empty(t, result.Memories)

	// An explicit zero threshold keeps it, zero score and all.
	result, err = f.svc.Retrieve(ctx, "alice", "quantum chromodynamics", 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	require.Equal(t, "I live in Paris", result.Memories[0].Content)
	require.Zero(t, result.Memories[0].Score)
}

func TestService_RetrieveDegradedWhenBothStoresDown(t *testing.T) {
	down := errors.New("connection refused")
	svc := NewService(&downShortTerm{err: down}, &downLongTerm{err: down}, nil, nil, Options{})

	result, err := svc.Retrieve(context.Background(), "alice", "anything", 10, 0)
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Empty(t, result.Memories)
}

func TestService_DeleteMemoryAbsentTargetIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	deleted, err := f.svc.DeleteMemory(ctx, "alice", "never stored")
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestService_DeleteMemoryExactMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)
	_, err = f.svc.SaveExplicit(ctx, "alice", "I live in Paris, France")
	require.NoError(t, err)

	deleted, err := f.svc.DeleteMemory(ctx, "alice", "i live in paris")
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	records, err := f.svc.ListMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "I live in Paris, France", records[0].Content)
}

func TestService_ForgetByPartialMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "I live in Paris")
	require.NoError(t, err)
	_, err = f.svc.SaveExplicit(ctx, "alice", "My sister lives in PARIS too")
	require.NoError(t, err)
	_, err = f.svc.SaveExplicit(ctx, "alice", "I love hiking")
	require.NoError(t, err)

	deleted, err := f.svc.ForgetByPartialMatch(ctx, "alice", "paris")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	records, err := f.svc.ListMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "I love hiking", records[0].Content)
}

func TestService_ClearAllRequiresConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "keep me")
	require.NoError(t, err)

	_, err = f.svc.ClearAll(ctx, "alice", false)
	require.Error(t, err)
	require.True(t, IsValidation(err))

	records, err := f.svc.ListMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestService_ClearAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SaveExplicit(ctx, "alice", "short-term fact")
	require.NoError(t, err)
	require.NoError(t, f.longTerm.Upsert(ctx, model.MemoryRecord{
		ID:        uuid.New(),
		UserID:    "alice",
		Content:   "long-term fact",
		CreatedAt: time.Now(),
		Tier:      model.TierLongTerm,
	}))

	deleted, err := f.svc.ClearAll(ctx, "alice", true)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	deleted, err = f.svc.ClearAll(ctx, "alice", true)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

type downShortTerm struct{ err error }

func (s *downShortTerm) Name() string { return "down" }
func (s *downShortTerm) Put(context.Context, model.MemoryRecord, time.Duration) error {
	return s.err
}
func (s *downShortTerm) Get(context.Context, string, string) (*model.MemoryRecord, error) {
	return nil, s.err
}
func (s *downShortTerm) List(context.Context, string) ([]model.MemoryRecord, error) {
	return nil, s.err
}
func (s *downShortTerm) IncrAccess(context.Context, string, string) (int64, error) {
	return 0, s.err
}
func (s *downShortTerm) Delete(context.Context, string, string) (bool, error) {
	return false, s.err
}
func (s *downShortTerm) DeleteAll(context.Context, string) (int, error) { return 0, s.err }
func (s *downShortTerm) PurgeExpired(context.Context) (int, error)      { return 0, s.err }

type downLongTerm struct{ err error }

func (s *downLongTerm) Name() string                                     { return "down" }
func (s *downLongTerm) Upsert(context.Context, model.MemoryRecord) error { return s.err }
func (s *downLongTerm) IncrAccess(context.Context, string, uuid.UUID) (int64, error) {
	return 0, s.err
}
func (s *downLongTerm) Delete(context.Context, string, uuid.UUID) (bool, error) {
	return false, s.err
}
func (s *downLongTerm) DeleteAll(context.Context, string) (int, error) { return 0, s.err }
func (s *downLongTerm) List(context.Context, string) ([]model.MemoryRecord, error) {
	return nil, s.err
}
func (s *downLongTerm) Search(context.Context, string, []float32, int) ([]registrylongterm.SearchResult, error) {
	return nil, s.err
}
