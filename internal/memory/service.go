// Package memory is the orchestration core of the recall service: it owns
// record creation, the short-term → long-term promotion lifecycle, merged
// relevance retrieval across both tiers, and the user-scoped deletion
// operations. It is the only caller-facing entry point that touches the
// backing stores, so no code path can observe one tier without the other.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/recallhq/recall-service/internal/extract"
	"github.com/recallhq/recall-service/internal/model"
	registryembed "github.com/recallhq/recall-service/internal/registry/embed"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
	"github.com/recallhq/recall-service/internal/security"
)

// Options tunes the service. Zero values fall back to policy defaults.
type Options struct {
	// PromotionThreshold is the access count at which a short-term record
	// migrates to the long-term store. Default 3.
	PromotionThreshold int64

	// ShortTermTTL is the lifetime of an unpromoted record. Default 1h.
	ShortTermTTL time.Duration

	// StoreTimeout bounds every backing-store call. Default 5s.
	StoreTimeout time.Duration

	// RetrieveLimitMax caps the per-request result limit. Default 100.
	RetrieveLimitMax int
}

func (o Options) withDefaults() Options {
	if o.PromotionThreshold <= 0 {
		o.PromotionThreshold = 3
	}
	if o.ShortTermTTL <= 0 {
		o.ShortTermTTL = time.Hour
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.RetrieveLimitMax <= 0 {
		o.RetrieveLimitMax = 100
	}
	return o
}

// Service is an explicitly constructed subsystem instance holding the
// injected store and provider handles. No package-level state.
type Service struct {
	shortTerm registryshortterm.Store
	longTerm  registrylongterm.Store
	embedder  registryembed.Embedder
	extractor extract.Extractor
	promoter  *promoter
	opts      Options
}

// NewService wires the memory subsystem. embedder may be nil (keyword-only
// matching); extractor defaults to the heuristic extractor.
func NewService(shortTerm registryshortterm.Store, longTerm registrylongterm.Store, embedder registryembed.Embedder, extractor extract.Extractor, opts Options) *Service {
	opts = opts.withDefaults()
	if extractor == nil {
		extractor = extract.NewHeuristicExtractor()
	}
	return &Service{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		embedder:  embedder,
		extractor: extractor,
		promoter: &promoter{
			shortTerm: shortTerm,
			longTerm:  longTerm,
			threshold: opts.PromotionThreshold,
			timeout:   opts.StoreTimeout,
		},
		opts: opts,
	}
}

// storeCtx bounds a backing-store call. A timeout is reported as a store
// failure by the callee, never as a cancellation of the conversation flow.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// SaveInteraction extracts memory candidates from a completed exchange and
// writes them to the short-term store. Returns the number of records
// created. Extraction is best-effort: a chat exchange with nothing worth
// keeping yields zero records and no error.
func (s *Service) SaveInteraction(ctx context.Context, userID, conversationID, userMessage, assistantReply string) (int, error) {
	if userID == "" {
		return 0, &ValidationError{Message: "userId is required"}
	}
	candidates := s.extractor.Extract(userMessage, assistantReply)
	if len(candidates) == 0 {
		return 0, nil
	}

	embeddings := s.embedCandidates(ctx, candidates)

	created := 0
	for i, cand := range candidates {
		rec := s.newRecord(userID, cand.Content, cand.Source)
		if embeddings != nil {
			rec.Embedding = embeddings[i]
		}
		if err := s.putShortTerm(ctx, rec); err != nil {
			log.Error("Failed to store memory record", "user", userID, "conversation", conversationID, "err", err)
			continue
		}
		created++
	}
	security.AddRecordsCreated(created)
	return created, nil
}

// SaveExplicit stores a single user-authored memory, bypassing extraction.
func (s *Service) SaveExplicit(ctx context.Context, userID, content string) (uuid.UUID, error) {
	if userID == "" {
		return uuid.Nil, &ValidationError{Message: "userId is required"}
	}
	content = extract.Normalize(content)
	if content == "" {
		return uuid.Nil, &ValidationError{Message: "content must not be empty"}
	}

	rec := s.newRecord(userID, content, model.SourceExplicitSave)
	if embeddings := s.embedCandidates(ctx, []extract.Candidate{{Content: content}}); embeddings != nil {
		rec.Embedding = embeddings[0]
	}
	if err := s.putShortTerm(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	security.AddRecordsCreated(1)
	return rec.ID, nil
}

// ListMemories returns every record for a user across both tiers, newest
// first. Unlike Retrieve this is an inventory operation: records are not
// touched and accrue no access counts.
func (s *Service) ListMemories(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	records, _, err := s.gatherAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortByCreatedAtDesc(records)
	return records, nil
}

// DeleteMemory removes records whose whole content matches matchContent
// (normalized, case-insensitive). An absent target is a successful no-op.
func (s *Service) DeleteMemory(ctx context.Context, userID, matchContent string) (int, error) {
	want := strings.ToLower(extract.Normalize(matchContent))
	if want == "" {
		return 0, &ValidationError{Message: "matchContent must not be empty"}
	}
	return s.deleteWhere(ctx, userID, func(content string) bool {
		return strings.ToLower(content) == want
	})
}

// ForgetByPartialMatch removes records whose content contains the fragment
// (case-insensitive). An absent target is a successful no-op.
func (s *Service) ForgetByPartialMatch(ctx context.Context, userID, fragment string) (int, error) {
	frag := strings.ToLower(extract.Normalize(fragment))
	if frag == "" {
		return 0, &ValidationError{Message: "fragment must not be empty"}
	}
	return s.deleteWhere(ctx, userID, func(content string) bool {
		return strings.Contains(strings.ToLower(content), frag)
	})
}

// ClearAll wipes every record for a user across both tiers. Irreversible,
// so it refuses to run without the confirmation flag.
func (s *Service) ClearAll(ctx context.Context, userID string, confirm bool) (int, error) {
	if !confirm {
		return 0, &ValidationError{Message: "clearing all memories is irreversible; set confirm=true to proceed"}
	}

	total := 0
	stCtx, cancel := s.storeCtx(ctx)
	n, stErr := s.shortTerm.DeleteAll(stCtx, userID)
	cancel()
	total += n

	ltCtx, cancel := s.storeCtx(ctx)
	n, ltErr := s.longTerm.DeleteAll(ltCtx, userID)
	cancel()
	total += n

	if stErr != nil {
		return total, storeFailure("short-term clear", stErr)
	}
	if ltErr != nil {
		return total, storeFailure("long-term clear", ltErr)
	}
	log.Info("Cleared all memories", "user", userID, "deleted", total)
	return total, nil
}

func (s *Service) newRecord(userID, content string, source model.Source) model.MemoryRecord {
	deadline := time.Now().Add(s.opts.ShortTermTTL)
	return model.MemoryRecord{
		ID:          uuid.New(),
		UserID:      userID,
		Content:     content,
		Source:      source,
		CreatedAt:   time.Now(),
		Tier:        model.TierShortTerm,
		TTLDeadline: &deadline,
	}
}

func (s *Service) putShortTerm(ctx context.Context, rec model.MemoryRecord) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	defer security.ObserveStoreLatency("short_term_put", time.Now())
	if err := s.shortTerm.Put(ctx, rec, s.opts.ShortTermTTL); err != nil {
		return storeFailure("short-term put", err)
	}
	return nil
}

// embedCandidates embeds all candidate contents in one provider call.
// Returns nil when the provider is absent or failing; the records are then
// stored without embeddings and matched by keyword overlap.
func (s *Service) embedCandidates(ctx context.Context, candidates []extract.Candidate) [][]float32 {
	if s.embedder == nil {
		return nil
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil || len(embeddings) != len(candidates) {
		log.Warn("Embedding provider unavailable; storing records without embeddings", "err", err)
		return nil
	}
	return embeddings
}

// gatherAll lists both tiers. Records present in both (a promotion caught
// mid-flight) dedupe in favor of the long-term copy. The bool reports
// whether any tier failed.
func (s *Service) gatherAll(ctx context.Context, userID string) ([]model.MemoryRecord, bool, error) {
	stCtx, cancel := s.storeCtx(ctx)
	stRecords, stErr := s.shortTerm.List(stCtx, userID)
	cancel()
	if stErr != nil {
		log.Error("Short-term store unavailable", "user", userID, "err", stErr)
	}

	ltCtx, cancel := s.storeCtx(ctx)
	ltRecords, ltErr := s.longTerm.List(ltCtx, userID)
	cancel()
	if ltErr != nil {
		log.Error("Long-term store unavailable", "user", userID, "err", ltErr)
	}

	if stErr != nil && ltErr != nil {
		return nil, true, storeFailure("both stores", ltErr)
	}

	seen := make(map[uuid.UUID]bool, len(ltRecords))
	records := make([]model.MemoryRecord, 0, len(stRecords)+len(ltRecords))
	for _, rec := range ltRecords {
		seen[rec.ID] = true
		records = append(records, rec)
	}
	for _, rec := range stRecords {
		if !seen[rec.ID] {
			records = append(records, rec)
		}
	}
	return records, stErr != nil || ltErr != nil, nil
}

func (s *Service) deleteWhere(ctx context.Context, userID string, match func(content string) bool) (int, error) {
	records, _, err := s.gatherAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		if !match(rec.Content) {
			continue
		}
		ctx, cancel := s.storeCtx(ctx)
		var ok bool
		var err error
		if rec.Tier == model.TierLongTerm {
			ok, err = s.longTerm.Delete(ctx, userID, rec.ID)
		} else {
			ok, err = s.shortTerm.Delete(ctx, userID, rec.ID.String())
		}
		cancel()
		if err != nil {
			return deleted, storeFailure("delete", err)
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func sortByCreatedAtDesc(records []model.MemoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
