package memory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-service/internal/model"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
	"github.com/recallhq/recall-service/internal/security"
)

// promoter migrates hot short-term records to the long-term store. One
// Touch per record per retrieval event that returned it.
type promoter struct {
	shortTerm registryshortterm.Store
	longTerm  registrylongterm.Store
	threshold int64
	timeout   time.Duration
}

// Touch records one access and promotes the record when its count reaches
// the threshold. Returns the record with its updated count and tier.
//
// Exactly-once under concurrency rests on two properties rather than a
// lock: IncrAccess is atomic, so concurrent touches each see a distinct
// count, and the long-term Upsert is idempotent by record ID, so even two
// touches past the threshold converge on a single long-term copy with the
// short-term copy gone.
func (p *promoter) Touch(ctx context.Context, rec model.MemoryRecord) model.MemoryRecord {
	// Detach from caller cancellation: an interrupted promotion must run
	// to completion rather than leave the record straddling both tiers.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if rec.Tier == model.TierLongTerm {
		count, err := p.longTerm.IncrAccess(ctx, rec.UserID, rec.ID)
		if err != nil {
			log.Error("Failed to record long-term access", "id", rec.ID, "err", err)
			return rec
		}
		if count > 0 {
			rec.AccessCount = count
		}
		return rec
	}

	count, err := p.shortTerm.IncrAccess(ctx, rec.UserID, rec.ID.String())
	if err != nil {
		log.Error("Failed to increment access count", "id", rec.ID, "err", err)
		return rec
	}
	if count == 0 {
		// Record expired between retrieval and touch.
		return rec
	}
	rec.AccessCount = count
	if count < p.threshold {
		return rec
	}

	promoted := rec
	promoted.Tier = model.TierLongTerm
	promoted.TTLDeadline = nil
	if err := p.longTerm.Upsert(ctx, promoted); err != nil {
		// Long-term copy failed; keep the record short-term so the next
		// touch retries. Nothing was deleted, so no data is lost.
		log.Error("Promotion failed, record stays short-term", "id", rec.ID, "err", err)
		return rec
	}
	if _, err := p.shortTerm.Delete(ctx, rec.UserID, rec.ID.String()); err != nil {
		// The long-term copy exists; the short-term leftover expires by
		// TTL at worst. Retrieval dedupes by ID either way.
		log.Error("Failed to remove promoted record from short-term store", "id", rec.ID, "err", err)
	}
	security.IncPromotion()
	log.Debug("Promoted memory record", "id", rec.ID, "user", rec.UserID, "accessCount", count)
	return promoted
}
