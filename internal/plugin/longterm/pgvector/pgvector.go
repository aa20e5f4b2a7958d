// Package pgvector provides a long-term store on PostgreSQL with the
// pgvector extension. Records and embeddings live in a single table so the
// store is the system of record for the durable tier.
package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/recallhq/recall-service/internal/config"
	"github.com/recallhq/recall-service/internal/model"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
	registrymigrate "github.com/recallhq/recall-service/internal/registry/migrate"
)

// pgvectorMigrator creates the extension and table at startup.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.LongTermType != "pgvector" || !cfg.LongTermMigrateAtStart || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return db.WithContext(ctx).Exec(schemaSQL(embeddingDimension(cfg))).Error
}

func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS long_term_memories (
    id           UUID PRIMARY KEY,
    user_id      TEXT NOT NULL,
    content      TEXT NOT NULL,
    source       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    access_count BIGINT NOT NULL DEFAULT 0,
    embedding    vector(%d)
);

CREATE INDEX IF NOT EXISTS long_term_memories_user_id_idx ON long_term_memories (user_id);
`, dimension)
}

func init() {
	registrylongterm.Register(registrylongterm.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registrylongterm.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("pgvector: RECALL_SERVICE_DB_URL is required")
	}
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	return &Store{db: db}, nil
}

type row struct {
	ID          uuid.UUID
	UserID      string
	Content     string
	Source      string
	CreatedAt   time.Time
	AccessCount int64
}

func (r *row) record() model.MemoryRecord {
	return model.MemoryRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		Content:     r.Content,
		Source:      model.Source(r.Source),
		CreatedAt:   r.CreatedAt,
		AccessCount: r.AccessCount,
		Tier:        model.TierLongTerm,
	}
}

// Store implements the long-term store on gorm + pgvector.
type Store struct {
	db *gorm.DB
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) Upsert(ctx context.Context, rec model.MemoryRecord) error {
	var embedding interface{}
	if len(rec.Embedding) > 0 {
		embedding = pgvec.NewVector(rec.Embedding)
	}
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO long_term_memories (id, user_id, content, source, created_at, access_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?::vector)
		ON CONFLICT (id)
		DO UPDATE SET access_count = GREATEST(long_term_memories.access_count, EXCLUDED.access_count)`,
		rec.ID, rec.UserID, rec.Content, string(rec.Source), rec.CreatedAt, rec.AccessCount, embedding,
	).Error
}

// IncrAccess increments in SQL so concurrent touches across service
// instances never lose counts.
func (s *Store) IncrAccess(ctx context.Context, userID string, id uuid.UUID) (int64, error) {
	var count int64
	res := s.db.WithContext(ctx).Raw(`
		UPDATE long_term_memories
		SET access_count = access_count + 1
		WHERE id = ? AND user_id = ?
		RETURNING access_count`,
		id, userID,
	).Scan(&count)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	return count, nil
}

func (s *Store) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]registrylongterm.SearchResult, error) {
	vec := pgvec.NewVector(embedding)
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, content, source, created_at, access_count,
		       1 - (embedding <=> ?::vector) AS score
		FROM long_term_memories
		WHERE user_id = ? AND embedding IS NOT NULL
		ORDER BY embedding <=> ?::vector
		LIMIT ?`,
		vec, userID, vec, limit,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []registrylongterm.SearchResult
	for rows.Next() {
		var r row
		var score float64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &r.Source, &r.CreatedAt, &r.AccessCount, &score); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		results = append(results, registrylongterm.SearchResult{Record: r.record(), Score: score})
	}
	return results, rows.Err()
}

func (s *Store) List(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, content, source, created_at, access_count
		FROM long_term_memories
		WHERE user_id = ?
		ORDER BY created_at DESC`,
		userID,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &r.Source, &r.CreatedAt, &r.AccessCount); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		out = append(out, r.record())
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM long_term_memories WHERE id = ? AND user_id = ?",
		id, userID,
	)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM long_term_memories WHERE user_id = ?",
		userID,
	)
	return int(res.RowsAffected), res.Error
}

func embeddingDimension(cfg *config.Config) int {
	if cfg != nil && cfg.OpenAIDimensions > 0 {
		return cfg.OpenAIDimensions
	}
	return 1536
}

var _ registrylongterm.Store = (*Store)(nil)
