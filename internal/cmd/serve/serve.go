package serve

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/recallhq/recall-service/internal/config"

	// Import all plugins to trigger init() registration
	_ "github.com/recallhq/recall-service/internal/plugin/embed/disabled"
	_ "github.com/recallhq/recall-service/internal/plugin/embed/openai"
	_ "github.com/recallhq/recall-service/internal/plugin/longterm/chromem"
	_ "github.com/recallhq/recall-service/internal/plugin/longterm/pgvector"
	_ "github.com/recallhq/recall-service/internal/plugin/longterm/qdrant"
	_ "github.com/recallhq/recall-service/internal/plugin/respcache/noop"
	_ "github.com/recallhq/recall-service/internal/plugin/respcache/redis"
	_ "github.com/recallhq/recall-service/internal/plugin/respcache/ristretto"
	_ "github.com/recallhq/recall-service/internal/plugin/route/system"
	_ "github.com/recallhq/recall-service/internal/plugin/shortterm/memdb"
	_ "github.com/recallhq/recall-service/internal/plugin/shortterm/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the recall service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.APIKeys = apiKeysFromEnv(os.Environ())
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins (empty = any)",
		},
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Server:",
			Sources:     cli.EnvVars("RECALL_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all metrics",
		},

		// ── Backends ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "short-term-kind",
			Category:    "Backends:",
			Sources:     cli.EnvVars("RECALL_SERVICE_SHORT_TERM_KIND"),
			Destination: &cfg.ShortTermType,
			Value:       cfg.ShortTermType,
			Usage:       "Short-term store backend (redis|memory)",
		},
		&cli.StringFlag{
			Name:        "long-term-kind",
			Category:    "Backends:",
			Sources:     cli.EnvVars("RECALL_SERVICE_LONG_TERM_KIND"),
			Destination: &cfg.LongTermType,
			Value:       cfg.LongTermType,
			Usage:       "Long-term store backend (qdrant|pgvector|chromem)",
		},
		&cli.StringFlag{
			Name:        "response-cache-kind",
			Category:    "Backends:",
			Sources:     cli.EnvVars("RECALL_SERVICE_RESPONSE_CACHE_KIND"),
			Destination: &cfg.RespCacheType,
			Value:       cfg.RespCacheType,
			Usage:       "Response cache backend (redis|ristretto|none)",
		},
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Backends:",
			Sources:     cli.EnvVars("RECALL_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (openai|none)",
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Backends:",
			Sources:     cli.EnvVars("RECALL_SERVICE_MIGRATE_AT_START"),
			Destination: &cfg.LongTermMigrateAtStart,
			Value:       cfg.LongTermMigrateAtStart,
			Usage:       "Run long-term store schema/collection setup on startup",
		},

		// ── Redis ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Redis:",
			Sources:     cli.EnvVars("RECALL_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL (redis://host:port/db)",
		},

		// ── Database ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("RECALL_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Postgres connection URL for the pgvector backend",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("RECALL_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("RECALL_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum idle database connections",
		},

		// ── Qdrant ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host",
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Value:       cfg.QdrantCollectionName,
			Usage:       "Qdrant collection name",
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "qdrant-use-tls",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Use TLS for the Qdrant connection",
		},

		// ── Embeddings ───────────────────────────────────────────
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("RECALL_SERVICE_OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("RECALL_SERVICE_OPENAI_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "OpenAI embedding model name",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("RECALL_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI-compatible API base URL",
		},
		&cli.IntFlag{
			Name:        "openai-dimensions",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("RECALL_SERVICE_OPENAI_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
			Usage:       "Requested embedding dimensions (0 = model default)",
		},

		// ── Memory Policy ────────────────────────────────────────
		&cli.DurationFlag{
			Name:        "short-term-ttl",
			Category:    "Memory Policy:",
			Sources:     cli.EnvVars("RECALL_SERVICE_SHORT_TERM_TTL"),
			Destination: &cfg.ShortTermTTL,
			Value:       cfg.ShortTermTTL,
			Usage:       "Lifetime of an unpromoted short-term record",
		},
		&cli.Int64Flag{
			Name:        "promotion-threshold",
			Category:    "Memory Policy:",
			Sources:     cli.EnvVars("RECALL_SERVICE_PROMOTION_THRESHOLD"),
			Destination: &cfg.PromotionThreshold,
			Value:       cfg.PromotionThreshold,
			Usage:       "Access count at which a record is promoted to long-term",
		},
		&cli.IntFlag{
			Name:        "retrieve-limit-max",
			Category:    "Memory Policy:",
			Sources:     cli.EnvVars("RECALL_SERVICE_RETRIEVE_LIMIT_MAX"),
			Destination: &cfg.RetrieveLimitMax,
			Value:       cfg.RetrieveLimitMax,
			Usage:       "Upper bound on the per-request retrieval limit",
		},
		&cli.DurationFlag{
			Name:        "store-timeout",
			Category:    "Memory Policy:",
			Sources:     cli.EnvVars("RECALL_SERVICE_STORE_TIMEOUT"),
			Destination: &cfg.StoreTimeout,
			Value:       cfg.StoreTimeout,
			Usage:       "Timeout for every backing-store call",
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Category:    "Memory Policy:",
			Sources:     cli.EnvVars("RECALL_SERVICE_SWEEP_INTERVAL"),
			Destination: &cfg.SweepInterval,
			Value:       cfg.SweepInterval,
			Usage:       "Interval between expired-record sweeps of the short-term store",
		},

		// ── Response Cache ───────────────────────────────────────
		&cli.DurationFlag{
			Name:        "response-cache-ttl",
			Category:    "Response Cache:",
			Sources:     cli.EnvVars("RECALL_SERVICE_RESPONSE_CACHE_TTL"),
			Destination: &cfg.RespCacheTTL,
			Value:       cfg.RespCacheTTL,
			Usage:       "Response cache entry lifetime",
		},
		&cli.StringFlag{
			Name:        "response-cache-version",
			Category:    "Response Cache:",
			Sources:     cli.EnvVars("RECALL_SERVICE_RESPONSE_CACHE_VERSION"),
			Destination: &cfg.RespCacheVersion,
			Value:       cfg.RespCacheVersion,
			Usage:       "Active cache version tag; bump to invalidate all entries",
		},
		&cli.Int64Flag{
			Name:        "ristretto-max-cost",
			Category:    "Response Cache:",
			Sources:     cli.EnvVars("RECALL_SERVICE_RISTRETTO_MAX_COST"),
			Destination: &cfg.RistrettoMaxCost,
			Value:       cfg.RistrettoMaxCost,
			Usage:       "In-process cache capacity in bytes",
		},
	}
}

// apiKeysFromEnv collects RECALL_SERVICE_API_KEYS_<CLIENT_ID>=<key> vars
// into a key → client-ID map. Client IDs are lowercased with underscores
// turned into dashes.
func apiKeysFromEnv(environ []string) map[string]string {
	const prefix = "RECALL_SERVICE_API_KEYS_"
	keys := map[string]string{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || value == "" {
			continue
		}
		clientID := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, prefix)), "_", "-")
		keys[value] = clientID
	}
	return keys
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
