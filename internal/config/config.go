package config

import (
	"context"
	"fmt"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the recall service.
type Config struct {
	// Short-term store backend type: "redis" or "memory".
	ShortTermType string

	// Long-term store backend type: "qdrant", "pgvector", or "chromem".
	LongTermType string

	// Response cache backend type: "redis", "ristretto", or "none".
	RespCacheType string

	// Embedding provider type: "openai" or "none".
	EmbedType string

	// Redis (shared by the short-term store and the redis cache backend).
	RedisURL string

	// Postgres (pgvector long-term store).
	DBURL          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Run long-term store migrations (collection/schema setup) on startup.
	LongTermMigrateAtStart bool

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// OpenAI embeddings
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// ShortTermTTL is the lifetime of a short-term record. A record not
	// promoted before the deadline expires silently.
	ShortTermTTL time.Duration

	// PromotionThreshold is the access count at which a short-term record
	// is migrated to the long-term store.
	PromotionThreshold int64

	// RetrieveLimitMax caps the per-request result limit.
	RetrieveLimitMax int

	// StoreTimeout bounds every backing-store call. A call that exceeds it
	// is treated as a store failure, not as a caller cancellation.
	StoreTimeout time.Duration

	// RespCacheTTL is the default response-cache entry lifetime.
	RespCacheTTL time.Duration

	// RespCacheVersion is the active configuration version tag. Bumping it
	// changes every future cache key, invalidating old entries without a
	// bulk delete.
	RespCacheVersion string

	// RistrettoMaxCost is the ristretto backend capacity in bytes.
	RistrettoMaxCost int64

	// SweepInterval is how often the background sweeper purges expired
	// short-term records. Only the memory backend needs it; redis expires
	// keys natively.
	SweepInterval time.Duration

	// Server
	Listener     ListenerConfig
	CORSEnabled  bool
	CORSOrigins  string
	DrainTimeout int // seconds

	// APIKeys maps API key values to client IDs
	// (RECALL_SERVICE_API_KEYS_<CLIENT_ID>=<key>).
	APIKeys map[string]string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShortTermType:          "memory",
		LongTermType:           "chromem",
		RespCacheType:          "ristretto",
		EmbedType:              "none",
		LongTermMigrateAtStart: true,
		ShortTermTTL:           time.Hour,
		PromotionThreshold:     3,
		RetrieveLimitMax:       100,
		StoreTimeout:           5 * time.Second,
		RespCacheTTL:           10 * time.Minute,
		RespCacheVersion:       "1",
		RistrettoMaxCost:       64 * 1024 * 1024,
		SweepInterval:          time.Minute,
		QdrantHost:             "localhost",
		QdrantPort:             6334,
		QdrantCollectionName:   "recall-service",
		QdrantStartupTimeout:   30 * time.Second,
		OpenAIModelName:        "text-embedding-3-small",
		OpenAIBaseURL:          "https://api.openai.com/v1",
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
		MetricsLabels:  "service=recall-service",
	}
}

// QdrantAddress returns the host:port gRPC address of the Qdrant server.
func (c *Config) QdrantAddress() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

// EffectivePromotionThreshold returns the configured promotion threshold,
// falling back to the policy default when unset.
func (c *Config) EffectivePromotionThreshold() int64 {
	if c == nil || c.PromotionThreshold <= 0 {
		return 3
	}
	return c.PromotionThreshold
}
