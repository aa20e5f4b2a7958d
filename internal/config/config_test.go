package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "memory", cfg.ShortTermType)
	require.Equal(t, "chromem", cfg.LongTermType)
	require.Equal(t, "ristretto", cfg.RespCacheType)
	require.Equal(t, time.Hour, cfg.ShortTermTTL)
	require.Equal(t, int64(3), cfg.PromotionThreshold)
	require.Equal(t, 10*time.Minute, cfg.RespCacheTTL)
}

func TestConfig_ContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}

func TestConfig_QdrantAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "qdrant.internal"
	cfg.QdrantPort = 7443
	require.Equal(t, "qdrant.internal:7443", cfg.QdrantAddress())
}

func TestConfig_EffectivePromotionThreshold(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, int64(3), cfg.EffectivePromotionThreshold())
	cfg.PromotionThreshold = 7
	require.Equal(t, int64(7), cfg.EffectivePromotionThreshold())
	cfg.PromotionThreshold = 0
	require.Equal(t, int64(3), cfg.EffectivePromotionThreshold())
}
