// Package redis provides the production short-term store. Records live as
// JSON values with native key TTLs; access counters are separate keys
// incremented with INCR, which is what gives promotion its atomic claim.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/recallhq/recall-service/internal/config"
	"github.com/recallhq/recall-service/internal/model"
	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
)

const hitsSuffix = ":hits"

func init() {
	registryshortterm.Register(registryshortterm.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registryshortterm.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis short-term store: RECALL_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.ShortTermTTL)
}

// LoadFromURL creates a short-term store from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registryshortterm.Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis short-term store: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis short-term store: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisStore{client: client, ttl: ttl}, nil
}

type redisStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func recordKey(userID, id string) string {
	return fmt.Sprintf("stm:%s:%s", userID, id)
}

func (s *redisStore) Name() string { return "redis" }

func (s *redisStore) Put(ctx context.Context, rec model.MemoryRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := recordKey(rec.UserID, rec.ID.String())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Set(ctx, key+hitsSuffix, rec.AccessCount, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, userID string, id string) (*model.MemoryRecord, error) {
	data, err := s.client.Get(ctx, recordKey(userID, id)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := s.decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *redisStore) List(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	var out []model.MemoryRecord
	iter := s.client.Scan(ctx, 0, recordKey(userID, "*"), 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, hitsSuffix) {
			continue
		}
		data, err := s.client.Get(ctx, key).Bytes()
		if err == goredis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		rec, err := s.decode(ctx, data)
		if err != nil {
			log.Error("Skipping undecodable short-term record", "key", key, "err", err)
			continue
		}
		out = append(out, *rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *redisStore) IncrAccess(ctx context.Context, userID string, id string) (int64, error) {
	key := recordKey(userID, id)
	// The record key is the source of truth for liveness; a counter INCR
	// after record expiry must not resurrect anything.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key+hitsSuffix)
	pipe.Expire(ctx, key+hitsSuffix, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisStore) Delete(ctx context.Context, userID string, id string) (bool, error) {
	key := recordKey(userID, id)
	n, err := s.client.Del(ctx, key, key+hitsSuffix).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, recordKey(userID, "*"), 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return n, err
		}
		if !strings.HasSuffix(key, hitsSuffix) {
			n++
		}
	}
	return n, iter.Err()
}

// PurgeExpired is a no-op: redis expires record keys natively.
func (s *redisStore) PurgeExpired(_ context.Context) (int, error) {
	return 0, nil
}

// decode unmarshals a record and folds in its live counter value, which
// can be ahead of the AccessCount snapshot stored in the JSON.
func (s *redisStore) decode(ctx context.Context, data []byte) (*model.MemoryRecord, error) {
	var rec model.MemoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	hits, err := s.client.Get(ctx, recordKey(rec.UserID, rec.ID.String())+hitsSuffix).Int64()
	if err == nil && hits > rec.AccessCount {
		rec.AccessCount = hits
	}
	return &rec, nil
}

var _ registryshortterm.Store = (*redisStore)(nil)
