package forecasts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"surfcast/internal/types"
)

// redisClient is the subset of *redis.Client used by RedisStore.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps canonical forecasts as JSON under forecast:<region>|<date>
// so every API instance and the alert runner share one fetch per key.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore creates a store on top of a go-redis client.
func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, prefix: "forecast:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*types.CanonicalForecast, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get forecast from Redis: %w", err)
	}

	var f types.CanonicalForecast
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal forecast: %w", err)
	}
	return &f, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, f types.CanonicalForecast, ttl time.Duration) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal forecast: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set forecast in Redis: %w", err)
	}
	return nil
}
