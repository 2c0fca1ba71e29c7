package marker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps markers as persistent keys, for deployments that want a
// cheap existence check in front of the durable store. Keys carry no TTL -
// markers are permanent by design.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(entityType, pk string) string {
	return "veil:anonymised:" + entityType + ":" + pk
}

func (s *RedisStore) Create(ctx context.Context, entityType, pk string) error {
	createdAt := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.SetNX(ctx, redisKey(entityType, pk), createdAt, 0).Err(); err != nil {
		return fmt.Errorf("create marker for %s pk=%s: %w", entityType, pk, err)
	}
	return nil
}

func (s *RedisStore) CreateBatch(ctx context.Context, markers []Marker) error {
	if len(markers) == 0 {
		return nil
	}
	createdAt := strconv.FormatInt(time.Now().Unix(), 10)
	pipe := s.client.Pipeline()
	for _, m := range markers {
		pipe.SetNX(ctx, redisKey(m.EntityType, m.PK), createdAt, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create marker batch: %w", err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, entityType, pk string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(entityType, pk)).Result()
	if err != nil {
		return false, fmt.Errorf("check marker for %s pk=%s: %w", entityType, pk, err)
	}
	return n > 0, nil
}
