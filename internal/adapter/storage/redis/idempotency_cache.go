package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"truek-settlement/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idempotency:"
	reservationPrefix = "idempotency:lock:"

	fieldStatus    = "status"
	fieldBody      = "body"
	fieldCreatedAt = "created_at"
)

// IdempotencyCache keeps replayable responses as Redis hashes so the status
// code stays readable with redis-cli.
type IdempotencyCache struct {
	client goredis.Cmdable
}

func NewIdempotencyCache(client goredis.Cmdable) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

func (c *IdempotencyCache) Get(ctx context.Context, key string) (*domain.IdempotentResponse, error) {
	fields, err := c.client.HGetAll(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	status, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return nil, fmt.Errorf("redis idempotency entry %q: bad status: %w", key, err)
	}
	resp := &domain.IdempotentResponse{
		StatusCode: status,
		Body:       []byte(fields[fieldBody]),
	}
	if ts, ok := fields[fieldCreatedAt]; ok {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			resp.CreatedAt = time.Unix(unix, 0).UTC()
		}
	}
	return resp, nil
}

// Set replaces any previous entry under key and drops its reservation. The
// hash and its expiry are written in one MULTI block so an entry never
// outlives its TTL.
func (c *IdempotencyCache) Set(ctx context.Context, key string, resp *domain.IdempotentResponse, ttl time.Duration) error {
	k := idempotencyPrefix + key
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, k, reservationPrefix+key)
		pipe.HSet(ctx, k,
			fieldStatus, resp.StatusCode,
			fieldBody, resp.Body,
			fieldCreatedAt, resp.CreatedAt.Unix(),
		)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// Reserve takes the in-progress marker for key with SET NX. The marker
// expires after ttl so a crashed request cannot block its key for good.
func (c *IdempotencyCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, reservationPrefix+key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis idempotency reserve: %w", err)
	}
	return ok, nil
}

func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, reservationPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
