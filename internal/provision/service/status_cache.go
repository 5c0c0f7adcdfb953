package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/accesoit/flowops/internal/config"
	"github.com/accesoit/flowops/internal/provision/transport"
)

// RedisStatusCache keeps transport status answers for a short TTL so
// repeated reconciliation reads don't hammer the control plane. It only
// ever holds the transport's answer; the registry row is untouched.
type RedisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStatusCacheFromConfig returns nil when redis is not configured,
// which disables caching entirely.
func NewRedisStatusCacheFromConfig(c *config.RedisConfig) *RedisStatusCache {
	if c == nil || c.Addr == "" {
		return nil
	}
	ttl, err := time.ParseDuration(c.StatusCacheTTL)
	if err != nil || ttl <= 0 {
		ttl = 10 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	return &RedisStatusCache{rdb: rdb, ttl: ttl}
}

func statusKey(instanceID int64) string {
	return fmt.Sprintf("flowops:instance_status:%d", instanceID)
}

func (c *RedisStatusCache) Get(ctx context.Context, instanceID int64) (*transport.RemoteStatus, bool) {
	raw, err := c.rdb.Get(ctx, statusKey(instanceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Int64("instance_id", instanceID).Msg("status cache read failed")
		}
		return nil, false
	}
	var st transport.RemoteStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *RedisStatusCache) Set(ctx context.Context, instanceID int64, status *transport.RemoteStatus) {
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statusKey(instanceID), raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Int64("instance_id", instanceID).Msg("status cache write failed")
	}
}
