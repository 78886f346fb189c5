// Package rediscache shares the catalog snapshot between service instances.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"partidas-service/internal/matching/model"
)

const defaultKey = "partidas:catalog:snapshot"

type Cache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log zerolog.Logger
}

// New connects and pings; callers fall back to the in-process cache on error.
func New(ctx context.Context, addr, password string, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("catalog cache: redis connected")
	return &Cache{rdb: rdb, key: defaultKey, ttl: ttl, log: log}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Get(ctx context.Context) ([]model.CatalogEntry, bool) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("catalog cache: get")
		}
		return nil, false
	}
	var entries []model.CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn().Err(err).Msg("catalog cache: decode")
		return nil, false
	}
	return entries, true
}

func (c *Cache) Set(ctx context.Context, entries []model.CatalogEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.log.Warn().Err(err).Msg("catalog cache: encode")
		return
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("catalog cache: set")
	}
}

func (c *Cache) Clear(ctx context.Context) {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		c.log.Warn().Err(err).Msg("catalog cache: clear")
	}
}
