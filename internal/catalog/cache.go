package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "catalog:version"
	missingMarker   = "null"
)

// Cache is a versioned Redis read-through cache in front of a Reader. A nil
// client or non-positive TTL turns it into a pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	source Reader
	logger *slog.Logger
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, source Reader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, source: source, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
	}
	return ver, nil
}

// Newspaper returns a cached newspaper, loading it from the source on a miss.
func (c *Cache) Newspaper(ctx context.Context, id int64) (Newspaper, error) {
	var out Newspaper
	err := c.fetch(ctx, "newspaper", id, &out, func(ctx context.Context) (any, error) {
		return c.source.Newspaper(ctx, id)
	})
	return out, err
}

// Booklet returns a cached booklet, loading it from the source on a miss.
func (c *Cache) Booklet(ctx context.Context, id int64) (Booklet, error) {
	var out Booklet
	err := c.fetch(ctx, "booklet", id, &out, func(ctx context.Context) (any, error) {
		return c.source.Booklet(ctx, id)
	})
	return out, err
}

// fetch loads a cached value or populates it with loader. Products missing
// from the catalog are cached as a marker so repeated lookups stay cheap.
func (c *Cache) fetch(ctx context.Context, kind string, id int64, dest any, loader func(context.Context) (any, error)) error {
	if !c.enabled() {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(value, dest)
	}
	key, err := c.buildKey(ctx, kind, id)
	if err != nil {
		c.logger.Warn("catalog cache version", slog.String("kind", kind), slog.Int64("id", id), slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(payload) == missingMarker {
			return ErrNotFound
		}
		return json.Unmarshal(payload, dest)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("catalog cache read", slog.String("key", key), slog.Any("error", err))
	}

	value, err := loader(ctx)
	if errors.Is(err, ErrNotFound) {
		if setErr := c.client.Set(ctx, key, missingMarker, c.ttl).Err(); setErr != nil {
			c.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", setErr))
		}
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", err))
	}
	return json.Unmarshal(raw, dest)
}

func (c *Cache) buildKey(ctx context.Context, kind string, id int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join([]string{"catalog", kind, strconv.FormatInt(id, 10)}, ":"), ver), nil
}

// Bump invalidates every cached product for all instances by incrementing the
// shared version.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Result()
}

func assign(value, dest any) error {
	switch d := dest.(type) {
	case *Newspaper:
		*d = value.(Newspaper)
	case *Booklet:
		*d = value.(Booklet)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	return nil
}
