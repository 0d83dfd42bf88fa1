package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

const (
	responsePrefix = "cache:"
	dataPrefix     = "data:"
)

// Entry is a cached answer keyed by the normalised question.
type Entry struct {
	Response  string    `json:"response"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// Gateway reads and writes cached answers and structured knowledge in Redis.
// Values that fail to parse are deleted on read.
type Gateway struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewGateway(rdb redis.Cmdable) *Gateway {
	return &Gateway{rdb: rdb, now: time.Now}
}

// Key returns the Redis key for a question, or "" when the question is blank.
func (g *Gateway) Key(query string) string {
	norm := common.NormalizeQuery(query)
	if norm == "" {
		return ""
	}
	return responsePrefix + norm
}

// Get returns the cached entry for query, or nil on a miss.
func (g *Gateway) Get(ctx context.Context, query string) (*Entry, error) {
	key := g.Key(query)
	if key == "" {
		return nil, nil
	}

	raw, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to read cached response")
		return nil, errx.WrapRedis(err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Response == "" {
		logx.Warn().Err(err).Str("key", key).Msg("corrupt cache entry, deleting")
		g.evict(ctx, key)
		return nil, nil
	}
	return &entry, nil
}

// Set writes the answer unconditionally, replacing any previous value.
func (g *Gateway) Set(ctx context.Context, query, response string, ttl time.Duration) error {
	key := g.Key(query)
	if key == "" {
		return fmt.Errorf("cache set: %w", errx.ErrEmptyMessage)
	}

	b, err := json.Marshal(Entry{Response: response, Question: query, Timestamp: g.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := g.rdb.SetEx(ctx, key, b, ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to cache response")
		return errx.WrapRedis(err)
	}
	logx.Debug().Str("key", common.Preview(key, 40)).Dur("ttl", ttl).Msg("cached response")
	return nil
}

// Delete removes the cached answer for query.
func (g *Gateway) Delete(ctx context.Context, query string) error {
	key := g.Key(query)
	if key == "" {
		return nil
	}
	if err := g.rdb.Del(ctx, key).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// GetJSON loads a structured value stored under namespace:key into dst.
// It reports false on a miss or after evicting a corrupt value.
func (g *Gateway) GetJSON(ctx context.Context, namespace, key string, dst any) (bool, error) {
	full := dataKey(namespace, key)
	raw, err := g.rdb.Get(ctx, full).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errx.WrapRedis(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logx.Warn().Err(err).Str("key", full).Msg("corrupt cached data, deleting")
		g.evict(ctx, full)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v under namespace:key for ttl.
func (g *Gateway) SetJSON(ctx context.Context, namespace, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cached data: %w", err)
	}
	if err := g.rdb.SetEx(ctx, dataKey(namespace, key), b, ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (g *Gateway) evict(ctx context.Context, key string) {
	if err := g.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete corrupt cache entry")
	}
}

func dataKey(namespace, key string) string {
	return dataPrefix + namespace + ":" + common.NormalizeQuery(key)
}
