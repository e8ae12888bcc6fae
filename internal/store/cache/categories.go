// Package cache holds read-through caches for reference data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

const (
	categoryKeyPrefix  = "clinicsched:category:"
	DefaultCategoryTTL = 10 * time.Minute
)

// CategoryCache is a cache-aside decorator over a CategoryReader. Redis
// failures degrade to reading through.
type CategoryCache struct {
	next  store.CategoryReader
	redis *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

var _ store.CategoryReader = (*CategoryCache)(nil)

func NewCategoryCache(next store.CategoryReader, client *redis.Client, ttl time.Duration, log *slog.Logger) *CategoryCache {
	if ttl <= 0 {
		ttl = DefaultCategoryTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CategoryCache{
		next:  next,
		redis: client,
		ttl:   ttl,
		log:   log.With(slog.String("component", "cache.categories")),
	}
}

func (c *CategoryCache) Categories(ctx context.Context, ids []int64) (map[int64]domain.Category, error) {
	out := make(map[int64]domain.Category, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = categoryKey(id)
	}

	var missing []int64
	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("category cache read failed", slog.Any("err", err))
		missing = ids
	} else {
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var cat domain.Category
			if err := json.Unmarshal([]byte(s), &cat); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[cat.ID] = cat
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.Categories(ctx, missing)
	if err != nil {
		return nil, err
	}

	if len(loaded) == 0 {
		return out, nil
	}

	pipe := c.redis.Pipeline()
	for id, cat := range loaded {
		out[id] = cat
		b, err := json.Marshal(cat)
		if err != nil {
			continue
		}
		pipe.Set(ctx, categoryKey(id), b, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("category cache write failed", slog.Any("err", err))
	}

	return out, nil
}

// Invalidate drops cached entries for ids.
func (c *CategoryCache) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = categoryKey(id)
	}
	return c.redis.Del(ctx, keys...).Err()
}

func categoryKey(id int64) string {
	return categoryKeyPrefix + strconv.FormatInt(id, 10)
}
