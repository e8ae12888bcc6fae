package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"clinicsched/backend/internal/domain"
)

type countingReader struct {
	categories map[int64]domain.Category
	calls      [][]int64
}

func (r *countingReader) Categories(_ context.Context, ids []int64) (map[int64]domain.Category, error) {
	r.calls = append(r.calls, append([]int64(nil), ids...))
	out := make(map[int64]domain.Category)
	for _, id := range ids {
		if c, ok := r.categories[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func newTestCache(t *testing.T, reader *countingReader) (*CategoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCategoryCache(reader, client, time.Minute, nil), mr
}

func TestCategoryCache_ReadThroughThenHit(t *testing.T) {
	reader := &countingReader{categories: map[int64]domain.Category{
		6: {ID: 6, Name: "Lunch", IsAvailability: true},
		1: {ID: 1, Name: "Office Visit"},
	}}
	c, mr := newTestCache(t, reader)
	ctx := context.Background()

	got, err := c.Categories(ctx, []int64{1, 6})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Lunch", got[6].Name)
	require.True(t, got[6].IsAvailability)
	require.Len(t, reader.calls, 1)
	require.True(t, mr.Exists(categoryKey(6)))

	got, err = c.Categories(ctx, []int64{6, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, reader.calls, 1, "second lookup should be served from redis")
}

func TestCategoryCache_OnlyMissingIDsReadThrough(t *testing.T) {
	reader := &countingReader{categories: map[int64]domain.Category{
		1: {ID: 1, Name: "Office Visit"},
		8: {ID: 8, Name: "Supervision", IsAvailability: true},
	}}
	c, _ := newTestCache(t, reader)
	ctx := context.Background()

	_, err := c.Categories(ctx, []int64{1})
	require.NoError(t, err)

	got, err := c.Categories(ctx, []int64{1, 8, 99})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, [][]int64{{1}, {8, 99}}, reader.calls)
}

func TestCategoryCache_TTLAndInvalidate(t *testing.T) {
	reader := &countingReader{categories: map[int64]domain.Category{5: {ID: 5, Name: "Vacation", IsAvailability: true}}}
	c, mr := newTestCache(t, reader)
	ctx := context.Background()

	_, err := c.Categories(ctx, []int64{5})
	require.NoError(t, err)
	require.Equal(t, time.Minute, mr.TTL(categoryKey(5)))

	require.NoError(t, c.Invalidate(ctx, 5))
	require.False(t, mr.Exists(categoryKey(5)))

	_, err = c.Categories(ctx, []int64{5})
	require.NoError(t, err)
	require.Len(t, reader.calls, 2)
}

func TestCategoryCache_RedisDownReadsThrough(t *testing.T) {
	reader := &countingReader{categories: map[int64]domain.Category{6: {ID: 6, Name: "Lunch", IsAvailability: true}}}
	c, mr := newTestCache(t, reader)
	mr.Close()

	got, err := c.Categories(context.Background(), []int64{6})
	require.NoError(t, err)
	require.Equal(t, "Lunch", got[6].Name)
}
