package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	sets    map[string]map[string]struct{}
	failing bool
	gets    int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, sets: map[string]map[string]struct{}{}}
}

var errRedisDown = errors.New("connection refused")

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failing {
		return redis.NewStringResult("", errRedisDown)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return redis.NewStatusResult("", errRedisDown)
	}
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return redis.NewIntResult(0, errRedisDown)
	}
	current, _ := strconv.ParseInt(f.values[key], 10, 64)
	current++
	f.values[key] = strconv.FormatInt(current, 10)
	return redis.NewIntResult(current, nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.sets[key] = set
	}
	for _, member := range members {
		set[fmt.Sprint(member)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]string, 0, len(f.sets[key]))
	for member := range f.sets[key] {
		members = append(members, member)
	}
	return redis.NewStringSliceResult(members, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
		delete(f.sets, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestStatsCacheReadThroughAndInvalidate(t *testing.T) {
	client := newFakeRedis()
	cache, err := NewStatsCache(client, WithPrefix("test:"))
	require.NoError(t, err)

	loads := 0
	load := func(context.Context) ([]byte, error) {
		loads++
		return []byte(`{"count":3}`), nil
	}

	ctx := context.Background()
	first, err := cache.Fetch(ctx, "average", load)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, "average", load)
	require.NoError(t, err)

	assert.Equal(t, `{"count":3}`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
	assert.Contains(t, client.values, "test:g0:average")

	require.NoError(t, cache.Invalidate(ctx))
	assert.NotContains(t, client.values, "test:g0:average")
	assert.Equal(t, "1", client.values["test:gen"])

	_, err = cache.Fetch(ctx, "average", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestStatsCacheSharesConcurrentMisses(t *testing.T) {
	cache, err := NewStatsCache(newFakeRedis())
	require.NoError(t, err)

	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		loads.Add(1)
		<-release
		return []byte("[]"), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := cache.Fetch(context.Background(), "top-products:5", load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestStatsCacheFallsBackWhenRedisFails(t *testing.T) {
	client := newFakeRedis()
	client.failing = true
	var logged []string
	cache, err := NewStatsCache(client,
		WithLogger(func(_ context.Context, event string, _ map[string]any) { logged = append(logged, event) }),
		WithBreakerSettings(gobreaker.Settings{
			Name:        "test",
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 2 },
			Timeout:     time.Minute,
		}),
	)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		data, err := cache.Fetch(context.Background(), "average", func(context.Context) ([]byte, error) {
			return []byte("ok"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", string(data))
	}

	assert.Equal(t, 2, client.gets, "generation read failures of the first two calls open the breaker")
	assert.NotEmpty(t, logged)
}

func TestStatsCacheDropsLoadsThatRaceAnInvalidation(t *testing.T) {
	client := newFakeRedis()
	cache, err := NewStatsCache(client)
	require.NoError(t, err)
	ctx := context.Background()

	loads := 0
	_, err = cache.Fetch(ctx, "average", func(ctx context.Context) ([]byte, error) {
		loads++
		require.NoError(t, cache.Invalidate(ctx))
		return []byte("before-write"), nil
	})
	require.NoError(t, err)

	data, err := cache.Fetch(ctx, "average", func(context.Context) ([]byte, error) {
		loads++
		return []byte("after-write"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after-write", string(data))
	assert.Equal(t, 2, loads)

	data, err = cache.Fetch(ctx, "average", func(context.Context) ([]byte, error) {
		loads++
		return []byte("unexpected"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after-write", string(data))
	assert.Equal(t, 2, loads)
}

func TestStatsCachePropagatesLoaderErrors(t *testing.T) {
	cache, err := NewStatsCache(newFakeRedis())
	require.NoError(t, err)

	boom := errors.New("store offline")
	_, err = cache.Fetch(context.Background(), "average", func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestNewStatsCacheRequiresClient(t *testing.T) {
	_, err := NewStatsCache(nil)
	assert.Error(t, err)
}
