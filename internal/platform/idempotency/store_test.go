package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = string(value.([]byte))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	redisStore, err := NewRedisStore(newFakeRedis(), "")
	if err != nil {
		t.Fatalf("NewRedisStore returned error: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStoresReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			first, err := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour)
			if err != nil || first.State != ReservationStateNew {
				t.Fatalf("expected new reservation, got %+v (%v)", first, err)
			}

			pending, err := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour)
			if err != nil || pending.State != ReservationStatePending {
				t.Fatalf("expected pending reservation, got %+v (%v)", pending, err)
			}

			if _, err := store.Reserve(ctx, "key-1", "other", fixedTime, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
				t.Fatalf("expected fingerprint mismatch, got %v", err)
			}

			resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}, "Date": {"x"}}, Body: []byte(`{"ok":true}`)}
			if err := store.SaveResponse(ctx, "key-1", "fp", resp, fixedTime, time.Hour); err != nil {
				t.Fatalf("SaveResponse returned error: %v", err)
			}

			done, err := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour)
			if err != nil || done.State != ReservationStateCompleted {
				t.Fatalf("expected completed reservation, got %+v (%v)", done, err)
			}
			if done.Record.ResponseStatus != http.StatusCreated || string(done.Record.ResponseBody) != `{"ok":true}` {
				t.Fatalf("unexpected stored response %+v", done.Record)
			}
			if _, ok := done.Record.ResponseHeaders["Date"]; ok {
				t.Fatalf("expected Date header to be dropped")
			}

			if err := store.Release(ctx, "key-1", "fp"); err != nil {
				t.Fatalf("Release returned error: %v", err)
			}
			again, err := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour)
			if err != nil || again.State != ReservationStateNew {
				t.Fatalf("expected new reservation after release, got %+v (%v)", again, err)
			}
		})
	}
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	later := fixedTime.Add(2 * time.Minute)
	res, err := store.Reserve(ctx, "k", "different", later, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %+v (%v)", res, err)
	}

	removed, err := store.CleanupExpired(ctx, later.Add(time.Hour), 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record removed, got %d (%v)", removed, err)
	}
}

func TestMemoryStoreConcurrentReserveHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Reserve(ctx, "race", "fp", fixedTime, time.Hour)
			if err != nil {
				t.Errorf("Reserve returned error: %v", err)
				return
			}
			if res.State == ReservationStateNew {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
