package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	redisclient "docrelay/packages/go/backend/redis"
)

func TestMemoryStorePutGet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Document{ID: "doc-1", Filename: "sutra.txt", Text: "a\nb"}))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "sutra.txt", doc.Filename)
	require.False(t, doc.CreatedAt.IsZero(), "expected creation timestamp to be set")

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Document{ID: "x", Text: "first"}))
	require.NoError(t, store.Put(ctx, Document{ID: "x", Text: "second"}))

	doc, err := store.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "second", doc.Text)
}

func TestMemoryStoreSweepTTLBoundary(t *testing.T) {
	t.Parallel()

	const ttl = 3600 * time.Second
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(ttl)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Document{ID: "doc", CreatedAt: created}))

	removed, err := store.Sweep(ctx, created.Add(ttl-time.Second))
	require.NoError(t, err)
	require.Zero(t, removed)
	_, err = store.Get(ctx, "doc")
	require.NoError(t, err, "document must survive before TTL")

	removed, err = store.Sweep(ctx, created.Add(ttl))
	require.NoError(t, err)
	require.Zero(t, removed, "a document aged exactly TTL is retained")

	removed, err = store.Sweep(ctx, created.Add(ttl+time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, err = store.Get(ctx, "doc")
	require.ErrorIs(t, err, ErrNotFound)

	removed, err = store.Sweep(ctx, created.Add(2*ttl))
	require.NoError(t, err)
	require.Zero(t, removed, "sweep is idempotent")
}

func TestMemoryStoreGetReturnsUnsweptStaleEntry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Document{ID: "old", CreatedAt: time.Now().Add(-time.Hour)}))

	_, err := store.Get(ctx, "old")
	require.NoError(t, err)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Put(ctx, Document{ID: "shared", Text: "t"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = store.Get(ctx, "shared")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = store.Sweep(ctx, time.Now().Add(time.Hour))
			}
		}()
	}
	wg.Wait()
}

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) Cleanup(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

type failingStore struct{ *MemoryStore }

func (failingStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("boom")
}

func TestSweeperSweepOnceRunsCleaners(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Document{ID: "stale", CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, store.Put(ctx, Document{ID: "fresh"}))

	cleaner := &countingCleaner{}
	failing := &countingCleaner{err: errors.New("disk gone")}
	sweeper := NewSweeper(store, time.Minute, nil, failing, cleaner)

	require.Equal(t, 1, sweeper.SweepOnce(ctx))
	require.EqualValues(t, 1, cleaner.calls.Load(), "cleaners after a failing one still run")
	require.EqualValues(t, 1, failing.calls.Load())

	_, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestSweeperSurvivesStoreError(t *testing.T) {
	t.Parallel()

	cleaner := &countingCleaner{}
	sweeper := NewSweeper(failingStore{NewMemoryStore(time.Hour)}, time.Minute, nil, cleaner)
	require.Zero(t, sweeper.SweepOnce(context.Background()))
	require.EqualValues(t, 1, cleaner.calls.Load())
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cleaner := &countingCleaner{}
	sweeper := NewSweeper(NewMemoryStore(time.Hour), 5*time.Millisecond, nil, cleaner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

type fakeKV struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	pingErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redisclient.ErrNil
	}
	return v, nil
}

func (f *fakeKV) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeKV) Ping(context.Context) error {
	return f.pingErr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	store := newRedisStore(kv, 30*time.Minute)
	ctx := context.Background()

	doc := Document{ID: "abc", Filename: "a.txt", Text: "one\ntwo", Paragraphs: []string{"one", "two"}, Size: 7}
	require.NoError(t, store.Put(ctx, doc))
	require.Equal(t, 30*time.Minute, kv.ttls[redisKeyPrefix+"abc"])

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, doc.Paragraphs, got.Paragraphs)
	require.Equal(t, "a.txt", got.Filename)
	require.False(t, got.CreatedAt.IsZero())

	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	removed, err := store.Sweep(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestRedisStoreLenCountsOnlyDocuments(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	store := newRedisStore(kv, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Document{ID: "a"}))
	require.NoError(t, store.Put(ctx, Document{ID: "b"}))
	require.NoError(t, kv.Set(ctx, "other:key", "x", 0))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRedisStorePing(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	store := newRedisStore(kv, time.Minute)
	require.NoError(t, store.Ping(context.Background()))

	kv.pingErr = errors.New("connection refused")
	err := store.Ping(context.Background())
	require.ErrorIs(t, err, kv.pingErr)
}
