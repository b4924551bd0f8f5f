package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisclient "docrelay/packages/go/backend/redis"
)

const redisKeyPrefix = "docrelay:doc:"

type redisKV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// RedisStore keeps documents in Redis as JSON with a server-side expiry, so
// several relay processes can share uploads.
type RedisStore struct {
	client redisKV
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects lazily to addr (host:port or redis:// URL).
func NewRedisStore(addr string, ttl time.Duration) (*RedisStore, error) {
	client, err := redisclient.NewClient(addr)
	if err != nil {
		return nil, err
	}
	return newRedisStore(client, ttl), nil
}

func newRedisStore(client redisKV, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Put(ctx context.Context, doc Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+doc.ID, string(payload), s.ttl); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Document, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+id)
	if err != nil {
		if errors.Is(err, redisclient.ErrNil) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("load document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Sweep is a no-op: Redis expires keys itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.client.Scan(ctx, redisKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return len(keys), nil
}

// Ping reports whether the Redis server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying connection when the client supports it.
func (s *RedisStore) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
