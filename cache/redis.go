package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

type RedisStore struct {
	metrics
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedis returns a Store over client.  A zero ttl (meaning no
// expiration) should only be used when Redis is configured with a key
// eviction policy.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, reg prometheus.Registerer) *RedisStore {
	if prefix == "" {
		prefix = "pivot"
	}
	return &RedisStore{
		metrics: newMetrics(reg),
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, kind RecordKind, id string) ([]byte, error) {
	res := s.client.Get(ctx, key(s.prefix, kind, id))
	if err := res.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.WithLabelValues(string(kind)).Inc()
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.hits.WithLabelValues(string(kind)).Inc()
	return res.Bytes()
}

func (s *RedisStore) Put(ctx context.Context, kind RecordKind, id string, b []byte) error {
	return s.client.Set(ctx, key(s.prefix, kind, id), b, s.ttl).Err()
}
