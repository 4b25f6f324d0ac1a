package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LocalStore is an in-process Store with the same TTL semantics as the
// Redis store, for tests and single-node deployments.
type LocalStore struct {
	metrics
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]localEntry
}

type localEntry struct {
	b       []byte
	expires time.Time
}

var _ Store = (*LocalStore)(nil)

func NewLocal(ttl time.Duration, reg prometheus.Registerer) *LocalStore {
	return &LocalStore{
		metrics: newMetrics(reg),
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]localEntry),
	}
}

func (s *LocalStore) Get(_ context.Context, kind RecordKind, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key("pivot", kind, id)]
	if !ok || (s.ttl > 0 && s.now().After(e.expires)) {
		s.misses.WithLabelValues(string(kind)).Inc()
		return nil, ErrNotFound
	}
	s.hits.WithLabelValues(string(kind)).Inc()
	return e.b, nil
}

func (s *LocalStore) Put(_ context.Context, kind RecordKind, id string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key("pivot", kind, id)] = localEntry{
		b:       append([]byte{}, b...),
		expires: s.now().Add(s.ttl),
	}
	return nil
}
