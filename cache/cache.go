// Package cache persists pivot results, their originating
// configurations, and compute status records, keyed by configuration
// id.  Each record kind is written wholesale and all kinds share one
// TTL, refreshed on every write.  The store is last-writer-wins;
// concurrent writers against the same id are not serialized.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL is the shared expiry for all record kinds.
const DefaultTTL = time.Hour

var ErrNotFound = errors.New("cache: key not found")

// RecordKind names the three record namespaces kept per config id.
type RecordKind string

const (
	KindStatus RecordKind = "status"
	KindData   RecordKind = "data"
	KindConfig RecordKind = "config"
)

type Store interface {
	Get(ctx context.Context, kind RecordKind, id string) ([]byte, error)
	Put(ctx context.Context, kind RecordKind, id string, b []byte) error
}

func key(prefix string, kind RecordKind, id string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, kind, id)
}

type metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return metrics{
		hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_cache_hits_total",
				Help: "Number of hits for a cache lookup.",
			},
			[]string{"kind"},
		),
		misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_cache_misses_total",
				Help: "Number of misses for a cache lookup.",
			},
			[]string{"kind"},
		),
	}
}
