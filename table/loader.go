package table

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/alecthomas/units"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sievedata/pivot/storage"
)

// ParquetReader parses parquet bytes into a Table.  It is injected to
// keep this package free of a parquet dependency cycle.
type ParquetReader func(rs *bytes.Reader) (*Table, error)

// Loader resolves data-source paths against a root URI, parses CSV or
// parquet sources into Tables, and memoizes parsed tables in a bounded
// LRU keyed by resolved location.
type Loader struct {
	root        *storage.URI
	mu          sync.Mutex
	engines     map[storage.Scheme]storage.Engine
	lru         *lru.Cache[string, *Table]
	maxSize     int64
	readParquet ParquetReader
	hits        prometheus.Counter
	misses      prometheus.Counter
}

type LoaderConfig struct {
	Root *storage.URI
	// CacheSize is the number of parsed tables kept in memory.
	CacheSize int
	// MaxSourceSize caps the byte size of a loadable source; zero
	// means no cap.
	MaxSourceSize units.Base2Bytes
	ReadParquet   ParquetReader
}

func NewLoader(conf LoaderConfig, reg prometheus.Registerer) (*Loader, error) {
	if conf.Root == nil {
		return nil, fmt.Errorf("loader requires a root URI")
	}
	size := conf.CacheSize
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, *Table](size)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Loader{
		root:        conf.Root,
		engines:     make(map[storage.Scheme]storage.Engine),
		lru:         cache,
		maxSize:     int64(conf.MaxSourceSize),
		readParquet: conf.ReadParquet,
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pivot_dataset_cache_hits_total",
			Help: "Number of dataset loads served from the in-memory cache.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "pivot_dataset_cache_misses_total",
			Help: "Number of dataset loads that read from storage.",
		}),
	}, nil
}

// Resolve maps a data-source reference to its absolute location.
// References carrying a scheme are taken as-is; bare paths resolve
// under the loader's root.
func (l *Loader) Resolve(source string) (*storage.URI, error) {
	if source == "" {
		return nil, fmt.Errorf("no data source given")
	}
	if strings.HasPrefix(source, "s3://") || strings.HasPrefix(source, "file://") {
		return storage.ParseURI(source)
	}
	return l.root.JoinPath(strings.TrimPrefix(source, "/")), nil
}

// Load resolves and parses a data source, serving repeated loads of
// the same location from the LRU.
func (l *Loader) Load(ctx context.Context, source string) (*Table, *storage.URI, error) {
	u, err := l.Resolve(source)
	if err != nil {
		return nil, nil, err
	}
	if tbl, ok := l.lru.Get(u.String()); ok {
		l.hits.Inc()
		return tbl, u, nil
	}
	engine, err := l.engine(u)
	if err != nil {
		return nil, nil, err
	}
	if l.maxSize > 0 {
		size, err := engine.Size(ctx, u)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %s: %w", source, err)
		}
		if size > l.maxSize {
			return nil, nil, fmt.Errorf("dataset %s is %s, exceeding the %s limit",
				source, units.Base2Bytes(size), units.Base2Bytes(l.maxSize))
		}
	}
	b, err := storage.Get(ctx, engine, u)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", source, err)
	}
	tbl, err := l.parse(u, b)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", source, err)
	}
	l.misses.Inc()
	l.lru.Add(u.String(), tbl)
	return tbl, u, nil
}

func (l *Loader) parse(u *storage.URI, b []byte) (*Table, error) {
	if strings.EqualFold(path.Ext(u.Path), ".parquet") {
		if l.readParquet == nil {
			return nil, fmt.Errorf("parquet sources not supported")
		}
		return l.readParquet(bytes.NewReader(b))
	}
	return ReadCSV(bytes.NewReader(b))
}

func (l *Loader) engine(u *storage.URI) (storage.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if engine, ok := l.engines[storage.Scheme(u.Scheme)]; ok {
		return engine, nil
	}
	engine, err := storage.NewEngine(u)
	if err != nil {
		return nil, err
	}
	l.engines[storage.Scheme(u.Scheme)] = engine
	return engine, nil
}
