// Package service exposes the pivot driver over HTTP.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/alecthomas/units"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sievedata/pivot/api"
	"github.com/sievedata/pivot/cache"
	"github.com/sievedata/pivot/driver"
	"github.com/sievedata/pivot/parquetio"
	"github.com/sievedata/pivot/service/logger"
	"github.com/sievedata/pivot/storage"
	"github.com/sievedata/pivot/table"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const indexPage = `
<!DOCTYPE html>
<html>
  <title>pivotd daemon</title>
  <body style="padding:10px">
    <h2>pivotd</h2>
    <p>A pivotd daemon is listening on this host/port.</p>
    <p>Post a pivot configuration to /pivot/{id} to compute a table.</p>
  </body>
</html>`

type Config struct {
	// Root is the URI under which bare data-source paths resolve.
	Root string `yaml:"root"`
	// ExportRoot is the URI under which saved results are written.
	// Export endpoints are disabled when empty.
	ExportRoot string      `yaml:"export_root,omitempty"`
	Redis      RedisConfig `yaml:"redis"`
	// CacheTTL bounds the lifetime of cached results, configs, and
	// status records.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// DatasetCacheSize is the number of parsed datasets held in memory.
	DatasetCacheSize int `yaml:"dataset_cache_size,omitempty"`
	// MaxSourceSize caps the byte size of a loadable dataset.
	MaxSourceSize      units.Base2Bytes `yaml:"max_source_size,omitempty"`
	CORSAllowedOrigins []string         `yaml:"cors_allowed_origins,omitempty"`
	Logger             *zap.Logger      `yaml:"-"`
	LoggerConfig       logger.Config    `yaml:"logger"`
	Version            string           `yaml:"-"`
}

type Core struct {
	conf      Config
	driver    *driver.Driver
	logger    *zap.Logger
	registry  *prometheus.Registry
	routerAPI *mux.Router
	routerAux *mux.Router
	corsh     http.Handler
}

func NewCore(ctx context.Context, conf Config) (*Core, error) {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.Version == "" {
		conf.Version = "unknown"
	}
	if conf.CacheTTL == 0 {
		conf.CacheTTL = cache.DefaultTTL
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	routerAux := mux.NewRouter()
	routerAux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, indexPage)
	})

	debug := routerAux.PathPrefix("/debug/pprof").Subrouter()
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	routerAux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	routerAux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	routerAux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&api.VersionResponse{Version: conf.Version})
	})

	routerAPI := mux.NewRouter()
	routerAPI.Use(requestIDMiddleware())
	routerAPI.Use(accessLogMiddleware(conf.Logger))
	routerAPI.Use(panicCatchMiddleware(conf.Logger))

	c := &Core{
		conf:      conf,
		logger:    conf.Logger.Named("core"),
		registry:  registry,
		routerAPI: routerAPI,
		routerAux: routerAux,
	}
	if len(conf.CORSAllowedOrigins) > 0 {
		c.corsh = cors.New(cors.Options{
			AllowedOrigins: conf.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"*"},
		}).Handler(http.HandlerFunc(c.route))
	}
	if err := c.initDriver(ctx); err != nil {
		return nil, err
	}
	c.addAPIRoutes()
	c.logger.Info("Started",
		zap.String("root", conf.Root),
		zap.String("export_root", conf.ExportRoot),
		zap.Bool("redis", conf.Redis.Enabled))
	return c, nil
}

func (c *Core) addAPIRoutes() {
	c.handle("/pivot/{config}", handlePivotPost).Methods("POST")
	c.handle("/pivot/{config}", handlePivotGet).Methods("GET")
	c.handle("/pivot/{config}/refresh", handleRefreshPost).Methods("POST")
	c.handle("/pivot/{config}/status", handleStatusGet).Methods("GET")
	c.handle("/pivot/{config}/save", handleSavePost).Methods("POST")
}

func (c *Core) initDriver(ctx context.Context) error {
	root, err := storage.ParseURI(c.conf.Root)
	if err != nil {
		return err
	}
	loader, err := table.NewLoader(table.LoaderConfig{
		Root:          root,
		CacheSize:     c.conf.DatasetCacheSize,
		MaxSourceSize: c.conf.MaxSourceSize,
		ReadParquet: func(rs *bytes.Reader) (*table.Table, error) {
			return parquetio.Read(rs)
		},
	}, c.registry)
	if err != nil {
		return err
	}
	var store cache.Store
	if c.conf.Redis.Enabled {
		client, err := NewRedisClient(ctx, c.conf.Logger, c.conf.Redis)
		if err != nil {
			return err
		}
		store = cache.NewRedis(client, "pivot", c.conf.CacheTTL, c.registry)
	} else {
		store = cache.NewLocal(c.conf.CacheTTL, c.registry)
	}
	var exportRoot *storage.URI
	if c.conf.ExportRoot != "" {
		if exportRoot, err = storage.ParseURI(c.conf.ExportRoot); err != nil {
			return err
		}
	}
	c.driver, err = driver.New(driver.Config{
		Loader:     loader,
		Store:      store,
		ExportRoot: exportRoot,
		Logger:     c.conf.Logger,
		Registry:   c.registry,
	})
	return err
}

func (c *Core) handle(path string, f func(*Core, *ResponseWriter, *Request)) *mux.Route {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, req := newRequest(w, r, c)
		f(c, res, req)
	})
	return c.routerAPI.Handle(path, h)
}

func (c *Core) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Core) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.corsh != nil {
		c.corsh.ServeHTTP(w, r)
		return
	}
	c.route(w, r)
}

func (c *Core) route(w http.ResponseWriter, r *http.Request) {
	var rm mux.RouteMatch
	if c.routerAux.Match(r, &rm) {
		rm.Handler.ServeHTTP(w, r)
		return
	}
	c.routerAPI.ServeHTTP(w, r)
}

func (c *Core) Shutdown() {
	c.logger.Info("Shutdown")
}

// LoadConfigYAML layers a YAML config file under flag-provided values.
func LoadConfigYAML(b []byte, conf *Config) error {
	return yaml.Unmarshal(b, conf)
}
