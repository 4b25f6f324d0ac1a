// Package driver orchestrates the pivot lifecycle around the
// computation core: loading datasets, caching results and status
// records, refreshing from cached configurations, and exporting
// results to object storage.
//
// The cache is last-writer-wins: concurrent computes against one
// configuration id are not serialized, and a refresh racing a compute
// may overwrite its result.  Callers needing read-after-write
// consistency must not issue concurrent writes for the same id.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sievedata/pivot"
	"github.com/sievedata/pivot/api"
	"github.com/sievedata/pivot/cache"
	"github.com/sievedata/pivot/parquetio"
	"github.com/sievedata/pivot/service/srverr"
	"github.com/sievedata/pivot/storage"
	"github.com/sievedata/pivot/table"
	"go.uber.org/zap"
)

type Config struct {
	Loader *table.Loader
	Store  cache.Store
	// ExportRoot scopes exported files; results are written under its
	// "pivot/" sub-path.  Export is disabled when nil.
	ExportRoot *storage.URI
	Logger     *zap.Logger
	Registry   prometheus.Registerer
}

type Driver struct {
	loader       *table.Loader
	store        cache.Store
	exportRoot   *storage.URI
	exportEngine storage.Engine
	logger       *zap.Logger
	duration     prometheus.Histogram
	now          func() time.Time
}

func New(conf Config) (*Driver, error) {
	if conf.Loader == nil {
		return nil, errors.New("driver requires a dataset loader")
	}
	if conf.Store == nil {
		return nil, errors.New("driver requires a cache store")
	}
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := conf.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	d := &Driver{
		loader:     conf.Loader,
		store:      conf.Store,
		exportRoot: conf.ExportRoot,
		logger:     logger.Named("driver"),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "pivot_compute_duration_seconds",
			Help: "Duration of pivot compute calls.",
		}),
		now: time.Now,
	}
	if conf.ExportRoot != nil {
		engine, err := storage.NewEngine(conf.ExportRoot)
		if err != nil {
			return nil, err
		}
		d.exportEngine = engine
	}
	return d, nil
}

// Compute runs the full compute-and-cache cycle for one configuration.
// The status record is written as pending before any work and always
// ends as success or failed, even when the error propagates to the
// caller.
func (d *Driver) Compute(ctx context.Context, configID string, req pivot.Request) (*api.PivotResult, error) {
	start := d.now()
	if err := d.writeStatus(ctx, api.StatusRecord{
		ConfigID:  configID,
		Status:    api.StatusPending,
		UpdatedAt: start,
	}); err != nil {
		return nil, srverr.ErrUnavailable(err)
	}
	result, err := d.compute(ctx, configID, req)
	d.duration.Observe(d.now().Sub(start).Seconds())
	if err != nil {
		d.logger.Warn("Compute failed",
			zap.String("config_id", configID),
			zap.Error(err))
		if werr := d.writeStatus(ctx, api.StatusRecord{
			ConfigID:  configID,
			Status:    api.StatusFailed,
			UpdatedAt: d.now(),
			Message:   err.Error(),
		}); werr != nil {
			d.logger.Error("Writing failed status", zap.String("config_id", configID), zap.Error(werr))
		}
		return nil, err
	}
	d.logger.Info("Compute complete",
		zap.String("config_id", configID),
		zap.Int("rows", result.Rows),
		zap.Duration("elapsed", d.now().Sub(start)))
	return result, nil
}

func (d *Driver) compute(ctx context.Context, configID string, req pivot.Request) (*api.PivotResult, error) {
	tbl, u, err := d.loader.Load(ctx, req.DataSource)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, srverr.ErrNotFound(err)
		}
		return nil, srverr.ErrUnavailable(err)
	}
	res, err := pivot.Compute(tbl, req)
	if err != nil {
		return nil, srverr.ErrInvalid(err)
	}
	now := d.now()
	result := &api.PivotResult{
		ConfigID:  configID,
		Status:    api.StatusSuccess,
		UpdatedAt: now,
		Result:    *res,
	}
	if err := d.putJSON(ctx, cache.KindData, configID, result); err != nil {
		return nil, srverr.ErrUnavailable(err)
	}
	cfg := api.ConfigRecord{Request: req, Path: u.String()}
	// Export provenance survives recomputes.
	if old, err := d.readConfig(ctx, configID); err == nil {
		cfg.LastSavedPath, cfg.LastSavedAt = old.LastSavedPath, old.LastSavedAt
		cfg.FirstSavedPath, cfg.FirstSavedAt = old.FirstSavedPath, old.FirstSavedAt
	}
	if err := d.putJSON(ctx, cache.KindConfig, configID, &cfg); err != nil {
		return nil, srverr.ErrUnavailable(err)
	}
	rows := result.Rows
	if err := d.writeStatus(ctx, api.StatusRecord{
		ConfigID:  configID,
		Status:    api.StatusSuccess,
		UpdatedAt: now,
		Rows:      &rows,
	}); err != nil {
		return nil, srverr.ErrUnavailable(err)
	}
	return result, nil
}

// GetData returns the cached result for a configuration.  It never
// falls back to recomputing.
func (d *Driver) GetData(ctx context.Context, configID string) (*api.PivotResult, error) {
	b, err := d.store.Get(ctx, cache.KindData, configID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, srverr.ErrNotFound("no cached result for configuration %q", configID)
		}
		return nil, srverr.ErrUnavailable(err)
	}
	var result api.PivotResult
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh recomputes a configuration from its cached request.
func (d *Driver) Refresh(ctx context.Context, configID string) (*api.PivotResult, error) {
	cfg, err := d.readConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, srverr.ErrNotFound("no cached configuration %q", configID)
		}
		return nil, srverr.ErrUnavailable(err)
	}
	return d.Compute(ctx, configID, cfg.Request)
}

// GetStatus returns the status record for a configuration, or an
// unknown-status record when none is cached.
func (d *Driver) GetStatus(ctx context.Context, configID string) (*api.StatusRecord, error) {
	b, err := d.store.Get(ctx, cache.KindStatus, configID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return &api.StatusRecord{
				ConfigID:  configID,
				Status:    api.StatusUnknown,
				UpdatedAt: d.now(),
			}, nil
		}
		return nil, srverr.ErrUnavailable(err)
	}
	var rec api.StatusRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save exports the last cached result as a parquet file.  A
// caller-supplied filename always targets that specific name; without
// one the name is canonicalized from the configuration id so repeated
// saves overwrite in place.  The cached result is never mutated, and
// config bookkeeping is only updated after a successful upload.
func (d *Driver) Save(ctx context.Context, configID, filename string) (*api.SaveResponse, error) {
	if d.exportEngine == nil {
		return nil, srverr.ErrInvalid("export is not configured")
	}
	result, err := d.GetData(ctx, configID)
	if err != nil {
		return nil, err
	}
	cfg, err := d.readConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, srverr.ErrNotFound("no cached configuration %q", configID)
		}
		return nil, srverr.ErrUnavailable(err)
	}
	name := filename
	if name == "" {
		name = canonicalName(configID)
	} else if !strings.HasSuffix(strings.ToLower(name), ".parquet") {
		name += ".parquet"
	}
	records := make([]map[string]table.Value, len(result.Data))
	for i, rec := range result.Data {
		records[i] = rec
	}
	var buf bytes.Buffer
	if err := parquetio.Write(&buf, result.Fields, records); err != nil {
		return nil, err
	}
	dest := d.exportRoot.JoinPath("pivot", name)
	if err := storage.PutBytes(ctx, d.exportEngine, dest, buf.Bytes()); err != nil {
		return nil, srverr.ErrUnavailable(fmt.Errorf("saving pivot %q to %s: %w", configID, dest, err))
	}
	now := d.now()
	cfg.LastSavedPath = dest.String()
	cfg.LastSavedAt = &now
	if cfg.FirstSavedPath == "" {
		cfg.FirstSavedPath = dest.String()
		cfg.FirstSavedAt = &now
	}
	if err := d.putJSON(ctx, cache.KindConfig, configID, cfg); err != nil {
		return nil, srverr.ErrUnavailable(err)
	}
	d.logger.Info("Saved pivot",
		zap.String("config_id", configID),
		zap.Stringer("object", dest),
		zap.Int("rows", result.Rows))
	return &api.SaveResponse{
		ObjectName: dest.String(),
		Rows:       result.Rows,
		UpdatedAt:  now,
	}, nil
}

func (d *Driver) readConfig(ctx context.Context, configID string) (*api.ConfigRecord, error) {
	b, err := d.store.Get(ctx, cache.KindConfig, configID)
	if err != nil {
		return nil, err
	}
	var cfg api.ConfigRecord
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d *Driver) writeStatus(ctx context.Context, rec api.StatusRecord) error {
	return d.putJSON(ctx, cache.KindStatus, rec.ConfigID, &rec)
}

func (d *Driver) putJSON(ctx context.Context, kind cache.RecordKind, id string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.store.Put(ctx, kind, id, b)
}

var (
	digitRuns     = regexp.MustCompile(`[0-9]+`)
	separatorRuns = regexp.MustCompile(`[-_.]{2,}`)
)

// canonicalName derives the stable export name for a configuration id
// by stripping embedded numeric fragments.
func canonicalName(configID string) string {
	name := digitRuns.ReplaceAllString(configID, "")
	name = separatorRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-_.")
	if name == "" {
		name = "pivot"
	}
	return strings.ToLower(name) + ".parquet"
}
