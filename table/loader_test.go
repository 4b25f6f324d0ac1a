package table

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/units"
	"github.com/sievedata/pivot/storage"
	"github.com/stretchr/testify/require"
)

const loaderCSV = "region,sales\neast,10\nwest,20\n"

func newTestLoader(t *testing.T, conf LoaderConfig) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.csv"), []byte(loaderCSV), 0644))
	if conf.Root == nil {
		conf.Root = storage.MustParseURI(dir)
	}
	loader, err := NewLoader(conf, nil)
	require.NoError(t, err)
	return loader, dir
}

func TestLoaderLoadsCSV(t *testing.T) {
	loader, _ := newTestLoader(t, LoaderConfig{})
	tbl, u, err := loader.Load(context.Background(), "sales.csv")
	require.NoError(t, err)
	require.True(t, u.HasScheme(storage.FileScheme))
	require.Equal(t, 2, tbl.NumRows())
	v, ok := tbl.ColumnValues("sales")
	require.True(t, ok)
	require.Equal(t, Int(10), v[0])
}

func TestLoaderCachesParsedTables(t *testing.T) {
	loader, _ := newTestLoader(t, LoaderConfig{})
	tbl1, _, err := loader.Load(context.Background(), "sales.csv")
	require.NoError(t, err)
	tbl2, _, err := loader.Load(context.Background(), "sales.csv")
	require.NoError(t, err)
	// The second load is served from the cache.
	require.Same(t, tbl1, tbl2)
}

func TestLoaderResolve(t *testing.T) {
	loader, dir := newTestLoader(t, LoaderConfig{})
	u, err := loader.Resolve("sub/data.csv")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sub", "data.csv"), u.Filepath())

	u, err = loader.Resolve("s3://bucket/data.csv")
	require.NoError(t, err)
	require.True(t, u.HasScheme(storage.S3Scheme))

	_, err = loader.Resolve("")
	require.EqualError(t, err, "no data source given")
}

func TestLoaderMissingSource(t *testing.T) {
	loader, _ := newTestLoader(t, LoaderConfig{})
	_, _, err := loader.Load(context.Background(), "nope.csv")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderSizeCap(t *testing.T) {
	loader, _ := newTestLoader(t, LoaderConfig{MaxSourceSize: units.Base2Bytes(8)})
	_, _, err := loader.Load(context.Background(), "sales.csv")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeding")
}
