package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sievedata/pivot"
	"github.com/sievedata/pivot/api"
	"github.com/sievedata/pivot/api/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesCSV = `region,product,sales
east,pens,10
east,paper,20
west,pens,30
west,paper,40
east,pens,50
`

func newTestService(t *testing.T) (*client.Connection, string) {
	t.Helper()
	dataDir := t.TempDir()
	exportDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sales.csv"), []byte(salesCSV), 0644))
	core, err := NewCore(context.Background(), Config{
		Root:       dataDir,
		ExportRoot: exportDir,
		CacheTTL:   time.Hour,
		Version:    "test",
	})
	require.NoError(t, err)
	srv := httptest.NewServer(core)
	t.Cleanup(srv.Close)
	t.Cleanup(core.Shutdown)
	return client.NewConnectionTo(srv.URL), exportDir
}

func salesRequest() api.PivotRequest {
	return api.PivotRequest{
		DataSource:  "sales.csv",
		Rows:        []string{"region"},
		Values:      []pivot.ValueSpec{{Field: "sales", Agg: pivot.AggSum}},
		GrandTotals: pivot.TotalsRows,
	}
}

func TestServiceComputeAndGet(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestService(t)

	result, err := conn.Compute(ctx, "c1", salesRequest())
	require.NoError(t, err)
	require.Equal(t, api.StatusSuccess, result.Status)
	require.Equal(t, 3, result.Rows)
	require.Equal(t, []string{"region", "sales"}, result.Fields)
	assert.Equal(t, "east", result.Data[0]["region"].String())

	got, err := conn.Data(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, result.Rows, got.Rows)

	status, err := conn.Status(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, api.StatusSuccess, status.Status)
}

func TestServiceRefresh(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestService(t)

	_, err := conn.Compute(ctx, "c1", salesRequest())
	require.NoError(t, err)

	result, err := conn.Refresh(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 3, result.Rows)
}

func TestServiceSave(t *testing.T) {
	ctx := context.Background()
	conn, exportDir := newTestService(t)

	_, err := conn.Compute(ctx, "report7", salesRequest())
	require.NoError(t, err)

	res, err := conn.Save(ctx, "report7", api.SaveRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	_, err = os.Stat(filepath.Join(exportDir, "pivot", "report.parquet"))
	require.NoError(t, err)
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestService(t)

	_, err := conn.Data(ctx, "nope")
	requireStatus(t, err, http.StatusNotFound)

	req := salesRequest()
	req.Values = nil
	_, err = conn.Compute(ctx, "c1", req)
	requireStatus(t, err, http.StatusBadRequest)

	req = salesRequest()
	req.DataSource = "missing.csv"
	_, err = conn.Compute(ctx, "c1", req)
	requireStatus(t, err, http.StatusNotFound)
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	var resErr *client.ErrorResponse
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, code, resErr.StatusCode)
	var apierr *api.Error
	require.True(t, errors.As(resErr.Err, &apierr))
	require.NotEmpty(t, apierr.Message)
}

func TestServiceStatusUnknown(t *testing.T) {
	conn, _ := newTestService(t)
	status, err := conn.Status(context.Background(), "nope")
	require.NoError(t, err)
	require.Equal(t, api.StatusUnknown, status.Status)
}

func TestServiceVersionAndPing(t *testing.T) {
	ctx := context.Background()
	conn, _ := newTestService(t)
	require.NoError(t, conn.Ping(ctx))
	version, err := conn.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, "test", version)
}
