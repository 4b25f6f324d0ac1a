package parquetio

import (
	"bytes"
	"testing"
	"time"

	"github.com/sievedata/pivot/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	when := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	fields := []string{"region", "sales", "ratio", "active", "when"}
	records := []map[string]table.Value{
		{
			"region": table.String("east"),
			"sales":  table.Int(10),
			"ratio":  table.Float(1.5),
			"active": table.Bool(true),
			"when":   table.Time(when),
		},
		{
			"region": table.String("west"),
			"sales":  table.Int(20),
			"ratio":  table.Float(2.5),
			"active": table.Bool(false),
			"when":   table.Time(when.Add(time.Hour)),
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fields, records))

	tbl, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())

	vals, ok := tbl.ColumnValues("region")
	require.True(t, ok)
	assert.Equal(t, table.String("east"), vals[0])
	assert.Equal(t, table.String("west"), vals[1])

	vals, ok = tbl.ColumnValues("sales")
	require.True(t, ok)
	assert.Equal(t, table.Int(10), vals[0])

	vals, ok = tbl.ColumnValues("ratio")
	require.True(t, ok)
	assert.Equal(t, table.Float(2.5), vals[1])

	vals, ok = tbl.ColumnValues("active")
	require.True(t, ok)
	assert.Equal(t, table.Bool(true), vals[0])

	vals, ok = tbl.ColumnValues("when")
	require.True(t, ok)
	got, ok := vals[0].Time()
	require.True(t, ok)
	assert.True(t, got.Equal(when))
}

func TestWriteNullsAndWidening(t *testing.T) {
	fields := []string{"x"}
	records := []map[string]table.Value{
		{"x": table.Int(1)},
		{"x": table.Null},
		{"x": table.Float(2.5)},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fields, records))

	tbl, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	vals, ok := tbl.ColumnValues("x")
	require.True(t, ok)
	require.Len(t, vals, 3)
	// Ints widen to double when the column mixes kinds.
	assert.Equal(t, table.Float(1), vals[0])
	assert.True(t, vals[1].IsNull())
	assert.Equal(t, table.Float(2.5), vals[2])
}
