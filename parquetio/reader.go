package parquetio

import (
	"errors"
	"io"
	"time"

	goparquet "github.com/fraugster/parquet-go"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"
	"github.com/sievedata/pivot/table"
)

// Read parses a parquet file into a Table, preserving the schema's
// column order.  Nested groups are not supported; pivot datasets are
// flat scalar columns.
func Read(rs io.ReadSeeker) (*table.Table, error) {
	fr, err := goparquet.NewFileReader(rs)
	if err != nil {
		return nil, err
	}
	defs := fr.GetSchemaDefinition().RootColumn.Children
	cols := make([]table.Column, len(defs))
	for i, def := range defs {
		if len(def.Children) > 0 {
			return nil, errors.New("nested parquet schemas unsupported")
		}
		cols[i].Name = def.SchemaElement.Name
	}
	for {
		row, err := fr.NextRow()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		for i, def := range defs {
			cols[i].Values = append(cols[i].Values, convert(row[def.SchemaElement.Name], def))
		}
	}
	return table.New(cols)
}

func convert(x interface{}, def *parquetschema.ColumnDefinition) table.Value {
	switch x := x.(type) {
	case nil:
		return table.Null
	case bool:
		return table.Bool(x)
	case int32:
		return table.Int(int64(x))
	case int64:
		if isTimestampMillis(def.SchemaElement) {
			return table.Time(time.UnixMilli(x).UTC())
		}
		return table.Int(x)
	case float32:
		return table.Float(float64(x))
	case float64:
		return table.Float(x)
	case []byte:
		return table.String(string(x))
	case string:
		return table.String(x)
	}
	return table.Null
}

func isTimestampMillis(se *parquet.SchemaElement) bool {
	if se.ConvertedType != nil && *se.ConvertedType == parquet.ConvertedType_TIMESTAMP_MILLIS {
		return true
	}
	return se.LogicalType != nil && se.LogicalType.TIMESTAMP != nil
}
