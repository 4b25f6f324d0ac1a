// Package parquetio converts between pivot result tables and parquet
// files: results are exported as one parquet row per flat record, and
// parquet files can be read back as datasets.
package parquetio

import (
	"io"

	goparquet "github.com/fraugster/parquet-go"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"
	"github.com/sievedata/pivot/table"
)

var (
	repetitionOptional = parquet.FieldRepetitionTypePtr(parquet.FieldRepetitionType_OPTIONAL)

	convertedUTF8            = parquet.ConvertedTypePtr(parquet.ConvertedType_UTF8)
	convertedTimestampMillis = parquet.ConvertedTypePtr(parquet.ConvertedType_TIMESTAMP_MILLIS)

	logicalString          = &parquet.LogicalType{STRING: &parquet.StringType{}}
	logicalTimestampMillis = &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{
		Unit: &parquet.TimeUnit{MILLIS: &parquet.MilliSeconds{}},
	}}
)

// Write serializes records as a parquet file with one optional column
// per field.  Column types are chosen by scanning the cells: all-int
// columns become INT64, numeric columns DOUBLE, bool BOOLEAN, datetime
// TIMESTAMP_MILLIS, everything else UTF8.
func Write(w io.Writer, fields []string, records []map[string]table.Value) error {
	kinds := columnKinds(fields, records)
	sd, err := newSchemaDefinition(fields, kinds)
	if err != nil {
		return err
	}
	fw := goparquet.NewFileWriter(w, goparquet.WithSchemaDefinition(sd))
	for _, rec := range records {
		data := make(map[string]interface{}, len(fields))
		for i, field := range fields {
			v, ok := rec[field]
			if !ok || v.IsNull() {
				continue
			}
			data[field] = parquetValue(v, kinds[i])
		}
		if err := fw.AddData(data); err != nil {
			fw.Close()
			return err
		}
	}
	return fw.Close()
}

func columnKinds(fields []string, records []map[string]table.Value) []table.Kind {
	kinds := make([]table.Kind, len(fields))
	for i, field := range fields {
		kind := table.KindNull
		for _, rec := range records {
			v, ok := rec[field]
			if !ok || v.IsNull() {
				continue
			}
			kind = widen(kind, v.Kind())
		}
		kinds[i] = kind
	}
	return kinds
}

func widen(have, next table.Kind) table.Kind {
	if have == table.KindNull || have == next {
		return next
	}
	if have == table.KindInt && next == table.KindFloat ||
		have == table.KindFloat && next == table.KindInt {
		return table.KindFloat
	}
	return table.KindString
}

func newSchemaDefinition(fields []string, kinds []table.Kind) (*parquetschema.SchemaDefinition, error) {
	children := make([]*parquetschema.ColumnDefinition, 0, len(fields))
	for i, field := range fields {
		col := &parquetschema.ColumnDefinition{
			SchemaElement: &parquet.SchemaElement{
				Name:           field,
				RepetitionType: repetitionOptional,
			},
		}
		switch kinds[i] {
		case table.KindInt:
			col.SchemaElement.Type = parquet.TypePtr(parquet.Type_INT64)
		case table.KindFloat:
			col.SchemaElement.Type = parquet.TypePtr(parquet.Type_DOUBLE)
		case table.KindBool:
			col.SchemaElement.Type = parquet.TypePtr(parquet.Type_BOOLEAN)
		case table.KindTime:
			col.SchemaElement.Type = parquet.TypePtr(parquet.Type_INT64)
			col.SchemaElement.ConvertedType = convertedTimestampMillis
			col.SchemaElement.LogicalType = logicalTimestampMillis
		default:
			col.SchemaElement.Type = parquet.TypePtr(parquet.Type_BYTE_ARRAY)
			col.SchemaElement.ConvertedType = convertedUTF8
			col.SchemaElement.LogicalType = logicalString
		}
		children = append(children, col)
	}
	sd := &parquetschema.SchemaDefinition{
		RootColumn: &parquetschema.ColumnDefinition{
			Children:      children,
			SchemaElement: &parquet.SchemaElement{Name: "pivot"},
		},
	}
	return sd, sd.ValidateStrict()
}

func parquetValue(v table.Value, kind table.Kind) interface{} {
	switch kind {
	case table.KindInt:
		if f, ok := v.Float(); ok {
			return int64(f)
		}
	case table.KindFloat:
		if f, ok := v.Float(); ok {
			return f
		}
	case table.KindBool:
		if b, ok := v.Bool(); ok {
			return b
		}
	case table.KindTime:
		if t, ok := v.Time(); ok {
			return t.UnixMilli()
		}
	}
	return []byte(v.String())
}
