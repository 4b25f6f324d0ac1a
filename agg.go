package pivot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sievedata/pivot/table"
)

// AggKind enumerates the supported aggregation kinds.
type AggKind string

const (
	AggSum         AggKind = "sum"
	AggMean        AggKind = "mean"
	AggCount       AggKind = "count"
	AggMin         AggKind = "min"
	AggMax         AggKind = "max"
	AggMedian      AggKind = "median"
	AggWeightedAvg AggKind = "weighted_average"
)

// ParseAggKind canonicalizes a requested aggregation name.  "avg" and
// "average" are accepted as aliases for mean.
func ParseAggKind(s string) (AggKind, bool) {
	switch strings.ToLower(s) {
	case "sum":
		return AggSum, true
	case "mean", "avg", "average":
		return AggMean, true
	case "count":
		return AggCount, true
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	case "median":
		return AggMedian, true
	case "weighted_average", "weighted_avg", "wavg":
		return AggWeightedAvg, true
	}
	return "", false
}

// summable reports whether cells of this kind can be added together to
// synthesize a row-wise total column.
func (k AggKind) summable() bool {
	switch k {
	case AggSum, AggMean, AggCount, AggMin, AggMax:
		return true
	}
	return false
}

// Aggregation is one resolved value-field aggregation: the variant kind
// plus the table columns it reads.  Weighted average carries its weight
// column here rather than in a captured closure.
type Aggregation struct {
	Kind         AggKind
	Field        string // canonical column name
	WeightColumn string // canonical, weighted average only

	fieldCol  int
	weightCol int
}

// resolveAggregations validates every value spec against the dataset
// before any grouping work begins.
func resolveAggregations(tbl *table.Table, specs []ValueSpec) ([]Aggregation, error) {
	aggs := make([]Aggregation, 0, len(specs))
	for _, spec := range specs {
		kind, ok := ParseAggKind(string(spec.Agg))
		if !ok {
			return nil, fmt.Errorf("unsupported aggregation %q for field %q", string(spec.Agg), spec.Field)
		}
		col, ok := tbl.Lookup(spec.Field)
		if !ok {
			return nil, fmt.Errorf("unknown value field %q", spec.Field)
		}
		a := Aggregation{
			Kind:      kind,
			Field:     tbl.Columns()[col].Name,
			fieldCol:  col,
			weightCol: -1,
		}
		if kind == AggWeightedAvg {
			if spec.WeightColumn == "" {
				return nil, fmt.Errorf("weighted_average aggregation for field %q requires a weight_column", spec.Field)
			}
			wcol, ok := tbl.Lookup(spec.WeightColumn)
			if !ok {
				return nil, fmt.Errorf("unknown weight column %q for field %q", spec.WeightColumn, spec.Field)
			}
			if !numericColumn(tbl, wcol) {
				return nil, fmt.Errorf("weight column %q for field %q is not numeric", spec.WeightColumn, spec.Field)
			}
			a.WeightColumn = tbl.Columns()[wcol].Name
			a.weightCol = wcol
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

// numericColumn reports whether every non-null cell of the column is
// numeric.  An all-null column passes; its aggregates are null.
func numericColumn(tbl *table.Table, col int) bool {
	vals := tbl.Columns()[col].Values
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if _, ok := v.Float(); !ok {
			return false
		}
	}
	return true
}

// Reduce aggregates the given raw rows of tbl.  Nulls are ignored
// except by count, which counts non-null cells.  An empty or all-null
// group yields null (count yields 0).
func (a Aggregation) Reduce(tbl *table.Table, rows []int) table.Value {
	r := a.newReducer()
	for _, row := range rows {
		if a.Kind == AggWeightedAvg {
			r.(*weightedAvgReducer).ConsumePair(tbl.At(row, a.fieldCol), tbl.At(row, a.weightCol))
			continue
		}
		r.Consume(tbl.At(row, a.fieldCol))
	}
	return r.Result()
}

type reducer interface {
	Consume(table.Value)
	Result() table.Value
}

func (a Aggregation) newReducer() reducer {
	switch a.Kind {
	case AggSum:
		return &sumReducer{}
	case AggMean:
		return &meanReducer{}
	case AggCount:
		return &countReducer{}
	case AggMin:
		return &minReducer{}
	case AggMax:
		return &maxReducer{}
	case AggMedian:
		return &medianReducer{}
	case AggWeightedAvg:
		return &weightedAvgReducer{}
	}
	panic("pivot: unknown aggregation kind " + string(a.Kind))
}

type sumReducer struct {
	sum   float64
	valid bool
}

func (r *sumReducer) Consume(v table.Value) {
	if f, ok := v.Float(); ok {
		r.sum += f
		r.valid = true
	}
}

func (r *sumReducer) Result() table.Value {
	if !r.valid {
		return table.Null
	}
	return table.Float(r.sum)
}

type meanReducer struct {
	sum   float64
	count uint64
}

func (r *meanReducer) Consume(v table.Value) {
	if f, ok := v.Float(); ok {
		r.sum += f
		r.count++
	}
}

func (r *meanReducer) Result() table.Value {
	if r.count == 0 {
		return table.Null
	}
	return table.Float(r.sum / float64(r.count))
}

type countReducer struct {
	count int64
}

func (r *countReducer) Consume(v table.Value) {
	if !v.IsNull() {
		r.count++
	}
}

func (r *countReducer) Result() table.Value {
	return table.Int(r.count)
}

type minReducer struct {
	min   float64
	valid bool
}

func (r *minReducer) Consume(v table.Value) {
	if f, ok := v.Float(); ok {
		if !r.valid || f < r.min {
			r.min = f
		}
		r.valid = true
	}
}

func (r *minReducer) Result() table.Value {
	if !r.valid {
		return table.Null
	}
	return table.Float(r.min)
}

type maxReducer struct {
	max   float64
	valid bool
}

func (r *maxReducer) Consume(v table.Value) {
	if f, ok := v.Float(); ok {
		if !r.valid || f > r.max {
			r.max = f
		}
		r.valid = true
	}
}

func (r *maxReducer) Result() table.Value {
	if !r.valid {
		return table.Null
	}
	return table.Float(r.max)
}

type medianReducer struct {
	vals []float64
}

func (r *medianReducer) Consume(v table.Value) {
	if f, ok := v.Float(); ok {
		r.vals = append(r.vals, f)
	}
}

func (r *medianReducer) Result() table.Value {
	n := len(r.vals)
	if n == 0 {
		return table.Null
	}
	sort.Float64s(r.vals)
	if n%2 == 1 {
		return table.Float(r.vals[n/2])
	}
	return table.Float((r.vals[n/2-1] + r.vals[n/2]) / 2)
}

// weightedAvgReducer computes sum(value*weight)/sum(weight) over pairs
// where both sides are non-null and the weight is positive.  A group
// with no such pair, or a zero weight sum, yields null.
type weightedAvgReducer struct {
	weightedSum float64
	weightSum   float64
}

func (r *weightedAvgReducer) ConsumePair(v, w table.Value) {
	f, ok := v.Float()
	if !ok {
		return
	}
	wf, ok := w.Float()
	if !ok || wf <= 0 {
		return
	}
	r.weightedSum += f * wf
	r.weightSum += wf
}

func (r *weightedAvgReducer) Consume(v table.Value) {
	// Weighted average is driven through ConsumePair.
}

func (r *weightedAvgReducer) Result() table.Value {
	if r.weightSum == 0 {
		return table.Null
	}
	return table.Float(r.weightedSum / r.weightSum)
}
