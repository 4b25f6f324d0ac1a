package pivot

import (
	"testing"

	"github.com/sievedata/pivot/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(ss ...string) []table.Value {
	out := make([]table.Value, len(ss))
	for i, s := range ss {
		out[i] = table.String(s)
	}
	return out
}

func ints(is ...int64) []table.Value {
	out := make([]table.Value, len(is))
	for i, n := range is {
		out[i] = table.Int(n)
	}
	return out
}

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New([]table.Column{
		{Name: "region", Values: strs("east", "east", "west", "west", "east")},
		{Name: "product", Values: strs("pens", "paper", "pens", "paper", "pens")},
		{Name: "sales", Values: ints(10, 20, 30, 40, 50)},
		{Name: "qty", Values: ints(1, 2, 3, 4, 5)},
	})
	require.NoError(t, err)
	return tbl
}

func floatOf(t *testing.T, v table.Value) float64 {
	t.Helper()
	f, ok := v.Float()
	require.True(t, ok, "expected numeric value, got %v", v)
	return f
}

func TestComputeSumByRegion(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"region", "sales"}, res.Fields)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, table.String("east"), res.Data[0]["region"])
	assert.EqualValues(t, 80, floatOf(t, res.Data[0]["sales"]))
	require.Equal(t, table.String("west"), res.Data[1]["region"])
	assert.EqualValues(t, 70, floatOf(t, res.Data[1]["sales"]))
}

func TestGrandTotalRowAggregatesRawRows(t *testing.T) {
	// The grand-total mean must be the mean over all raw rows, not the
	// mean of the per-group means.
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggMean}},
		GrandTotals: TotalsRows,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	gt := res.Data[len(res.Data)-1]
	require.Equal(t, table.String(GrandTotalLabel), gt["region"])
	assert.InDelta(t, 30.0, floatOf(t, gt["sales"]), 1e-9)
	// Mean of the two group means would be 30.833.
	assert.InDelta(t, 26.666666, floatOf(t, res.Data[0]["sales"]), 1e-4)
	assert.InDelta(t, 35.0, floatOf(t, res.Data[1]["sales"]), 1e-9)
}

func TestColumnsWithMargins(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Columns:     []string{"product"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggSum}},
		GrandTotals: TotalsBoth,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"region", "pens", "paper", GrandTotalLabel}, res.Fields)
	east, west, gt := res.Data[0], res.Data[1], res.Data[2]
	assert.EqualValues(t, 60, floatOf(t, east["pens"]))
	assert.EqualValues(t, 20, floatOf(t, east["paper"]))
	assert.EqualValues(t, 80, floatOf(t, east[GrandTotalLabel]))
	assert.EqualValues(t, 30, floatOf(t, west["pens"]))
	assert.EqualValues(t, 40, floatOf(t, west["paper"]))
	assert.EqualValues(t, 70, floatOf(t, west[GrandTotalLabel]))
	assert.EqualValues(t, 90, floatOf(t, gt["pens"]))
	assert.EqualValues(t, 60, floatOf(t, gt["paper"]))
	assert.EqualValues(t, 150, floatOf(t, gt[GrandTotalLabel]))
}

func TestGrandTotalMinIsRawScoped(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Columns:     []string{"product"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggMin}},
		GrandTotals: TotalsBoth,
	})
	require.NoError(t, err)
	gt := res.Data[len(res.Data)-1]
	// Margin cell is the min over all raw rows, not over the per-cell
	// minimums.
	assert.EqualValues(t, 10, floatOf(t, gt[GrandTotalLabel]))
	assert.EqualValues(t, 10, floatOf(t, gt["pens"]))
	assert.EqualValues(t, 20, floatOf(t, gt["paper"]))
}

func TestHierarchyValuesMatchFlatRecords(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region", "product"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
	})
	require.NoError(t, err)
	byKey := make(map[string]*Node)
	for _, n := range res.Hierarchy {
		byKey[n.Key] = n
	}
	for _, rec := range res.Data {
		key := compositeKey([]string{"region", "product"},
			[]string{rec["region"].String(), rec["product"].String()})
		n, ok := byKey[key]
		require.True(t, ok, "no hierarchy node for %s", key)
		require.Equal(t, rec["sales"], n.Values["sales"])
	}
}

func TestHierarchyOrderStrictlyIncreasing(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region", "product"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		Sort:   map[string]SortSpec{"product": {Type: SortDesc}},
	})
	require.NoError(t, err)
	for i, n := range res.Hierarchy {
		require.Equal(t, i, n.Order)
	}
	// Children must directly follow their parent in the flattened tree.
	for i, n := range res.Hierarchy {
		if n.ParentKey == "" {
			continue
		}
		var parentAt int
		for j, p := range res.Hierarchy {
			if p.Key == n.ParentKey {
				parentAt = j
				break
			}
		}
		require.Greater(t, i, parentAt)
	}
}

func TestSortPreservesHierarchy(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region", "product"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		Sort: map[string]SortSpec{
			"region":  {Type: SortAsc},
			"product": {Type: SortDesc},
		},
	})
	require.NoError(t, err)
	var got [][2]string
	for _, rec := range res.Data {
		got = append(got, [2]string{rec["region"].String(), rec["product"].String()})
	}
	want := [][2]string{
		{"east", "pens"}, {"east", "paper"},
		{"west", "pens"}, {"west", "paper"},
	}
	require.Equal(t, want, got)
}

func TestSortByValue(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggSum}},
		Sort:        map[string]SortSpec{"region": {Type: SortValueAsc}},
		GrandTotals: TotalsRows,
	})
	require.NoError(t, err)
	// west (70) before east (80), grand total pinned last.
	require.Equal(t, table.String("west"), res.Data[0]["region"])
	require.Equal(t, table.String("east"), res.Data[1]["region"])
	require.Equal(t, table.String(GrandTotalLabel), res.Data[2]["region"])
}

func TestSortLevelFallback(t *testing.T) {
	level := 1
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region", "product"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		Sort:   map[string]SortSpec{"inner": {Type: SortAsc, Level: &level}},
	})
	require.NoError(t, err)
	// The spec names no field, so its level targets the product level.
	// First-seen order would put pens first.
	require.Equal(t, table.String("paper"), res.Data[0]["product"])
	require.Equal(t, table.String("pens"), res.Data[1]["product"])
}

func TestFlatSortWithoutHierarchy(t *testing.T) {
	preserve := false
	res, err := Compute(salesTable(t), Request{
		Rows:   []string{"region", "product"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		Sort: map[string]SortSpec{
			"product": {Type: SortAsc, PreserveHierarchy: &preserve},
		},
	})
	require.NoError(t, err)
	// All paper rows precede all pens rows regardless of region.
	var products []string
	for _, rec := range res.Data {
		products = append(products, rec["product"].String())
	}
	require.Equal(t, []string{"paper", "paper", "pens", "pens"}, products)
}

func TestLimitKeepsGrandTotal(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggSum}},
		GrandTotals: TotalsRows,
		Limit:       1,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, table.String("east"), res.Data[0]["region"])
	require.Equal(t, table.String(GrandTotalLabel), res.Data[1]["region"])
}

func TestFilters(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:    []string{"region"},
		Values:  []ValueSpec{{Field: "sales", Agg: AggSum}},
		Filters: []Filter{{Field: "product", Include: []string{"pens"}}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)
	assert.EqualValues(t, 60, floatOf(t, res.Data[0]["sales"]))
	assert.EqualValues(t, 30, floatOf(t, res.Data[1]["sales"]))

	// An exclude filter over the complement yields the same result, and
	// repeating a filter is idempotent.
	res2, err := Compute(salesTable(t), Request{
		Rows:   []string{"region"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		Filters: []Filter{
			{Field: "product", Exclude: []string{"paper"}},
			{Field: "product", Include: []string{"pens"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, res.Data, res2.Data)
}

func TestFilterUnknownField(t *testing.T) {
	_, err := Compute(salesTable(t), Request{
		Rows:    []string{"region"},
		Values:  []ValueSpec{{Field: "sales", Agg: AggSum}},
		Filters: []Filter{{Field: "nope", Include: []string{"x"}}},
	})
	require.EqualError(t, err, `unknown filter field "nope"`)
}

func TestDropNA(t *testing.T) {
	tbl, err := table.New([]table.Column{
		{Name: "region", Values: []table.Value{table.String("east"), table.Null, table.String("west")}},
		{Name: "sales", Values: ints(10, 20, 30)},
	})
	require.NoError(t, err)
	res, err := Compute(tbl, Request{
		Rows:   []string{"region"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
		DropNA: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)

	// Without dropna the null key groups under the empty label.
	res, err = Compute(tbl, Request{
		Rows:   []string{"region"},
		Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
}

func TestFillValue(t *testing.T) {
	tbl, err := table.New([]table.Column{
		{Name: "region", Values: strs("east", "west")},
		{Name: "product", Values: strs("pens", "paper")},
		{Name: "sales", Values: ints(10, 20)},
	})
	require.NoError(t, err)
	fill := -1.0
	res, err := Compute(tbl, Request{
		Rows:      []string{"region"},
		Columns:   []string{"product"},
		Values:    []ValueSpec{{Field: "sales", Agg: AggSum}},
		FillValue: &fill,
	})
	require.NoError(t, err)
	require.Equal(t, table.Float(-1), res.Data[0]["paper"])
	require.Equal(t, table.Float(-1), res.Data[1]["pens"])

	// Without a fill value missing cells are null.
	res, err = Compute(tbl, Request{
		Rows:    []string{"region"},
		Columns: []string{"product"},
		Values:  []ValueSpec{{Field: "sales", Agg: AggSum}},
	})
	require.NoError(t, err)
	require.True(t, res.Data[0]["paper"].IsNull())
}

func TestSyntheticGrandTotalColumn(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows: []string{"region"},
		Values: []ValueSpec{
			{Field: "sales", Agg: AggSum},
			{Field: "qty", Agg: AggSum},
		},
		GrandTotals: TotalsBoth,
	})
	require.NoError(t, err)
	require.Contains(t, res.Fields, GrandTotalLabel)
	east := res.Data[0]
	assert.EqualValues(t, 88, floatOf(t, east[GrandTotalLabel]))
	gt := res.Data[len(res.Data)-1]
	assert.EqualValues(t, 165, floatOf(t, gt[GrandTotalLabel]))
}

func TestNoSyntheticTotalForSingleValue(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:        []string{"region"},
		Values:      []ValueSpec{{Field: "sales", Agg: AggSum}},
		GrandTotals: TotalsColumns,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"region", "sales"}, res.Fields)
}

func TestDuplicateValueFieldsDisambiguated(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows: []string{"region"},
		Values: []ValueSpec{
			{Field: "sales", Agg: AggSum},
			{Field: "sales", Agg: AggMean},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"region", "sales (sum)", "sales (mean)"}, res.Fields)
}

func TestColumnHierarchyValueLevel(t *testing.T) {
	res, err := Compute(salesTable(t), Request{
		Rows:    []string{"region"},
		Columns: []string{"product"},
		Values: []ValueSpec{
			{Field: "sales", Agg: AggSum},
			{Field: "qty", Agg: AggSum},
		},
	})
	require.NoError(t, err)
	// Leaf names interleave column label and value field.
	require.Equal(t, []string{
		"region",
		"pens | sales", "pens | qty",
		"paper | sales", "paper | qty",
	}, res.Fields)
	var leafFields []string
	for _, n := range res.ColumnHierarchy {
		if n.ValueField != "" {
			leafFields = append(leafFields, n.ValueField)
		}
	}
	require.Equal(t, []string{"sales", "qty", "sales", "qty"}, leafFields)
}

func TestComputeErrors(t *testing.T) {
	tbl := salesTable(t)
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"no values", Request{Rows: []string{"region"}}, "no value fields supplied"},
		{"bad agg", Request{Values: []ValueSpec{{Field: "sales", Agg: "explode"}}},
			`unsupported aggregation "explode" for field "sales"`},
		{"unknown value", Request{Values: []ValueSpec{{Field: "nope", Agg: AggSum}}},
			`unknown value field "nope"`},
		{"unknown row", Request{Rows: []string{"nope"}, Values: []ValueSpec{{Field: "sales", Agg: AggSum}}},
			`unknown row field "nope"`},
		{"unknown column", Request{Columns: []string{"nope"}, Values: []ValueSpec{{Field: "sales", Agg: AggSum}}},
			`unknown column field "nope"`},
		{"bad totals", Request{Values: []ValueSpec{{Field: "sales", Agg: AggSum}}, GrandTotals: "sideways"},
			`unsupported grand_totals mode "sideways"`},
		{"bad sort", Request{Values: []ValueSpec{{Field: "sales", Agg: AggSum}},
			Sort: map[string]SortSpec{"region": {Type: "upward"}}},
			`sort spec for "region": unsupported sort type "upward"`},
		{"negative limit", Request{Values: []ValueSpec{{Field: "sales", Agg: AggSum}}, Limit: -1},
			"limit must not be negative"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Compute(tbl, c.req)
			require.EqualError(t, err, c.want)
		})
	}
}

func TestComputeEmptyDataset(t *testing.T) {
	_, err := Compute(nil, Request{Values: []ValueSpec{{Field: "sales", Agg: AggSum}}})
	require.EqualError(t, err, "dataset is empty")

	_, err = Compute(salesTable(t), Request{
		Values:  []ValueSpec{{Field: "sales", Agg: AggSum}},
		Filters: []Filter{{Field: "region", Include: []string{"north"}}},
	})
	require.EqualError(t, err, "no rows after filtering")
}
