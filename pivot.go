package pivot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sievedata/pivot/table"
)

// Record is one flat output row: a mapping from row-field and leaf
// column names to scalar values.
type Record map[string]table.Value

// Result is a computed pivot table: the flat records, the ordered
// output field names, and the row and column hierarchy trees flattened
// depth-first.
type Result struct {
	Rows            int      `json:"rows"`
	Fields          []string `json:"fields"`
	Data            []Record `json:"data"`
	Hierarchy       []*Node  `json:"hierarchy"`
	ColumnHierarchy []*Node  `json:"column_hierarchy"`
}

// leafCol is one output data column: a (column key, value field) pair,
// a grand-total margin column, or a synthesized row-wise total.
type leafCol struct {
	name        string
	colKey      string
	labels      []string
	agg         int
	memberNames []string
	synthetic   bool
	margin      bool
}

type grouping struct {
	rowOrder  []string
	rowRows   map[string][]int
	rowLabels map[string][]string
	rowVals   map[string][]table.Value
	colOrder  []string
	colRows   map[string][]int
	colLabels map[string][]string
	cellRows  map[string][]int
}

type computation struct {
	tbl       *table.Table
	req       Request
	filtered  []int
	rowFields []string
	rowCols   []int
	colFields []string
	colCols   []int
	aggs      []Aggregation
	// valueNames disambiguate value fields in output column names.
	valueNames []string
	groups     grouping
	leaves     []leafCol
	leafByName map[string]int
	// colLeafName maps a column-hierarchy leaf key to its data column.
	colLeafName map[string]string
	grandRow    Record
}

// Compute runs the full pivot pipeline over tbl: filter, validate,
// group, aggregate, compute raw-scoped margins, build both hierarchy
// trees, sort, and apply the row limit.
func Compute(tbl *table.Table, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if tbl == nil || tbl.NumRows() == 0 {
		return nil, errors.New("dataset is empty")
	}
	c := &computation{
		tbl:         tbl,
		req:         req,
		leafByName:  make(map[string]int),
		colLeafName: make(map[string]string),
	}
	var err error
	if c.rowFields, c.rowCols, err = resolveFields(tbl, req.Rows, "row"); err != nil {
		return nil, err
	}
	if c.colFields, c.colCols, err = resolveFields(tbl, req.Columns, "column"); err != nil {
		return nil, err
	}
	if c.aggs, err = resolveAggregations(tbl, req.Values); err != nil {
		return nil, err
	}
	c.valueNames = valueNames(c.aggs)
	if c.filtered, err = applyFilters(tbl, req.Filters); err != nil {
		return nil, err
	}
	if req.DropNA {
		c.filtered = c.dropNullKeys(c.filtered)
	}
	if len(c.filtered) == 0 {
		return nil, errors.New("no rows after filtering")
	}
	c.buildGroups()
	c.buildLeaves()
	records, recByKey := c.buildRecords()
	rowRoots := c.buildRowHierarchy()
	colRoots := c.buildColumnHierarchy()
	records = c.sortAll(rowRoots, colRoots, records, recByKey)
	leafOrder := c.sortedLeafOrder(colRoots)
	records = c.applyLimit(records)
	result := &Result{
		Rows:            len(records),
		Fields:          append(append([]string{}, c.rowFields...), leafOrder...),
		Data:            records,
		Hierarchy:       flatten(rowRoots),
		ColumnHierarchy: flatten(colRoots),
	}
	return result, nil
}

func resolveFields(tbl *table.Table, names []string, what string) ([]string, []int, error) {
	fields := make([]string, 0, len(names))
	cols := make([]int, 0, len(names))
	for _, name := range names {
		col, ok := tbl.Lookup(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown %s field %q", what, name)
		}
		fields = append(fields, tbl.Columns()[col].Name)
		cols = append(cols, col)
	}
	return fields, cols, nil
}

// valueNames assigns each value spec its output name: the field name,
// disambiguated with the aggregation kind when one field is aggregated
// more than once.
func valueNames(aggs []Aggregation) []string {
	counts := make(map[string]int)
	for _, a := range aggs {
		counts[a.Field]++
	}
	names := make([]string, len(aggs))
	for i, a := range aggs {
		if counts[a.Field] > 1 {
			names[i] = fmt.Sprintf("%s (%s)", a.Field, a.Kind)
		} else {
			names[i] = a.Field
		}
	}
	return names
}

func (c *computation) dropNullKeys(rows []int) []int {
	keyCols := append(append([]int{}, c.rowCols...), c.colCols...)
	out := rows[:0]
outer:
	for _, row := range rows {
		for _, col := range keyCols {
			if c.tbl.At(row, col).IsNull() {
				continue outer
			}
		}
		out = append(out, row)
	}
	return out
}

func (c *computation) rowKeyOf(row int) (string, []string) {
	labels := make([]string, len(c.rowCols))
	for i, col := range c.rowCols {
		labels[i] = c.tbl.At(row, col).String()
	}
	return strings.Join(labels, "\x00"), labels
}

func (c *computation) colKeyOf(row int) string {
	if len(c.colCols) == 0 {
		return ""
	}
	labels := make([]string, len(c.colCols))
	for i, col := range c.colCols {
		labels[i] = c.tbl.At(row, col).String()
	}
	return strings.Join(labels, "\x00")
}

func (c *computation) buildGroups() {
	g := grouping{
		rowRows:   make(map[string][]int),
		rowLabels: make(map[string][]string),
		rowVals:   make(map[string][]table.Value),
		colRows:   make(map[string][]int),
		colLabels: make(map[string][]string),
		cellRows:  make(map[string][]int),
	}
	for _, row := range c.filtered {
		rowKey, rowLabels := c.rowKeyOf(row)
		if _, ok := g.rowRows[rowKey]; !ok {
			g.rowOrder = append(g.rowOrder, rowKey)
			g.rowLabels[rowKey] = rowLabels
			vals := make([]table.Value, len(c.rowCols))
			for i, col := range c.rowCols {
				vals[i] = c.tbl.At(row, col)
			}
			g.rowVals[rowKey] = vals
		}
		g.rowRows[rowKey] = append(g.rowRows[rowKey], row)
		if len(c.colCols) > 0 {
			colKey := c.colKeyOf(row)
			if _, ok := g.colRows[colKey]; !ok {
				g.colOrder = append(g.colOrder, colKey)
				labels := make([]string, len(c.colCols))
				for i, col := range c.colCols {
					labels[i] = c.tbl.At(row, col).String()
				}
				g.colLabels[colKey] = labels
			}
			g.colRows[colKey] = append(g.colRows[colKey], row)
			cell := rowKey + "\x00\x00" + colKey
			g.cellRows[cell] = append(g.cellRows[cell], row)
		}
	}
	if len(c.colCols) == 0 {
		// A single implicit column group spanning every row.
		g.colOrder = []string{""}
		g.colLabels[""] = nil
		g.colRows[""] = c.filtered
	}
	c.groups = g
}

// leafNameFor names the output column for a (column key, value field)
// pair: the column labels joined with " | ", with the value name
// appended when more than one value field exists.
func (c *computation) leafNameFor(colKey string, agg int) string {
	if len(c.colFields) == 0 {
		return c.valueNames[agg]
	}
	name := strings.Join(c.groups.colLabels[colKey], " | ")
	if len(c.aggs) > 1 {
		name += " | " + c.valueNames[agg]
	}
	return name
}

func (c *computation) marginName(agg int) string {
	if len(c.aggs) > 1 {
		return GrandTotalLabel + " | " + c.valueNames[agg]
	}
	return GrandTotalLabel
}

func (c *computation) buildLeaves() {
	for _, colKey := range c.groups.colOrder {
		for i := range c.aggs {
			c.addLeaf(leafCol{
				name:   c.leafNameFor(colKey, i),
				colKey: colKey,
				labels: c.groups.colLabels[colKey],
				agg:    i,
			})
		}
	}
	if !c.req.GrandTotals.IncludesColumns() {
		return
	}
	if len(c.colFields) > 0 {
		// Margin columns: raw row-key scoped aggregates across all
		// column groups.
		for i := range c.aggs {
			c.addLeaf(leafCol{name: c.marginName(i), agg: i, margin: true})
		}
		return
	}
	c.buildSyntheticLeaves()
}

// buildSyntheticLeaves adds row-wise total columns when no column
// fields exist and several value fields share summable aggregations.
// One column per distinct aggregation kind, suffixed when kinds differ.
// Weighted-average fields never receive a synthesized total.
func (c *computation) buildSyntheticLeaves() {
	if len(c.aggs) < 2 {
		return
	}
	var kinds []AggKind
	members := make(map[AggKind][]string)
	for i, a := range c.aggs {
		if !a.Kind.summable() {
			continue
		}
		if _, ok := members[a.Kind]; !ok {
			kinds = append(kinds, a.Kind)
		}
		members[a.Kind] = append(members[a.Kind], c.valueNames[i])
	}
	if len(kinds) == 0 {
		return
	}
	for _, kind := range kinds {
		name := GrandTotalLabel
		if len(kinds) > 1 {
			name = fmt.Sprintf("%s (%s)", GrandTotalLabel, kind)
		}
		c.addLeaf(leafCol{name: name, memberNames: members[kind], synthetic: true})
	}
}

func (c *computation) addLeaf(leaf leafCol) {
	c.leafByName[leaf.name] = len(c.leaves)
	c.leaves = append(c.leaves, leaf)
}

func (c *computation) missingCell() table.Value {
	if c.req.FillValue != nil {
		return table.Float(*c.req.FillValue)
	}
	return table.Null
}

// buildRecords produces one flat record per row-key group in first-seen
// order, plus the grand-total record when requested.  Margin cells are
// aggregated from the raw filtered rows of their scope, never from the
// per-cell aggregates.
func (c *computation) buildRecords() ([]Record, map[string]Record) {
	byKey := make(map[string]Record, len(c.groups.rowOrder))
	records := make([]Record, 0, len(c.groups.rowOrder)+1)
	for _, rowKey := range c.groups.rowOrder {
		rec := make(Record, len(c.rowFields)+len(c.leaves))
		for i, f := range c.rowFields {
			rec[f] = c.groups.rowVals[rowKey][i]
		}
		for _, leaf := range c.leaves {
			switch {
			case leaf.synthetic:
				rec[leaf.name] = sumValues(valuesOf(rec), leaf.memberNames)
			case leaf.margin:
				rec[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, c.groups.rowRows[rowKey])
			default:
				cell := rowKey + "\x00\x00" + leaf.colKey
				rows, ok := c.groups.cellRows[cell]
				if len(c.colCols) == 0 {
					rows, ok = c.groups.rowRows[rowKey], true
				}
				if !ok {
					rec[leaf.name] = c.missingCell()
					continue
				}
				rec[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, rows)
			}
		}
		records = append(records, rec)
		byKey[compositeKey(c.rowFields, c.groups.rowLabels[rowKey])] = rec
	}
	if c.hasGrandTotalRow() {
		c.grandRow = c.buildGrandTotalRecord()
		records = append(records, c.grandRow)
	}
	return records, byKey
}

func (c *computation) hasGrandTotalRow() bool {
	return c.req.GrandTotals.IncludesRows() && len(c.rowFields) > 0
}

// buildGrandTotalRecord aggregates each leaf over its full raw scope:
// the entire filtered dataset for margin and no-column leaves, the
// column group for data leaves.
func (c *computation) buildGrandTotalRecord() Record {
	rec := make(Record, len(c.rowFields)+len(c.leaves))
	rec[c.rowFields[0]] = table.String(GrandTotalLabel)
	for _, f := range c.rowFields[1:] {
		rec[f] = table.Null
	}
	for _, leaf := range c.leaves {
		switch {
		case leaf.synthetic:
			rec[leaf.name] = sumValues(valuesOf(rec), leaf.memberNames)
		case leaf.margin, len(c.colFields) == 0:
			rec[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, c.filtered)
		default:
			rec[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, c.groups.colRows[leaf.colKey])
		}
	}
	return rec
}

func valuesOf(rec Record) map[string]table.Value {
	return map[string]table.Value(rec)
}

// applyLimit truncates non-grand-total records to the requested limit.
// The grand-total record survives truncation regardless of position.
func (c *computation) applyLimit(records []Record) []Record {
	limit := c.req.Limit
	if limit <= 0 {
		return records
	}
	if c.hasGrandTotalRow() {
		body := records[:len(records)-1]
		gt := records[len(records)-1]
		if len(body) > limit {
			body = body[:limit]
		}
		return append(append([]Record{}, body...), gt)
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}
