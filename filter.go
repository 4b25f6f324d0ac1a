package pivot

import (
	"fmt"

	"github.com/sievedata/pivot/table"
)

// applyFilters returns the indices of rows satisfying every filter.
// Filters AND together; within one filter a row survives when its
// stringified cell is in Include (if non-empty) and not in Exclude (if
// non-empty).  Filters are pure predicates over the dataset.
func applyFilters(tbl *table.Table, filters []Filter) ([]int, error) {
	type compiled struct {
		col     int
		include map[string]struct{}
		exclude map[string]struct{}
	}
	comp := make([]compiled, 0, len(filters))
	for _, f := range filters {
		col, ok := tbl.Lookup(f.Field)
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q", f.Field)
		}
		c := compiled{col: col}
		if len(f.Include) > 0 {
			c.include = stringSet(f.Include)
		}
		if len(f.Exclude) > 0 {
			c.exclude = stringSet(f.Exclude)
		}
		comp = append(comp, c)
	}
	nrows := tbl.NumRows()
	rows := make([]int, 0, nrows)
outer:
	for row := 0; row < nrows; row++ {
		for _, c := range comp {
			s := tbl.At(row, c.col).String()
			if c.include != nil {
				if _, ok := c.include[s]; !ok {
					continue outer
				}
			}
			if c.exclude != nil {
				if _, ok := c.exclude[s]; ok {
					continue outer
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}
