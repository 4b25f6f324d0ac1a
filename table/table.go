// Package table implements the in-memory tabular dataset the pivot
// engine computes over: an ordered list of named columns holding typed
// scalar cells.  Tables are immutable once built; consumers that need a
// subset of rows carry an index slice rather than copying cells.
package table

import (
	"fmt"
	"strings"
)

type Column struct {
	Name   string
	Values []Value
}

type Table struct {
	cols   []Column
	byName map[string]int
}

// New builds a Table from columns.  All columns must have the same
// length and names must be unique under case folding.
func New(cols []Column) (*Table, error) {
	byName := make(map[string]int, len(cols))
	nrows := -1
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		lower := strings.ToLower(c.Name)
		if _, ok := byName[lower]; ok {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		byName[lower] = i
		if nrows == -1 {
			nrows = len(c.Values)
		} else if len(c.Values) != nrows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, len(c.Values), nrows)
		}
	}
	return &Table{cols: cols, byName: byName}, nil
}

func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

func (t *Table) NumColumns() int { return len(t.cols) }

func (t *Table) Columns() []Column { return t.cols }

// Lookup resolves a column by name, matching case-insensitively, and
// returns its index.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	return i, ok
}

// Resolve returns the canonical column name for name, matching
// case-insensitively.
func (t *Table) Resolve(name string) (string, bool) {
	i, ok := t.Lookup(name)
	if !ok {
		return "", false
	}
	return t.cols[i].Name, true
}

func (t *Table) At(row, col int) Value {
	return t.cols[col].Values[row]
}

// ColumnValues returns the cells of the named column.
func (t *Table) ColumnValues(name string) ([]Value, bool) {
	i, ok := t.Lookup(name)
	if !ok {
		return nil, false
	}
	return t.cols[i].Values, true
}
