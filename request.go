// Package pivot computes pivot tables over in-memory tabular datasets:
// multi-level row and column grouping, per-field aggregation, grand
// totals computed against raw rows, hierarchy trees for rendering, and
// hierarchy-preserving sorting.
package pivot

import (
	"fmt"
)

// TotalsMode controls whether a synthetic Grand Total row and/or column
// is included in the result.
type TotalsMode string

const (
	TotalsOff     TotalsMode = "off"
	TotalsRows    TotalsMode = "rows"
	TotalsColumns TotalsMode = "columns"
	TotalsBoth    TotalsMode = "both"
)

func (m TotalsMode) IncludesRows() bool {
	return m == TotalsRows || m == TotalsBoth
}

func (m TotalsMode) IncludesColumns() bool {
	return m == TotalsColumns || m == TotalsBoth
}

func (m TotalsMode) Validate() error {
	switch m {
	case "", TotalsOff, TotalsRows, TotalsColumns, TotalsBoth:
		return nil
	}
	return fmt.Errorf("unsupported grand_totals mode %q", string(m))
}

// GrandTotalLabel is the label of synthetic margin rows and columns.
const GrandTotalLabel = "Grand Total"

type SortType string

const (
	SortAsc       SortType = "asc"
	SortDesc      SortType = "desc"
	SortValueAsc  SortType = "value_asc"
	SortValueDesc SortType = "value_desc"
)

func (t SortType) Validate() error {
	switch t {
	case SortAsc, SortDesc, SortValueAsc, SortValueDesc:
		return nil
	}
	return fmt.Errorf("unsupported sort type %q", string(t))
}

func (t SortType) descending() bool {
	return t == SortDesc || t == SortValueDesc
}

func (t SortType) byValue() bool {
	return t == SortValueAsc || t == SortValueDesc
}

// SortSpec orders one hierarchy level.  The target level is found by
// case-insensitive field-name match against the row and column fields;
// Level is a fallback consulted only when the name matches nothing.
// PreserveHierarchy defaults to true; when explicitly false, the flat
// output is additionally re-sorted globally by the spec's field.
type SortSpec struct {
	Type              SortType `json:"type"`
	Level             *int     `json:"level,omitempty"`
	PreserveHierarchy *bool    `json:"preserve_hierarchy,omitempty"`
}

func (s SortSpec) preservesHierarchy() bool {
	return s.PreserveHierarchy == nil || *s.PreserveHierarchy
}

// Filter keeps rows whose stringified field value is in Include (when
// non-empty) and not in Exclude (when non-empty).
type Filter struct {
	Field   string   `json:"field"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ValueSpec names a field to aggregate.  WeightColumn applies only to
// weighted_average.
type ValueSpec struct {
	Field        string  `json:"field"`
	Agg          AggKind `json:"aggregation"`
	WeightColumn string  `json:"weight_column,omitempty"`
}

// Request is a pivot configuration.  Rows and Columns nest
// top-to-bottom in list order.
type Request struct {
	DataSource  string              `json:"data_source"`
	Rows        []string            `json:"rows,omitempty"`
	Columns     []string            `json:"columns,omitempty"`
	Values      []ValueSpec         `json:"values"`
	Filters     []Filter            `json:"filters,omitempty"`
	Sort        map[string]SortSpec `json:"sort,omitempty"`
	GrandTotals TotalsMode          `json:"grand_totals,omitempty"`
	DropNA      bool                `json:"dropna,omitempty"`
	FillValue   *float64            `json:"fill_value,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
}

func (r *Request) Validate() error {
	if len(r.Values) == 0 {
		return fmt.Errorf("no value fields supplied")
	}
	if err := r.GrandTotals.Validate(); err != nil {
		return err
	}
	for field, spec := range r.Sort {
		if err := spec.Type.Validate(); err != nil {
			return fmt.Errorf("sort spec for %q: %w", field, err)
		}
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}
