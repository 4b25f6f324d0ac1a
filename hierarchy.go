package pivot

import (
	"strings"

	"github.com/sievedata/pivot/table"
)

type Label struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Node is one entry of a hierarchy tree.  Key is the composite
// "field:value|..." path from the root to this node and ParentKey the
// same path one level shallower (empty at the root).  Order is the
// node's position in a depth-first traversal after sorting.
type Node struct {
	Key        string                 `json:"key"`
	ParentKey  string                 `json:"parent_key,omitempty"`
	Level      int                    `json:"level"`
	Order      int                    `json:"order"`
	Labels     []Label                `json:"labels"`
	Values     map[string]table.Value `json:"values,omitempty"`
	ValueField string                 `json:"value_field,omitempty"`

	children []*Node
}

const keySep = "|"

func compositeKey(fields, labels []string) string {
	parts := make([]string, len(fields))
	for i := range fields {
		parts[i] = fields[i] + ":" + labels[i]
	}
	return strings.Join(parts, keySep)
}

// flatten lists a forest depth-first, parent immediately followed by
// its subtree, reassigning Order to the final position.
func flatten(roots []*Node) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		n.Order = len(out)
		out = append(out, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// buildRowHierarchy emits one node per distinct rows[0..d] combination
// for every depth d, in first-seen order.  Node values are computed
// from the raw filtered rows scoped to the node (per leaf column when
// column fields exist), never by re-aggregating aggregated cells.
func (c *computation) buildRowHierarchy() []*Node {
	var roots []*Node
	if len(c.rowFields) == 0 {
		return nil
	}
	byKey := make(map[string]*Node)
	nodeRows := make(map[string][]int)
	nodeCellRows := make(map[string][]int) // node key + "\x00" + col key
	for _, row := range c.filtered {
		labels := make([]string, 0, len(c.rowFields))
		colKey := c.colKeyOf(row)
		for d, col := range c.rowCols {
			labels = append(labels, c.tbl.At(row, col).String())
			key := compositeKey(c.rowFields[:d+1], labels)
			n, ok := byKey[key]
			if !ok {
				n = &Node{
					Key:    key,
					Level:  d,
					Labels: pathLabels(c.rowFields[:d+1], labels),
				}
				if d > 0 {
					parent := byKey[compositeKey(c.rowFields[:d], labels[:d])]
					n.ParentKey = parent.Key
					parent.children = append(parent.children, n)
				} else {
					roots = append(roots, n)
				}
				byKey[key] = n
			}
			nodeRows[key] = append(nodeRows[key], row)
			if len(c.colFields) > 0 {
				ck := key + "\x00" + colKey
				nodeCellRows[ck] = append(nodeCellRows[ck], row)
			}
		}
	}
	for key, n := range byKey {
		n.Values = c.nodeValues(nodeRows[key], func(colKey string) ([]int, bool) {
			rows, ok := nodeCellRows[key+"\x00"+colKey]
			return rows, ok
		})
	}
	return roots
}

// nodeValues computes one value per leaf column for a node scoped to
// rows.  cellRows resolves the raw rows matching a leaf's column key
// within the node; margin and synthesized leaves fall back to the
// node's own row scope.
func (c *computation) nodeValues(rows []int, cellRows func(colKey string) ([]int, bool)) map[string]table.Value {
	values := make(map[string]table.Value, len(c.leaves))
	for _, leaf := range c.leaves {
		switch {
		case leaf.synthetic:
			values[leaf.name] = sumValues(values, leaf.memberNames)
		case leaf.margin:
			values[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, rows)
		case len(c.colFields) == 0:
			values[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, rows)
		default:
			sub, ok := cellRows(leaf.colKey)
			if !ok {
				values[leaf.name] = c.missingCell()
				continue
			}
			values[leaf.name] = c.aggs[leaf.agg].Reduce(c.tbl, sub)
		}
	}
	return values
}

// buildColumnHierarchy mirrors the column-field nesting and adds an
// innermost value-field level when more than one value field exists or
// there are no column fields at all.  Leaves carry the resolved value
// field backing them.
func (c *computation) buildColumnHierarchy() []*Node {
	var roots []*Node
	byKey := make(map[string]*Node)
	valueLevel := len(c.aggs) > 1 || len(c.colFields) == 0
	for _, colKey := range c.groups.colOrder {
		labels := c.groups.colLabels[colKey]
		var parent *Node
		for d := range c.colFields {
			key := compositeKey(c.colFields[:d+1], labels[:d+1])
			n, ok := byKey[key]
			if !ok {
				n = &Node{
					Key:    key,
					Level:  d,
					Labels: pathLabels(c.colFields[:d+1], labels[:d+1]),
				}
				if parent != nil {
					n.ParentKey = parent.Key
					parent.children = append(parent.children, n)
				} else {
					roots = append(roots, n)
				}
				byKey[key] = n
			}
			parent = n
		}
		if !valueLevel {
			// The deepest column node is itself the leaf backed by
			// the single value field.
			parent.ValueField = c.aggs[0].Field
			c.colLeafName[parent.Key] = c.leafNameFor(colKey, 0)
			continue
		}
		for i, name := range c.valueNames {
			n := &Node{
				Level:      len(c.colFields),
				Labels:     append(pathLabels(c.colFields, labels), Label{Field: "values", Value: name}),
				ValueField: c.aggs[i].Field,
			}
			if parent != nil {
				n.Key = parent.Key + keySep + "values:" + name
				n.ParentKey = parent.Key
				parent.children = append(parent.children, n)
			} else {
				n.Key = "values:" + name
				roots = append(roots, n)
			}
			byKey[n.Key] = n
			c.colLeafName[n.Key] = c.leafNameFor(colKey, i)
		}
	}
	return roots
}

func pathLabels(fields, labels []string) []Label {
	out := make([]Label, len(fields))
	for i := range fields {
		out[i] = Label{Field: fields[i], Value: labels[i]}
	}
	return out
}

// sumValues adds already-computed leaf values row-wise for a
// synthesized grand-total column.
func sumValues(values map[string]table.Value, names []string) table.Value {
	var sum float64
	var valid bool
	for _, name := range names {
		if f, ok := values[name].Float(); ok {
			sum += f
			valid = true
		}
	}
	if !valid {
		return table.Null
	}
	return table.Float(sum)
}
