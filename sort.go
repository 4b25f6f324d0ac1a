package pivot

import (
	"sort"
	"strings"
)

// sortAll applies the sort specs to both hierarchy trees and derives
// the flat record order from the sorted row tree, so children always
// stay contiguous under their parent.  The grand-total record is never
// compared and stays pinned last.
func (c *computation) sortAll(rowRoots, colRoots []*Node, records []Record, recByKey map[string]Record) []Record {
	if len(c.req.Sort) > 0 {
		c.sortTree(rowRoots, c.rowFields)
		c.sortTree(colRoots, c.colFields)
	}
	if len(c.rowFields) > 0 {
		ordered := make([]Record, 0, len(records))
		var walk func(n *Node)
		walk = func(n *Node) {
			if n.Level == len(c.rowFields)-1 {
				if rec, ok := recByKey[n.Key]; ok {
					ordered = append(ordered, rec)
				}
				return
			}
			for _, child := range n.children {
				walk(child)
			}
		}
		for _, root := range rowRoots {
			walk(root)
		}
		if c.grandRow != nil {
			ordered = append(ordered, c.grandRow)
		}
		records = ordered
	}
	return c.flatSort(records)
}

func (c *computation) sortTree(roots []*Node, fields []string) {
	var rec func(nodes []*Node, level int)
	rec = func(nodes []*Node, level int) {
		if level >= len(fields) {
			return
		}
		if spec, ok := c.specForLevel(fields, level); ok {
			sortSiblings(nodes, spec)
		}
		for _, n := range nodes {
			rec(n.children, level+1)
		}
	}
	rec(roots, 0)
}

// specForLevel finds the sort spec for one hierarchy level.  A
// case-insensitive field-name match wins; a spec's explicit level
// number is a fallback consulted only for specs whose field name
// resolves to no row or column field.  Specs matching neither are
// ignored.
func (c *computation) specForLevel(fields []string, level int) (SortSpec, bool) {
	target := fields[level]
	for _, name := range c.sortedSpecNames() {
		if strings.EqualFold(name, target) {
			return c.req.Sort[name], true
		}
	}
	for _, name := range c.sortedSpecNames() {
		if c.isKnownField(name) {
			continue
		}
		if spec := c.req.Sort[name]; spec.Level != nil && *spec.Level == level {
			return spec, true
		}
	}
	return SortSpec{}, false
}

func (c *computation) sortedSpecNames() []string {
	names := make([]string, 0, len(c.req.Sort))
	for name := range c.req.Sort {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *computation) isKnownField(name string) bool {
	for _, f := range c.rowFields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	for _, f := range c.colFields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// sortSiblings orders one sibling slice in place.  asc/desc compare the
// node's own label case-insensitively; value_asc/value_desc compare the
// numeric sum of the node's values.  Nodes with a null label or no
// numeric values sort last regardless of direction.
func sortSiblings(nodes []*Node, spec SortSpec) {
	type sortKey struct {
		s     string
		f     float64
		valid bool
	}
	keys := make([]sortKey, len(nodes))
	for i, n := range nodes {
		if spec.Type.byValue() {
			keys[i].f, keys[i].valid = sumNodeValues(n)
		} else {
			label := n.Labels[len(n.Labels)-1].Value
			keys[i] = sortKey{s: strings.ToLower(label), valid: label != ""}
		}
	}
	idx := make([]int, len(nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.valid != kb.valid {
			return ka.valid
		}
		if !ka.valid {
			return false
		}
		var less bool
		if spec.Type.byValue() {
			if ka.f == kb.f {
				return false
			}
			less = ka.f < kb.f
		} else {
			if ka.s == kb.s {
				return false
			}
			less = ka.s < kb.s
		}
		if spec.Type.descending() {
			return !less
		}
		return less
	})
	sorted := make([]*Node, len(nodes))
	for i, j := range idx {
		sorted[i] = nodes[j]
	}
	copy(nodes, sorted)
}

func sumNodeValues(n *Node) (float64, bool) {
	var sum float64
	var valid bool
	for _, v := range n.Values {
		if f, ok := v.Float(); ok {
			sum += f
			valid = true
		}
	}
	return sum, valid
}

// flatSort re-sorts the flat records globally for specs that opted out
// of hierarchy preservation.  Only row-field specs apply; the
// grand-total record is excluded and re-pinned last.
func (c *computation) flatSort(records []Record) []Record {
	specs := c.flatSpecs()
	if len(specs) == 0 {
		return records
	}
	body := records
	if c.grandRow != nil {
		body = records[:len(records)-1]
	}
	// Apply in reverse so the first spec is the most significant key
	// of the stable multi-key sort.
	for i := len(specs) - 1; i >= 0; i-- {
		field, spec := specs[i].field, specs[i].spec
		sort.SliceStable(body, func(a, b int) bool {
			return c.lessRecord(body[a], body[b], field, spec)
		})
	}
	if c.grandRow != nil {
		return append(body, c.grandRow)
	}
	return body
}

type flatSpec struct {
	field string
	spec  SortSpec
}

func (c *computation) flatSpecs() []flatSpec {
	var out []flatSpec
	for _, name := range c.sortedSpecNames() {
		spec := c.req.Sort[name]
		if spec.preservesHierarchy() {
			continue
		}
		for _, f := range c.rowFields {
			if strings.EqualFold(f, name) {
				out = append(out, flatSpec{field: f, spec: spec})
				break
			}
		}
	}
	return out
}

func (c *computation) lessRecord(a, b Record, field string, spec SortSpec) bool {
	if spec.Type.byValue() {
		fa, oka := c.recordValueSum(a)
		fb, okb := c.recordValueSum(b)
		if oka != okb {
			return oka
		}
		if !oka || fa == fb {
			return false
		}
		if spec.Type.descending() {
			return fa > fb
		}
		return fa < fb
	}
	sa, sb := strings.ToLower(a[field].String()), strings.ToLower(b[field].String())
	if (sa == "") != (sb == "") {
		return sa != ""
	}
	if sa == sb {
		return false
	}
	if spec.Type.descending() {
		return sa > sb
	}
	return sa < sb
}

func (c *computation) recordValueSum(rec Record) (float64, bool) {
	var sum float64
	var valid bool
	for _, leaf := range c.leaves {
		if f, ok := rec[leaf.name].Float(); ok {
			sum += f
			valid = true
		}
	}
	return sum, valid
}

// sortedLeafOrder returns the output data-column names in the order of
// the sorted column hierarchy's leaves, with margin and synthesized
// total columns last.
func (c *computation) sortedLeafOrder(colRoots []*Node) []string {
	var out []string
	seen := make(map[string]struct{})
	var walk func(n *Node)
	walk = func(n *Node) {
		if name, ok := c.colLeafName[n.Key]; ok && len(n.children) == 0 {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	for _, root := range colRoots {
		walk(root)
	}
	for _, leaf := range c.leaves {
		if _, ok := seen[leaf.name]; !ok {
			out = append(out, leaf.name)
		}
	}
	return out
}
