// Package ancestry computes transitive closures for the taxon and part
// hierarchies and runs the post-generation integrity sweeps. Cycle detection
// precedes closure computation; acyclicity is never assumed.
package ancestry

import (
	"fmt"
	"sort"

	"foodgraph/pkg/ontology"
)

// node is the minimal hierarchy view shared by taxa and parts.
type node struct {
	id     string
	parent string
}

// Closure builds (descendant, ancestor, depth) rows for one hierarchy.
// A parent chain revisiting an already-visited id is a structural violation
// naming the offending id; an unknown parent is a reference violation.
func closure(kind string, nodes []node) ([]ontology.ClosureRow, []ontology.Violation) {
	var vs []ontology.Violation
	index := make(map[string]node, len(nodes))
	for _, n := range nodes {
		index[n.id] = n
	}

	var rows []ontology.ClosureRow
	for _, n := range nodes {
		visited := map[string]struct{}{}
		depth := 0
		current := n.id
		for current != "" {
			if _, seen := visited[current]; seen {
				vs = append(vs, ontology.Violation{
					Category: ontology.CategoryStructural,
					Severity: ontology.SeverityBlock,
					Message:  fmt.Sprintf("%s hierarchy contains a cycle through %s", kind, current),
					Locator:  ontology.Locator{ID: current},
				})
				break
			}
			visited[current] = struct{}{}
			rows = append(rows, ontology.ClosureRow{Descendant: n.id, Ancestor: current, Depth: depth})
			parent := index[current].parent
			if parent != "" {
				if _, ok := index[parent]; !ok {
					vs = append(vs, ontology.Violation{
						Category: ontology.CategoryReference,
						Severity: ontology.SeverityBlock,
						Message:  fmt.Sprintf("%s %s references unknown parent %s", kind, current, parent),
						Locator:  ontology.Locator{ID: current},
					})
					break
				}
			}
			current = parent
			depth++
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Descendant != rows[j].Descendant {
			return rows[i].Descendant < rows[j].Descendant
		}
		return rows[i].Depth < rows[j].Depth
	})
	return rows, vs
}

// TaxonClosure computes the taxon ancestry closure.
func TaxonClosure(taxa []ontology.Taxon) ([]ontology.ClosureRow, []ontology.Violation) {
	nodes := make([]node, len(taxa))
	for i, t := range taxa {
		nodes[i] = node{id: t.ID, parent: t.ParentID}
	}
	return closure("taxon", nodes)
}

// PartClosure computes the part ancestry closure and checks that every
// derived part's ancestor chain terminates in a biological part.
func PartClosure(parts []ontology.Part) ([]ontology.ClosureRow, []ontology.Violation) {
	nodes := make([]node, len(parts))
	kinds := make(map[string]ontology.PartKind, len(parts))
	for i, p := range parts {
		nodes[i] = node{id: p.ID, parent: p.ParentID}
		kinds[p.ID] = p.Kind
	}
	rows, vs := closure("part", nodes)

	// Roots of derived chains must be biological.
	top := map[string]string{}
	for _, row := range rows {
		top[row.Descendant] = row.Ancestor // rows are depth-ordered per descendant
	}
	for _, p := range parts {
		if p.Kind != ontology.PartDerived {
			continue
		}
		root, ok := top[p.ID]
		if ok && kinds[root] == ontology.PartBiological {
			continue
		}
		vs = append(vs, ontology.Violation{
			Category: ontology.CategoryStructural,
			Severity: ontology.SeverityBlock,
			Message:  fmt.Sprintf("derived part %s does not terminate in a biological part", p.ID),
			Locator:  ontology.Locator{ID: p.ID},
		})
	}
	return rows, vs
}
