package ancestry

import (
	"fmt"

	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

// Sweep runs the post-generation integrity checks over the full node set.
// Findings are collected into one list, never abort-on-first, so a single
// run reports every problem.
func Sweep(reg *registry.Registry, sub *substrate.Substrate, nodes []ontology.TPTNode) []ontology.Violation {
	var vs []ontology.Violation
	for _, node := range nodes {
		if _, ok := reg.Part(node.Part); !ok {
			vs = append(vs, sweepViolation(node, "node %s references unknown part %s", node.ID, node.Part))
		}
		for _, step := range node.Path {
			transform, ok := reg.Transform(step.Transform)
			if !ok {
				vs = append(vs, sweepViolation(node, "node %s path references unknown transform %s", node.ID, step.Transform))
				continue
			}
			for key := range step.Params {
				if _, ok := transform.Param(key); !ok {
					vs = append(vs, sweepViolation(node, "node %s uses parameter %s not in transform %s schema", node.ID, key, transform.ID))
				}
			}
		}
		if !sub.Has(node.Taxon, node.Part) {
			vs = append(vs, sweepViolation(node, "node %s pair (%s, %s) is missing from the substrate edge set", node.ID, node.Taxon, node.Part))
		}
	}
	return vs
}

func sweepViolation(node ontology.TPTNode, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategoryReference,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  ontology.Locator{ID: node.ID},
	}
}
