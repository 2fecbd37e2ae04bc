// Package flagrules evaluates declarative guarded flag rules over the full
// transform path of each TPT node. Conditions form a closed tagged-variant
// type with exhaustive, pure evaluation.
package flagrules

import (
	"sort"

	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

// Evaluator applies a validated rule set to nodes. It is pure: flags are a
// set union across rules and evaluation order never matters.
type Evaluator struct {
	reg   *registry.Registry
	sub   *substrate.Substrate
	rules []ontology.FlagRule
}

// New constructs an evaluator for the canonical rule set.
func New(reg *registry.Registry, sub *substrate.Substrate, rules []ontology.FlagRule) *Evaluator {
	return &Evaluator{reg: reg, sub: sub, rules: rules}
}

// Evaluate returns the sorted union of flag tokens emitted for the node.
func (e *Evaluator) Evaluate(node ontology.TPTNode) []string {
	set := map[string]struct{}{}
	for _, rule := range e.rules {
		if e.holds(rule.Condition, node) {
			set[rule.Flag] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	flags := make([]string, 0, len(set))
	for f := range set {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// holds evaluates one condition node exhaustively.
func (e *Evaluator) holds(c ontology.Condition, node ontology.TPTNode) bool {
	switch {
	case len(c.AllOf) > 0:
		for _, sub := range c.AllOf {
			if !e.holds(sub, node) {
				return false
			}
		}
		return true
	case len(c.AnyOf) > 0:
		for _, sub := range c.AnyOf {
			if e.holds(sub, node) {
				return true
			}
		}
		return false
	case len(c.NoneOf) > 0:
		for _, sub := range c.NoneOf {
			if e.holds(sub, node) {
				return false
			}
		}
		return true
	case c.TransformPresent != "":
		for _, step := range node.Path {
			if step.Transform == c.TransformPresent {
				return true
			}
		}
		return false
	case c.PartPresent != "":
		for _, part := range e.sub.PartClosure(node.Taxon, node.Part) {
			if part == c.PartPresent {
				return true
			}
		}
		return false
	case c.ParamCompare != nil:
		return e.compare(*c.ParamCompare, node)
	default:
		// Unreachable for validated rules; an empty condition never fires.
		return false
	}
}

// compare holds when any occurrence of the named transform in the full path
// satisfies the operator, never just the last one.
func (e *Evaluator) compare(pc ontology.ParamCondition, node ontology.TPTNode) bool {
	for _, step := range node.Path {
		if step.Transform != pc.Transform {
			continue
		}
		value, present := step.Params[pc.Param]
		if pc.Op == ontology.OpExists {
			if present {
				return true
			}
			continue
		}
		if !present {
			continue
		}
		if satisfies(pc.Op, value, pc.Value, pc.Values) {
			return true
		}
	}
	return false
}

func satisfies(op ontology.CompareOp, got, want any, wants []any) bool {
	switch op {
	case ontology.OpEq:
		return equalValue(got, want)
	case ontology.OpNe:
		return !equalValue(got, want)
	case ontology.OpGt, ontology.OpGte, ontology.OpLt, ontology.OpLte:
		g, gok := got.(float64)
		w, wok := want.(float64)
		if !gok || !wok {
			return false
		}
		switch op {
		case ontology.OpGt:
			return g > w
		case ontology.OpGte:
			return g >= w
		case ontology.OpLt:
			return g < w
		default:
			return g <= w
		}
	case ontology.OpIn:
		for _, w := range wants {
			if equalValue(got, w) {
				return true
			}
		}
		return false
	case ontology.OpNotIn:
		for _, w := range wants {
			if equalValue(got, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalValue(a, b any) bool {
	if af, ok := a.(float64); ok {
		bf, ok := b.(float64)
		return ok && af == bf
	}
	return a == b
}
