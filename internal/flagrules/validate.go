package flagrules

import (
	"fmt"

	"foodgraph/internal/registry"
	"foodgraph/pkg/ontology"
)

// ValidateRules cross-references every flag rule against the canonical
// registries at load time: each transform id, part id, and parameter key
// must resolve, or the run fails naming the reference.
func ValidateRules(reg *registry.Registry, rules []ontology.FlagRule) []ontology.Violation {
	var vs []ontology.Violation
	for _, rule := range rules {
		vs = append(vs, validateCondition(reg, rule, rule.Condition)...)
	}
	return vs
}

func validateCondition(reg *registry.Registry, rule ontology.FlagRule, c ontology.Condition) []ontology.Violation {
	var vs []ontology.Violation
	for _, sub := range c.AllOf {
		vs = append(vs, validateCondition(reg, rule, sub)...)
	}
	for _, sub := range c.AnyOf {
		vs = append(vs, validateCondition(reg, rule, sub)...)
	}
	for _, sub := range c.NoneOf {
		vs = append(vs, validateCondition(reg, rule, sub)...)
	}
	if c.TransformPresent != "" {
		if _, ok := reg.Transform(c.TransformPresent); !ok {
			vs = append(vs, ruleReference(rule, "flag rule %s references unknown transform %s", rule.ID, c.TransformPresent))
		}
	}
	if c.PartPresent != "" {
		if _, ok := reg.Part(c.PartPresent); !ok {
			vs = append(vs, ruleReference(rule, "flag rule %s references unknown part %s", rule.ID, c.PartPresent))
		}
	}
	if pc := c.ParamCompare; pc != nil {
		transform, ok := reg.Transform(pc.Transform)
		if !ok {
			vs = append(vs, ruleReference(rule, "flag rule %s compares parameter of unknown transform %s", rule.ID, pc.Transform))
		} else if _, ok := transform.Param(pc.Param); !ok {
			vs = append(vs, ruleReference(rule, "flag rule %s references unknown parameter %s.%s", rule.ID, pc.Transform, pc.Param))
		}
	}
	return vs
}

func ruleReference(rule ontology.FlagRule, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategoryReference,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  rule.Locator,
	}
}
