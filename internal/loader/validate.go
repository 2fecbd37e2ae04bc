package loader

import (
	"fmt"

	"foodgraph/pkg/ontology"
)

// Schema validation for each canonical record shape. Every failure carries
// the file+record locator so authors can fix all inputs in one pass.

func schemaViolation(loc ontology.Locator, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategorySchema,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  loc,
	}
}

func validateTaxon(t ontology.Taxon, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if t.ID == "" {
		vs = append(vs, schemaViolation(loc, "taxon record is missing id"))
	}
	if t.Name == "" {
		vs = append(vs, schemaViolation(loc, "taxon %s is missing display name", t.ID))
	}
	return vs
}

func validatePart(p ontology.Part, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if p.ID == "" {
		vs = append(vs, schemaViolation(loc, "part record is missing id"))
	}
	if p.Name == "" {
		vs = append(vs, schemaViolation(loc, "part %s is missing display name", p.ID))
	}
	switch p.Kind {
	case ontology.PartBiological, ontology.PartDerived:
	default:
		vs = append(vs, schemaViolation(loc, "part %s has unknown kind %q", p.ID, p.Kind))
	}
	if p.Kind == ontology.PartDerived && p.ParentID == "" {
		vs = append(vs, schemaViolation(loc, "derived part %s must declare parent_id", p.ID))
	}
	for _, a := range p.Aliases {
		if a.Name == "" {
			vs = append(vs, schemaViolation(loc, "part %s has alias with empty name", p.ID))
		}
	}
	return vs
}

func validateTransformDef(d ontology.TransformDef, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if d.ID == "" {
		vs = append(vs, schemaViolation(loc, "transform record is missing id"))
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			vs = append(vs, schemaViolation(loc, "transform %s declares a parameter without a name", d.ID))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			vs = append(vs, schemaViolation(loc, "transform %s declares parameter %s twice", d.ID, p.Name))
		}
		seen[p.Name] = struct{}{}
		switch p.Kind {
		case ontology.ParamString, ontology.ParamBool, ontology.ParamEnum:
		case ontology.ParamNumber:
			if p.Unit == "" {
				vs = append(vs, schemaViolation(loc, "transform %s numeric parameter %s must declare a unit", d.ID, p.Name))
			}
		default:
			vs = append(vs, schemaViolation(loc, "transform %s parameter %s has unknown kind %q", d.ID, p.Name, p.Kind))
		}
		if p.Kind == ontology.ParamEnum && len(p.EnumValues) == 0 {
			vs = append(vs, schemaViolation(loc, "transform %s enum parameter %s declares no values", d.ID, p.Name))
		}
	}
	return vs
}

func validateFamily(f ontology.Family, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if f.ID == "" {
		vs = append(vs, schemaViolation(loc, "family record is missing id"))
	}
	if len(f.Skeleton) == 0 {
		vs = append(vs, schemaViolation(loc, "family %s declares an empty identity skeleton", f.ID))
	}
	for i, s := range f.Skeleton {
		if s.Transform == "" {
			vs = append(vs, schemaViolation(loc, "family %s skeleton step %d is missing transform", f.ID, i))
		}
	}
	for key, buckets := range f.Buckets {
		vs = append(vs, validateBuckets(key, buckets, loc)...)
	}
	for i, v := range f.NameVariants {
		if v.Template == "" {
			vs = append(vs, schemaViolation(loc, "family %s name variant %d is missing template", f.ID, i))
		}
		if len(v.When) == 0 {
			vs = append(vs, schemaViolation(loc, "family %s name variant %d has no conditions", f.ID, i))
		}
	}
	return vs
}

func validateBuckets(key string, buckets []ontology.Bucket, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if len(buckets) == 0 {
		vs = append(vs, schemaViolation(loc, "bucket table %s is empty", key))
	}
	for i, b := range buckets {
		if b.Label == "" {
			vs = append(vs, schemaViolation(loc, "bucket table %s entry %d is missing label", key, i))
		}
		if b.Min != nil && b.Max != nil && *b.Min >= *b.Max {
			vs = append(vs, schemaViolation(loc, "bucket table %s entry %s has min >= max", key, b.Label))
		}
	}
	return vs
}

func validateApplicability(r ontology.ApplicabilityRule, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if r.Part == "" {
		vs = append(vs, schemaViolation(loc, "applicability rule is missing part"))
	}
	if len(r.Prefixes) == 0 {
		vs = append(vs, schemaViolation(loc, "applicability rule for %s lists no taxon prefixes", r.Part))
	}
	return vs
}

func validateTaxonOverride(o ontology.TaxonOverride, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if o.Taxon == "" {
		vs = append(vs, schemaViolation(loc, "taxon override is missing taxon"))
	}
	if len(o.AllowParts) == 0 && len(o.DisallowParts) == 0 {
		vs = append(vs, schemaViolation(loc, "taxon override for %s changes nothing", o.Taxon))
	}
	return vs
}

func validatePromotion(p ontology.PromotionRule, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if p.DerivedPart == "" {
		vs = append(vs, schemaViolation(loc, "promotion rule is missing derived_part"))
	}
	if p.FromPart == "" {
		vs = append(vs, schemaViolation(loc, "promotion rule for %s is missing from_part", p.DerivedPart))
	}
	if len(p.ProtoPath) == 0 {
		vs = append(vs, schemaViolation(loc, "promotion rule for %s has an empty proto_path", p.DerivedPart))
	}
	return vs
}

func validateTransformApplicability(t ontology.TransformApplicability, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if t.Transform == "" {
		vs = append(vs, schemaViolation(loc, "transform applicability record is missing transform"))
	}
	if len(t.Parts) == 0 && len(t.Categories) == 0 {
		vs = append(vs, schemaViolation(loc, "transform applicability for %s restricts neither parts nor categories", t.Transform))
	}
	return vs
}

func validateAllowlist(a ontology.FamilyAllowlist, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if a.Family == "" {
		vs = append(vs, schemaViolation(loc, "allowlist record is missing family"))
	}
	if a.TaxonPrefix == "" {
		vs = append(vs, schemaViolation(loc, "allowlist record for %s is missing taxon_prefix", a.Family))
	}
	if a.Part == "" {
		vs = append(vs, schemaViolation(loc, "allowlist record for %s is missing part", a.Family))
	}
	return vs
}

func validateFlagRule(r ontology.FlagRule, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if r.ID == "" {
		vs = append(vs, schemaViolation(loc, "flag rule is missing id"))
	}
	if r.Flag == "" {
		vs = append(vs, schemaViolation(loc, "flag rule %s emits no flag token", r.ID))
	}
	switch r.Category {
	case ontology.FlagSafety, ontology.FlagDietary:
	default:
		vs = append(vs, schemaViolation(loc, "flag rule %s has unknown category %q", r.ID, r.Category))
	}
	vs = append(vs, validateCondition(r.ID, r.Condition, loc)...)
	return vs
}

// validateCondition enforces the closed tagged-variant shape: exactly one
// field of each condition node may be set.
func validateCondition(ruleID string, c ontology.Condition, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	set := 0
	if len(c.AllOf) > 0 {
		set++
	}
	if len(c.AnyOf) > 0 {
		set++
	}
	if len(c.NoneOf) > 0 {
		set++
	}
	if c.TransformPresent != "" {
		set++
	}
	if c.PartPresent != "" {
		set++
	}
	if c.ParamCompare != nil {
		set++
	}
	if set != 1 {
		vs = append(vs, schemaViolation(loc, "flag rule %s condition must set exactly one variant, found %d", ruleID, set))
		return vs
	}
	for _, sub := range c.AllOf {
		vs = append(vs, validateCondition(ruleID, sub, loc)...)
	}
	for _, sub := range c.AnyOf {
		vs = append(vs, validateCondition(ruleID, sub, loc)...)
	}
	for _, sub := range c.NoneOf {
		vs = append(vs, validateCondition(ruleID, sub, loc)...)
	}
	if pc := c.ParamCompare; pc != nil {
		if pc.Transform == "" || pc.Param == "" {
			vs = append(vs, schemaViolation(loc, "flag rule %s param_compare must name a transform and parameter", ruleID))
		}
		switch pc.Op {
		case ontology.OpExists:
			if pc.Value != nil || len(pc.Values) > 0 {
				vs = append(vs, schemaViolation(loc, "flag rule %s exists comparison takes no value", ruleID))
			}
		case ontology.OpEq, ontology.OpNe, ontology.OpGt, ontology.OpGte, ontology.OpLt, ontology.OpLte:
			if pc.Value == nil {
				vs = append(vs, schemaViolation(loc, "flag rule %s %s comparison requires a value", ruleID, pc.Op))
			}
		case ontology.OpIn, ontology.OpNotIn:
			if len(pc.Values) == 0 {
				vs = append(vs, schemaViolation(loc, "flag rule %s %s comparison requires values", ruleID, pc.Op))
			}
		default:
			vs = append(vs, schemaViolation(loc, "flag rule %s has unknown comparison operator %q", ruleID, pc.Op))
		}
	}
	return vs
}

func validateCurated(e ontology.CuratedEntry, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if e.Taxon == "" {
		vs = append(vs, schemaViolation(loc, "curated entry is missing taxon"))
	}
	if e.Part == "" {
		vs = append(vs, schemaViolation(loc, "curated entry for %s is missing part", e.Taxon))
	}
	if e.Family == "" {
		vs = append(vs, schemaViolation(loc, "curated entry for %s/%s is missing family", e.Taxon, e.Part))
	}
	if len(e.Path) == 0 {
		vs = append(vs, schemaViolation(loc, "curated entry for %s/%s has an empty path", e.Taxon, e.Part))
	}
	for i, s := range e.Path {
		if s.Transform == "" {
			vs = append(vs, schemaViolation(loc, "curated entry for %s/%s path step %d is missing transform", e.Taxon, e.Part, i))
		}
	}
	return vs
}

func validateNameOverride(o ontology.NameOverride, loc ontology.Locator) []ontology.Violation {
	var vs []ontology.Violation
	if o.Taxon == "" || o.Part == "" {
		vs = append(vs, schemaViolation(loc, "name override must name both taxon and part"))
	}
	if o.Name == "" {
		vs = append(vs, schemaViolation(loc, "name override for %s/%s is missing name", o.Taxon, o.Part))
	}
	return vs
}
