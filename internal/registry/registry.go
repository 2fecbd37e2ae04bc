// Package registry canonicalizes the loaded definitions into immutable
// lookup tables shared read-only by every later stage: merged transforms,
// the family catalog, and the effective parameter-bucket tables.
package registry

import (
	"fmt"
	"sort"

	"foodgraph/pkg/ontology"
)

// Registry holds the canonical read-only tables. It is built once, before
// any parallel fan-out, and never mutated afterwards.
type Registry struct {
	taxa       map[string]ontology.Taxon
	parts      map[string]ontology.Part
	transforms map[string]ontology.Transform
	families   map[string]ontology.Family
	buckets    map[string][]ontology.Bucket

	taxaOrder []string
}

// Build canonicalizes definitions. Contradictory order/identity values
// across merged transform definitions are conflict violations; they are
// never inferred.
func Build(defs ontology.Definitions) (*Registry, []ontology.Violation) {
	var vs []ontology.Violation
	r := &Registry{
		taxa:       make(map[string]ontology.Taxon, len(defs.Taxa)),
		parts:      make(map[string]ontology.Part, len(defs.Parts)),
		transforms: make(map[string]ontology.Transform),
		families:   make(map[string]ontology.Family, len(defs.Families)),
		buckets:    defs.GlobalBuckets,
	}
	if r.buckets == nil {
		r.buckets = map[string][]ontology.Bucket{}
	}

	for _, t := range defs.Taxa {
		if _, dup := r.taxa[t.ID]; dup {
			vs = append(vs, conflict(ontology.Locator{File: "taxa.yaml", ID: t.ID}, "taxon %s is defined twice", t.ID))
			continue
		}
		r.taxa[t.ID] = t
		r.taxaOrder = append(r.taxaOrder, t.ID)
	}
	sort.Strings(r.taxaOrder)

	for _, p := range defs.Parts {
		if _, dup := r.parts[p.ID]; dup {
			vs = append(vs, conflict(ontology.Locator{File: "parts.yaml", ID: p.ID}, "part %s is defined twice", p.ID))
			continue
		}
		r.parts[p.ID] = p
	}

	vs = append(vs, r.mergeTransforms(defs.Transforms)...)

	for _, f := range defs.Families {
		if _, dup := r.families[f.ID]; dup {
			vs = append(vs, conflict(f.Locator, "family %s is defined twice", f.ID))
			continue
		}
		r.families[f.ID] = f
	}

	return r, vs
}

func conflict(loc ontology.Locator, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategoryConflict,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  loc,
	}
}

// mergeTransforms collapses every partial definition of one transform id:
// parameter sets are unioned, order/identity conflicts require an explicit
// override definition.
func (r *Registry) mergeTransforms(defs []ontology.TransformDef) []ontology.Violation {
	var vs []ontology.Violation
	grouped := make(map[string][]ontology.TransformDef)
	var order []string
	for _, d := range defs {
		if _, seen := grouped[d.ID]; !seen {
			order = append(order, d.ID)
		}
		grouped[d.ID] = append(grouped[d.ID], d)
	}

	for _, id := range order {
		group := grouped[id]
		merged := ontology.Transform{ID: id}
		params := make(map[string]ontology.TransformParam)

		var (
			orderSet, identitySet     bool
			orderOverride, idOverride bool
			orderConflict, idConflict bool
		)
		for _, d := range group {
			if d.Name != "" {
				merged.Name = d.Name
			}
			for _, p := range d.Params {
				existing, seen := params[p.Name]
				if !seen {
					params[p.Name] = p
					continue
				}
				if existing.Kind != p.Kind || existing.Unit != p.Unit {
					vs = append(vs, conflict(d.Locator, "transform %s parameter %s redeclared with different kind or unit", id, p.Name))
					continue
				}
				if existing.IdentityParam != p.IdentityParam {
					if d.Override {
						params[p.Name] = p
					} else {
						vs = append(vs, conflict(d.Locator, "transform %s parameter %s has contradictory identity_param values without an override", id, p.Name))
					}
				}
			}
			if d.Order != nil {
				switch {
				case !orderSet:
					merged.Order, orderSet = *d.Order, true
					orderOverride = d.Override
				case *d.Order != merged.Order:
					// A differing value conflicts unless exactly one of the
					// two definitions carries the override bit.
					if d.Override && !orderOverride {
						merged.Order, orderOverride = *d.Order, true
					} else if d.Override || !orderOverride {
						orderConflict = true
					}
				}
			}
			if d.Identity != nil {
				switch {
				case !identitySet:
					merged.Identity, identitySet = *d.Identity, true
					idOverride = d.Override
				case *d.Identity != merged.Identity:
					if d.Override && !idOverride {
						merged.Identity, idOverride = *d.Identity, true
					} else if d.Override || !idOverride {
						idConflict = true
					}
				}
			}
		}
		loc := group[0].Locator
		if orderConflict {
			vs = append(vs, conflict(loc, "transform %s has contradictory order values and no override", id))
		}
		if idConflict {
			vs = append(vs, conflict(loc, "transform %s has contradictory identity values and no override", id))
		}
		if !orderSet {
			vs = append(vs, ontology.Violation{
				Category: ontology.CategorySchema,
				Severity: ontology.SeverityBlock,
				Message:  fmt.Sprintf("transform %s never declares order", id),
				Locator:  loc,
			})
		}
		if merged.Name == "" {
			merged.Name = id
		}
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			merged.Params = append(merged.Params, params[name])
		}
		r.transforms[id] = merged
	}
	return vs
}

// Taxon returns the taxon by id.
func (r *Registry) Taxon(id string) (ontology.Taxon, bool) {
	t, ok := r.taxa[id]
	return t, ok
}

// Part returns the part by id.
func (r *Registry) Part(id string) (ontology.Part, bool) {
	p, ok := r.parts[id]
	return p, ok
}

// Transform returns the canonical merged transform by id.
func (r *Registry) Transform(id string) (ontology.Transform, bool) {
	t, ok := r.transforms[id]
	return t, ok
}

// Family returns the family by id.
func (r *Registry) Family(id string) (ontology.Family, bool) {
	f, ok := r.families[id]
	return f, ok
}

// TaxonIDs returns every loaded taxon id in sorted order.
func (r *Registry) TaxonIDs() []string {
	return r.taxaOrder
}

// Taxa returns every taxon in id order.
func (r *Registry) Taxa() []ontology.Taxon {
	out := make([]ontology.Taxon, 0, len(r.taxaOrder))
	for _, id := range r.taxaOrder {
		out = append(out, r.taxa[id])
	}
	return out
}

// Parts returns every part sorted by id.
func (r *Registry) Parts() []ontology.Part {
	ids := make([]string, 0, len(r.parts))
	for id := range r.parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ontology.Part, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.parts[id])
	}
	return out
}

// Transforms returns every canonical transform sorted by id.
func (r *Registry) Transforms() []ontology.Transform {
	ids := make([]string, 0, len(r.transforms))
	for id := range r.transforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ontology.Transform, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.transforms[id])
	}
	return out
}

// Families returns every family sorted by id.
func (r *Registry) Families() []ontology.Family {
	ids := make([]string, 0, len(r.families))
	for id := range r.families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ontology.Family, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.families[id])
	}
	return out
}

// Buckets returns the effective bucket table for "transform.param": the
// family-scoped table when present, the global table otherwise.
func (r *Registry) Buckets(family *ontology.Family, key string) []ontology.Bucket {
	if family != nil {
		if b, ok := family.Buckets[key]; ok {
			return b
		}
	}
	return r.buckets[key]
}
