// Package generate merges curated seed entries and family-templated
// expansions into draft derived-food records, enforcing the
// transform-applicability table per substrate.
package generate

import (
	"fmt"
	"sort"

	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

// Draft is a derived-food record before identity canonicalization.
type Draft struct {
	Taxon      string
	Part       string
	Family     string
	Path       []ontology.Step
	Name       string
	Synonyms   []string
	Provenance ontology.Provenance
	Locator    ontology.Locator
}

// Result carries the drafts plus rejection accounting for the configurable
// abort threshold.
type Result struct {
	Drafts   []Draft
	Rejected int
	Total    int
}

// Generator builds drafts over the read-only registry and substrate.
type Generator struct {
	reg *registry.Registry
	sub *substrate.Substrate
	ta  []ontology.TransformApplicability
}

// New constructs a generator.
func New(reg *registry.Registry, sub *substrate.Substrate, ta []ontology.TransformApplicability) *Generator {
	return &Generator{reg: reg, sub: sub, ta: ta}
}

// Generate merges the curated and templated streams. Applicability
// violations are per-draft: the draft is excluded and logged, never fatal
// here. The compiler aborts only past the configured rejection threshold.
func (g *Generator) Generate(curated []ontology.CuratedEntry, allowlists []ontology.FamilyAllowlist) (Result, []ontology.Violation) {
	var (
		res Result
		vs  []ontology.Violation
	)

	for _, entry := range curated {
		draft, ok := g.curatedDraft(entry, &vs)
		if !ok {
			continue
		}
		res.Total++
		if !g.admit(&draft, &vs, &res) {
			continue
		}
		res.Drafts = append(res.Drafts, draft)
	}

	for _, allow := range allowlists {
		drafts := g.expandAllowlist(allow, &vs)
		for _, draft := range drafts {
			res.Total++
			if !g.admit(&draft, &vs, &res) {
				continue
			}
			res.Drafts = append(res.Drafts, draft)
		}
	}

	sort.SliceStable(res.Drafts, func(i, j int) bool {
		a, b := res.Drafts[i], res.Drafts[j]
		if a.Taxon != b.Taxon {
			return a.Taxon < b.Taxon
		}
		if a.Part != b.Part {
			return a.Part < b.Part
		}
		return a.Family < b.Family
	})
	return res, vs
}

// curatedDraft validates one curated entry against the registries and the
// substrate graph. Reference failures are fatal for the run.
func (g *Generator) curatedDraft(entry ontology.CuratedEntry, vs *[]ontology.Violation) (Draft, bool) {
	ok := true
	if _, found := g.reg.Taxon(entry.Taxon); !found {
		*vs = append(*vs, reference(entry.Locator, "curated entry references unknown taxon %s", entry.Taxon))
		ok = false
	}
	if _, found := g.reg.Part(entry.Part); !found {
		*vs = append(*vs, reference(entry.Locator, "curated entry references unknown part %s", entry.Part))
		ok = false
	}
	if _, found := g.reg.Family(entry.Family); !found {
		*vs = append(*vs, reference(entry.Locator, "curated entry references unknown family %s", entry.Family))
		ok = false
	}
	for _, step := range entry.Path {
		if _, found := g.reg.Transform(step.Transform); !found {
			*vs = append(*vs, reference(entry.Locator, "curated entry path references unknown transform %s", step.Transform))
			ok = false
		}
	}
	if ok && !g.sub.Has(entry.Taxon, entry.Part) {
		*vs = append(*vs, reference(entry.Locator, "curated entry (%s, %s) is not a valid substrate", entry.Taxon, entry.Part))
		ok = false
	}
	if !ok {
		return Draft{}, false
	}
	return Draft{
		Taxon:      entry.Taxon,
		Part:       entry.Part,
		Family:     entry.Family,
		Path:       entry.Path,
		Name:       entry.Name,
		Synonyms:   entry.Synonyms,
		Provenance: ontology.ProvenanceCurated,
		Locator:    entry.Locator,
	}, true
}

// expandAllowlist instantiates the family's minimal identity skeleton once
// for every matching taxon that carries the part. No cross-product
// parameter explosion happens here.
func (g *Generator) expandAllowlist(allow ontology.FamilyAllowlist, vs *[]ontology.Violation) []Draft {
	family, found := g.reg.Family(allow.Family)
	if !found {
		*vs = append(*vs, reference(allow.Locator, "allowlist references unknown family %s", allow.Family))
		return nil
	}
	if _, found := g.reg.Part(allow.Part); !found {
		*vs = append(*vs, reference(allow.Locator, "allowlist references unknown part %s", allow.Part))
		return nil
	}
	matched := false
	var drafts []Draft
	for _, taxon := range g.reg.TaxonIDs() {
		if !substrate.MatchTaxon(allow.TaxonPrefix, taxon) {
			continue
		}
		matched = true
		if !g.sub.Has(taxon, allow.Part) {
			continue
		}
		drafts = append(drafts, Draft{
			Taxon:      taxon,
			Part:       allow.Part,
			Family:     family.ID,
			Path:       family.Skeleton,
			Provenance: ontology.ProvenanceGenerated,
			Locator:    allow.Locator,
		})
	}
	if !matched {
		*vs = append(*vs, reference(allow.Locator, "allowlist prefix %q matches no loaded taxon", allow.TaxonPrefix))
	}
	return drafts
}

// admit checks every step of the draft against the transform-applicability
// table. A failing draft is excluded and logged as an applicability
// violation (warn severity: per-draft, not per-run).
func (g *Generator) admit(draft *Draft, vs *[]ontology.Violation, res *Result) bool {
	for _, step := range draft.Path {
		if g.applicable(step.Transform, draft.Taxon, draft.Part) {
			continue
		}
		*vs = append(*vs, ontology.Violation{
			Category: ontology.CategoryApplicability,
			Severity: ontology.SeverityWarn,
			Message:  fmt.Sprintf("draft (%s, %s) uses transform %s which is not applicable to that substrate; draft excluded", draft.Taxon, draft.Part, step.Transform),
			Locator:  draft.Locator,
		})
		res.Rejected++
		return false
	}
	return true
}

// applicable implements the transform-applicability table semantics: a
// transform with no records is universally applicable; otherwise at least
// one record must cover the part (by id or category) and, when the record
// scopes taxa, the taxon.
func (g *Generator) applicable(transform, taxon, part string) bool {
	pp, _ := g.reg.Part(part)
	restricted := false
	for _, rec := range g.ta {
		if rec.Transform != transform {
			continue
		}
		restricted = true
		if !coversPart(rec, part, pp.Category) {
			continue
		}
		if len(rec.TaxonPrefixes) == 0 {
			return true
		}
		for _, prefix := range rec.TaxonPrefixes {
			if substrate.MatchTaxon(prefix, taxon) {
				return true
			}
		}
	}
	return !restricted
}

func coversPart(rec ontology.TransformApplicability, partID, category string) bool {
	for _, p := range rec.Parts {
		if p == partID {
			return true
		}
	}
	for _, c := range rec.Categories {
		if category != "" && c == category {
			return true
		}
	}
	return false
}

func reference(loc ontology.Locator, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategoryReference,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  loc,
	}
}
