// Package substrate expands applicability rules into the concrete
// (taxon, part) edge set, applies per-taxon overrides, and derives promoted
// parts with their proto-paths and byproducts.
package substrate

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"foodgraph/internal/registry"
	"foodgraph/pkg/ontology"
)

// Substrate is the expanded taxon→part edge set. Read-only after Build.
type Substrate struct {
	edges   []ontology.SubstrateEdge
	byTaxon map[string]map[string]int
}

// Edges returns every edge sorted by (taxon, part).
func (s *Substrate) Edges() []ontology.SubstrateEdge {
	return s.edges
}

// Has reports whether the taxon carries the part.
func (s *Substrate) Has(taxon, part string) bool {
	_, ok := s.byTaxon[taxon][part]
	return ok
}

// Edge returns the edge for (taxon, part).
func (s *Substrate) Edge(taxon, part string) (ontology.SubstrateEdge, bool) {
	i, ok := s.byTaxon[taxon][part]
	if !ok {
		return ontology.SubstrateEdge{}, false
	}
	return s.edges[i], true
}

// PartsOf returns the sorted part ids carried by the taxon.
func (s *Substrate) PartsOf(taxon string) []string {
	parts := make([]string, 0, len(s.byTaxon[taxon]))
	for p := range s.byTaxon[taxon] {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return parts
}

// PartClosure returns the part plus every part reachable by walking the
// taxon's promotion edges back to their source parts. Used by the guarded
// flag evaluator for part-present conditions.
func (s *Substrate) PartClosure(taxon, part string) []string {
	closure := map[string]struct{}{}
	var walk func(p string)
	walk = func(p string) {
		if _, seen := closure[p]; seen {
			return
		}
		closure[p] = struct{}{}
		if edge, ok := s.Edge(taxon, p); ok && edge.FromPart != "" {
			walk(edge.FromPart)
		}
	}
	walk(part)
	out := make([]string, 0, len(closure))
	for p := range closure {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MatchTaxon reports whether the normalized prefix (or glob pattern)
// matches the taxon id. Plain prefixes match whole lineage segments only.
func MatchTaxon(pattern, taxonID string) bool {
	if strings.ContainsAny(pattern, "*?[{") {
		ok, err := doublestar.Match(slashify(pattern), slashify(taxonID))
		return err == nil && ok
	}
	return taxonID == pattern || strings.HasPrefix(taxonID, pattern+":")
}

func slashify(id string) string { return strings.ReplaceAll(id, ":", "/") }

// literalPrefixLen returns the length of the leading literal portion of a
// pattern, used for most-specific-rule conflict resolution.
func literalPrefixLen(pattern string) int {
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		return i
	}
	return len(pattern)
}

// Builder expands applicability rules against the loaded taxa.
type Builder struct {
	reg     *registry.Registry
	workers int
}

// NewBuilder constructs a builder over the canonical registry. workers <= 0
// selects GOMAXPROCS.
func NewBuilder(reg *registry.Registry, workers int) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{reg: reg, workers: workers}
}

// ruleMatch is one rule's verdict for one taxon.
type ruleMatch struct {
	rule     int
	taxon    string
	specific int
	excluded bool
}

// ruleResult is the full expansion of one rule.
type ruleResult struct {
	matches    []ruleMatch
	violations []ontology.Violation
}

// Build expands every rule, resolves conflicts (longest literal prefix
// wins), applies overrides and promotions, and returns the edge set sorted
// by (taxon, part). A rule referencing an unknown part or a prefix matching
// no taxon is a reference violation, never silently dropped.
func (b *Builder) Build(defs ontology.Definitions) (*Substrate, []ontology.Violation) {
	var vs []ontology.Violation
	results := b.expandRules(defs.Applicability)
	for _, res := range results {
		vs = append(vs, res.violations...)
	}

	// Per (taxon, part), keep the most specific matching rule's verdict.
	type claim struct {
		rule     int
		specific int
		excluded bool
	}
	claims := map[string]map[string]claim{}
	for _, res := range results {
		for _, m := range res.matches {
			part := defs.Applicability[m.rule].Part
			byPart, ok := claims[m.taxon]
			if !ok {
				byPart = map[string]claim{}
				claims[m.taxon] = byPart
			}
			prev, ok := byPart[part]
			if !ok || m.specific > prev.specific || (m.specific == prev.specific && m.rule < prev.rule) {
				byPart[part] = claim{rule: m.rule, specific: m.specific, excluded: m.excluded}
			}
		}
	}

	sub := &Substrate{byTaxon: map[string]map[string]int{}}
	add := func(edge ontology.SubstrateEdge) {
		byPart, ok := sub.byTaxon[edge.Taxon]
		if !ok {
			byPart = map[string]int{}
			sub.byTaxon[edge.Taxon] = byPart
		}
		if _, exists := byPart[edge.Part]; exists {
			return
		}
		byPart[edge.Part] = len(sub.edges)
		sub.edges = append(sub.edges, edge)
	}
	remove := func(taxon, part string) {
		byPart, ok := sub.byTaxon[taxon]
		if !ok {
			return
		}
		i, exists := byPart[part]
		if !exists {
			return
		}
		delete(byPart, part)
		sub.edges[i].Taxon = "" // compacted below
	}

	for taxon, byPart := range claims {
		for part, c := range byPart {
			if c.excluded {
				continue
			}
			add(ontology.SubstrateEdge{
				Taxon:  taxon,
				Part:   part,
				Source: defs.Applicability[c.rule].Locator.String(),
			})
		}
	}

	// Per-taxon overrides always win over rule-derived decisions.
	for _, o := range defs.TaxonOverrides {
		if _, ok := b.reg.Taxon(o.Taxon); !ok {
			vs = append(vs, reference(o.Locator, "taxon override references unknown taxon %s", o.Taxon))
			continue
		}
		allowed := map[string]struct{}{}
		for _, part := range o.AllowParts {
			if _, ok := b.reg.Part(part); !ok {
				vs = append(vs, reference(o.Locator, "taxon override for %s allows unknown part %s", o.Taxon, part))
				continue
			}
			allowed[part] = struct{}{}
			add(ontology.SubstrateEdge{Taxon: o.Taxon, Part: part, Source: "override:" + o.Locator.String()})
		}
		for _, part := range o.DisallowParts {
			if _, ok := b.reg.Part(part); !ok {
				vs = append(vs, reference(o.Locator, "taxon override for %s disallows unknown part %s", o.Taxon, part))
				continue
			}
			if _, both := allowed[part]; both {
				vs = append(vs, ontology.Violation{
					Category: ontology.CategoryConflict,
					Severity: ontology.SeverityBlock,
					Message:  fmt.Sprintf("taxon override for %s both allows and disallows part %s", o.Taxon, part),
					Locator:  o.Locator,
				})
				continue
			}
			remove(o.Taxon, part)
		}
	}

	// Promotion rules add the derived part to every taxon carrying the
	// originating part. Rules are applied in authored order so chained
	// promotions work when authored producer-first.
	for _, p := range defs.Promotions {
		if _, ok := b.reg.Part(p.DerivedPart); !ok {
			vs = append(vs, reference(p.Locator, "promotion rule derives unknown part %s", p.DerivedPart))
			continue
		}
		if _, ok := b.reg.Part(p.FromPart); !ok {
			vs = append(vs, reference(p.Locator, "promotion rule for %s starts from unknown part %s", p.DerivedPart, p.FromPart))
			continue
		}
		ok := true
		for _, tid := range p.ProtoPath {
			if _, found := b.reg.Transform(tid); !found {
				vs = append(vs, reference(p.Locator, "promotion rule for %s references unknown transform %s", p.DerivedPart, tid))
				ok = false
			}
		}
		for _, part := range p.Byproducts {
			if _, found := b.reg.Part(part); !found {
				vs = append(vs, reference(p.Locator, "promotion rule for %s emits unknown byproduct part %s", p.DerivedPart, part))
				ok = false
			}
		}
		if !ok {
			continue
		}
		for _, taxon := range b.reg.TaxonIDs() {
			if !sub.Has(taxon, p.FromPart) {
				continue
			}
			if i, exists := sub.byTaxon[taxon][p.DerivedPart]; exists {
				// The taxon already carries the derived part through an
				// applicability rule. The promotion lineage still has to
				// land on the edge, otherwise the part closure cannot walk
				// back to the source part.
				edge := &sub.edges[i]
				if edge.FromPart == "" {
					edge.FromPart = p.FromPart
					edge.ProtoPath = p.ProtoPath
					edge.Byproducts = p.Byproducts
				}
				continue
			}
			add(ontology.SubstrateEdge{
				Taxon:      taxon,
				Part:       p.DerivedPart,
				Source:     "promotion:" + p.Locator.String(),
				FromPart:   p.FromPart,
				ProtoPath:  p.ProtoPath,
				Byproducts: p.Byproducts,
			})
		}
	}

	sub.compact()
	return sub, vs
}

// expandRules fans out per-rule expansion over a bounded worker pool.
// Results are indexed by rule position so parallelism never changes output.
func (b *Builder) expandRules(rules []ontology.ApplicabilityRule) []ruleResult {
	results := make([]ruleResult, len(rules))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.expandRule(i, rules[i])
			}
		}()
	}
	for i := range rules {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (b *Builder) expandRule(idx int, rule ontology.ApplicabilityRule) ruleResult {
	var res ruleResult
	if _, ok := b.reg.Part(rule.Part); !ok {
		res.violations = append(res.violations, reference(rule.Locator, "applicability rule references unknown part %s", rule.Part))
		return res
	}
	for _, prefix := range rule.Prefixes {
		matched := false
		for _, taxon := range b.reg.TaxonIDs() {
			if !MatchTaxon(prefix, taxon) {
				continue
			}
			matched = true
			excluded := false
			for _, ex := range rule.Excludes {
				if MatchTaxon(ex, taxon) {
					excluded = true
					break
				}
			}
			res.matches = append(res.matches, ruleMatch{
				rule:     idx,
				taxon:    taxon,
				specific: literalPrefixLen(prefix),
				excluded: excluded,
			})
		}
		if !matched {
			res.violations = append(res.violations, reference(rule.Locator, "applicability rule prefix %q matches no loaded taxon", prefix))
		}
	}
	return res
}

// compact drops removed edges and fixes the sorted order and index.
func (s *Substrate) compact() {
	edges := make([]ontology.SubstrateEdge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Taxon != "" {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Taxon != edges[j].Taxon {
			return edges[i].Taxon < edges[j].Taxon
		}
		return edges[i].Part < edges[j].Part
	})
	s.edges = edges
	s.byTaxon = map[string]map[string]int{}
	for i, e := range edges {
		byPart, ok := s.byTaxon[e.Taxon]
		if !ok {
			byPart = map[string]int{}
			s.byTaxon[e.Taxon] = byPart
		}
		byPart[e.Part] = i
	}
}

func reference(loc ontology.Locator, format string, args ...any) ontology.Violation {
	return ontology.Violation{
		Category: ontology.CategoryReference,
		Severity: ontology.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Locator:  loc,
	}
}
