// Package naming assigns display names and synonyms to TPT nodes by
// priority: explicit override, authored curated name, family template with
// conditional variants, then taxon + part concatenation.
package naming

import (
	"fmt"
	"sort"
	"strings"

	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

// Resolver resolves names over the read-only registry tables.
type Resolver struct {
	reg       *registry.Registry
	overrides map[string]ontology.NameOverride
	flagToken map[string]struct{}
}

// New constructs a resolver. flagRules supplies the emitted flag tokens used
// for the synonym/flag duplication warning.
func New(reg *registry.Registry, overrides []ontology.NameOverride, flagRules []ontology.FlagRule) *Resolver {
	ov := make(map[string]ontology.NameOverride, len(overrides))
	for _, o := range overrides {
		ov[o.Taxon+"\x00"+o.Part] = o
	}
	tokens := make(map[string]struct{}, len(flagRules))
	for _, r := range flagRules {
		tokens[r.Flag] = struct{}{}
	}
	return &Resolver{reg: reg, overrides: ov, flagToken: tokens}
}

// Resolve fills Name and Synonyms on every node in place and returns
// warnings (synonym duplicating a flag token is a warning, never fatal).
func (r *Resolver) Resolve(nodes []ontology.TPTNode) []ontology.Violation {
	var vs []ontology.Violation
	for i := range nodes {
		vs = append(vs, r.resolveNode(&nodes[i])...)
	}
	return vs
}

func (r *Resolver) resolveNode(node *ontology.TPTNode) []ontology.Violation {
	var vs []ontology.Violation
	taxon, _ := r.reg.Taxon(node.Taxon)
	part, _ := r.reg.Part(node.Part)
	family, hasFamily := r.reg.Family(node.Family)

	curated := node.Name
	var templated string
	if hasFamily {
		templated = r.templateName(family, node)
	}
	override, hasOverride := r.overrides[node.Taxon+"\x00"+node.Part]
	switch {
	case hasOverride:
		node.Name = override.Name
	case curated != "":
		node.Name = curated
	case templated != "":
		node.Name = templated
	default:
		node.Name = strings.TrimSpace(taxon.Name + " " + part.Name)
	}

	// Synonyms: curated union taxon-scoped part aliases union family
	// lexical variants.
	set := map[string]struct{}{}
	for _, s := range node.Synonyms {
		set[s] = struct{}{}
	}
	if hasOverride {
		for _, s := range override.Synonyms {
			set[s] = struct{}{}
		}
	}
	for _, alias := range part.Aliases {
		if alias.TaxonPrefix == "" || substrate.MatchTaxon(alias.TaxonPrefix, node.Taxon) {
			set[alias.Name] = struct{}{}
		}
	}
	if hasFamily {
		for _, s := range family.LexicalVariants {
			set[s] = struct{}{}
		}
	}
	delete(set, node.Name)

	synonyms := make([]string, 0, len(set))
	for s := range set {
		synonyms = append(synonyms, s)
	}
	sort.Strings(synonyms)
	node.Synonyms = synonyms

	for _, s := range synonyms {
		if _, clash := r.flagToken[normalizeToken(s)]; clash {
			vs = append(vs, ontology.Violation{
				Category: ontology.CategorySchema,
				Severity: ontology.SeverityWarn,
				Message:  fmt.Sprintf("node %s synonym %q duplicates an emitted flag token", node.ID, s),
				Locator:  ontology.Locator{ID: node.ID},
			})
		}
	}
	return vs
}

// templateName renders the family naming template, preferring the first
// conditional variant whose bucketed values all match.
func (r *Resolver) templateName(family ontology.Family, node *ontology.TPTNode) string {
	labels := map[string]string{}
	for _, step := range node.IdentityPath {
		for k, v := range step.Params {
			labels[step.Transform+"."+k] = v
		}
	}
	template := family.NameTemplate
	for _, variant := range family.NameVariants {
		if variantMatches(variant, labels) {
			template = variant.Template
			break
		}
	}
	if template == "" {
		return ""
	}
	return r.render(template, node, labels)
}

func variantMatches(v ontology.NameVariant, labels map[string]string) bool {
	for key, want := range v.When {
		if labels[key] != want {
			return false
		}
	}
	return true
}

// render substitutes {taxon}, {part}, and {param:transform.param}
// placeholders.
func (r *Resolver) render(template string, node *ontology.TPTNode, labels map[string]string) string {
	taxon, _ := r.reg.Taxon(node.Taxon)
	part, _ := r.reg.Part(node.Part)
	out := strings.ReplaceAll(template, "{taxon}", taxon.Name)
	out = strings.ReplaceAll(out, "{part}", part.Name)
	for {
		start := strings.Index(out, "{param:")
		if start < 0 {
			break
		}
		end := strings.IndexByte(out[start:], '}')
		if end < 0 {
			break
		}
		key := out[start+len("{param:") : start+end]
		out = out[:start] + labels[key] + out[start+end+1:]
	}
	return strings.Join(strings.Fields(out), " ")
}

func normalizeToken(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
