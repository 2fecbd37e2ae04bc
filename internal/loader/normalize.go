package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"foodgraph/pkg/ontology"
)

// The raw* shapes accept the forgiving legacy forms found in authored rule
// files (scalar-or-list fields, string-or-object synonyms, prefixes with or
// without a trailing colon) and normalize them into the canonical entities.

type rawBase struct {
	loc ontology.Locator
}

func (b *rawBase) setLocator(l ontology.Locator) { b.loc = l }

// flexStrings decodes either a single scalar or a sequence of scalars.
type flexStrings []string

// UnmarshalYAML implements the scalar-or-list legacy shape.
func (s *flexStrings) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = flexStrings{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = flexStrings(v)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings")
	}
}

// flexSynonyms decodes entries that are either plain strings or legacy
// objects of the form {name: ...}.
type flexSynonyms []string

// UnmarshalYAML implements the string-or-object legacy shape.
func (s *flexSynonyms) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("expected list of synonyms")
	}
	out := make([]string, 0, len(node.Content))
	for _, entry := range node.Content {
		switch entry.Kind {
		case yaml.ScalarNode:
			var v string
			if err := entry.Decode(&v); err != nil {
				return err
			}
			out = append(out, v)
		case yaml.MappingNode:
			var v struct {
				Name string `yaml:"name"`
			}
			if err := entry.Decode(&v); err != nil {
				return err
			}
			out = append(out, v.Name)
		default:
			return fmt.Errorf("synonym entries must be strings or {name: ...} objects")
		}
	}
	*s = flexSynonyms(out)
	return nil
}

// normalizePrefix strips the inconsistent trailing colon some legacy rule
// files carry on taxon prefixes.
func normalizePrefix(p string) string {
	return strings.TrimSuffix(strings.TrimSpace(p), ":")
}

func normalizePrefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = normalizePrefix(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeParamValue rewrites decoded YAML numbers into float64 so every
// downstream comparison and bucket lookup sees one numeric representation.
func normalizeParamValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeParamValue(e)
		}
		return out
	default:
		return v
	}
}

func normalizeParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeParamValue(v)
	}
	return out
}

func normalizeSteps(in []ontology.Step) []ontology.Step {
	out := make([]ontology.Step, len(in))
	for i, s := range in {
		out[i] = ontology.Step{Transform: s.Transform, Params: normalizeParams(s.Params)}
	}
	return out
}

type rawTaxon struct {
	rawBase `yaml:"-"`

	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Rank         string `yaml:"rank"`
	ParentID     string `yaml:"parent_id"`
	LegacyParent string `yaml:"parent"`
}

func (r *rawTaxon) normalize(vs *[]ontology.Violation) ontology.Taxon {
	parent := r.ParentID
	if parent == "" {
		parent = r.LegacyParent
	}
	t := ontology.Taxon{ID: normalizePrefix(r.ID), Name: r.Name, Rank: r.Rank, ParentID: normalizePrefix(parent)}
	*vs = append(*vs, validateTaxon(t, r.loc)...)
	return t
}

type rawPart struct {
	rawBase `yaml:"-"`

	ID       string              `yaml:"id"`
	Name     string              `yaml:"name"`
	Kind     string              `yaml:"kind"`
	Category string              `yaml:"category"`
	ParentID string              `yaml:"parent_id"`
	Aliases  []ontology.PartAlias `yaml:"aliases"`
}

func (r *rawPart) normalize(vs *[]ontology.Violation) ontology.Part {
	kind := ontology.PartKind(r.Kind)
	if r.Kind == "" {
		// Legacy part records omit kind; they are all biological.
		kind = ontology.PartBiological
	}
	aliases := make([]ontology.PartAlias, len(r.Aliases))
	for i, a := range r.Aliases {
		aliases[i] = ontology.PartAlias{Name: a.Name, TaxonPrefix: normalizePrefix(a.TaxonPrefix)}
	}
	p := ontology.Part{ID: r.ID, Name: r.Name, Kind: kind, Category: r.Category, ParentID: r.ParentID, Aliases: aliases}
	*vs = append(*vs, validatePart(p, r.loc)...)
	return p
}

type rawTransform struct {
	rawBase `yaml:"-"`

	ID       string                    `yaml:"id"`
	Name     string                    `yaml:"name"`
	Params   []ontology.TransformParam `yaml:"params"`
	Order    *int                      `yaml:"order"`
	Identity *bool                     `yaml:"identity"`
	Override bool                      `yaml:"override"`
}

func (r *rawTransform) normalize(vs *[]ontology.Violation) ontology.TransformDef {
	d := ontology.TransformDef{
		ID:       r.ID,
		Name:     r.Name,
		Params:   r.Params,
		Order:    r.Order,
		Identity: r.Identity,
		Override: r.Override,
		Locator:  r.loc,
	}
	*vs = append(*vs, validateTransformDef(d, r.loc)...)
	return d
}

type rawFamily struct {
	rawBase `yaml:"-"`

	ID                string                       `yaml:"id"`
	Name              string                       `yaml:"name"`
	Skeleton          []ontology.Step              `yaml:"skeleton"`
	IdentityOverrides flexStrings                  `yaml:"identity_overrides"`
	IdentityParams    map[string]flexStrings       `yaml:"identity_params"`
	Buckets           map[string][]ontology.Bucket `yaml:"buckets"`
	NameTemplate      string                       `yaml:"name_template"`
	NameVariants      []ontology.NameVariant       `yaml:"name_variants"`
	LexicalVariants   flexSynonyms                 `yaml:"lexical_variants"`
}

func (r *rawFamily) normalize(vs *[]ontology.Violation) ontology.Family {
	identityParams := make(map[string][]string, len(r.IdentityParams))
	for k, v := range r.IdentityParams {
		identityParams[k] = []string(v)
	}
	f := ontology.Family{
		ID:                r.ID,
		Name:              r.Name,
		Skeleton:          normalizeSteps(r.Skeleton),
		IdentityOverrides: []string(r.IdentityOverrides),
		IdentityParams:    identityParams,
		Buckets:           r.Buckets,
		NameTemplate:      r.NameTemplate,
		NameVariants:      r.NameVariants,
		LexicalVariants:   []string(r.LexicalVariants),
		Locator:           r.loc,
	}
	*vs = append(*vs, validateFamily(f, r.loc)...)
	return f
}

type rawApplicability struct {
	rawBase `yaml:"-"`

	Part     string      `yaml:"part"`
	Prefixes flexStrings `yaml:"applies_to"`
	Excludes flexStrings `yaml:"excludes"`
}

func (r *rawApplicability) normalize(vs *[]ontology.Violation) ontology.ApplicabilityRule {
	rule := ontology.ApplicabilityRule{
		Part:     r.Part,
		Prefixes: normalizePrefixes(r.Prefixes),
		Excludes: normalizePrefixes(r.Excludes),
		Locator:  r.loc,
	}
	*vs = append(*vs, validateApplicability(rule, r.loc)...)
	return rule
}

type rawTaxonOverride struct {
	rawBase `yaml:"-"`

	Taxon         string      `yaml:"taxon"`
	AllowParts    flexStrings `yaml:"allow_parts"`
	DisallowParts flexStrings `yaml:"disallow_parts"`
}

func (r *rawTaxonOverride) normalize(vs *[]ontology.Violation) ontology.TaxonOverride {
	o := ontology.TaxonOverride{
		Taxon:         normalizePrefix(r.Taxon),
		AllowParts:    []string(r.AllowParts),
		DisallowParts: []string(r.DisallowParts),
		Locator:       r.loc,
	}
	*vs = append(*vs, validateTaxonOverride(o, r.loc)...)
	return o
}

type rawPromotion struct {
	rawBase `yaml:"-"`

	DerivedPart string      `yaml:"derived_part"`
	FromPart    string      `yaml:"from_part"`
	ProtoPath   flexStrings `yaml:"proto_path"`
	Byproducts  flexStrings `yaml:"byproducts"`
}

func (r *rawPromotion) normalize(vs *[]ontology.Violation) ontology.PromotionRule {
	p := ontology.PromotionRule{
		DerivedPart: r.DerivedPart,
		FromPart:    r.FromPart,
		ProtoPath:   []string(r.ProtoPath),
		Byproducts:  []string(r.Byproducts),
		Locator:     r.loc,
	}
	*vs = append(*vs, validatePromotion(p, r.loc)...)
	return p
}

type rawTransformApplicability struct {
	rawBase `yaml:"-"`

	Transform     string      `yaml:"transform"`
	Parts         flexStrings `yaml:"parts"`
	Categories    flexStrings `yaml:"categories"`
	TaxonPrefixes flexStrings `yaml:"taxon_prefixes"`
}

func (r *rawTransformApplicability) normalize(vs *[]ontology.Violation) ontology.TransformApplicability {
	t := ontology.TransformApplicability{
		Transform:     r.Transform,
		Parts:         []string(r.Parts),
		Categories:    []string(r.Categories),
		TaxonPrefixes: normalizePrefixes(r.TaxonPrefixes),
		Locator:       r.loc,
	}
	*vs = append(*vs, validateTransformApplicability(t, r.loc)...)
	return t
}

type rawAllowlist struct {
	rawBase `yaml:"-"`

	Family      string `yaml:"family"`
	TaxonPrefix string `yaml:"taxon_prefix"`
	Part        string `yaml:"part"`
}

func (r *rawAllowlist) normalize(vs *[]ontology.Violation) ontology.FamilyAllowlist {
	a := ontology.FamilyAllowlist{
		Family:      r.Family,
		TaxonPrefix: normalizePrefix(r.TaxonPrefix),
		Part:        r.Part,
		Locator:     r.loc,
	}
	*vs = append(*vs, validateAllowlist(a, r.loc)...)
	return a
}

type rawFlagRule struct {
	rawBase `yaml:"-"`

	ID        string             `yaml:"id"`
	Category  string             `yaml:"category"`
	Flag      string             `yaml:"flag"`
	Condition ontology.Condition `yaml:"condition"`
}

func (r *rawFlagRule) normalize(vs *[]ontology.Violation) ontology.FlagRule {
	rule := ontology.FlagRule{
		ID:        r.ID,
		Category:  ontology.FlagCategory(r.Category),
		Flag:      r.Flag,
		Condition: normalizeCondition(r.Condition),
		Locator:   r.loc,
	}
	*vs = append(*vs, validateFlagRule(rule, r.loc)...)
	return rule
}

func normalizeCondition(c ontology.Condition) ontology.Condition {
	for i, sub := range c.AllOf {
		c.AllOf[i] = normalizeCondition(sub)
	}
	for i, sub := range c.AnyOf {
		c.AnyOf[i] = normalizeCondition(sub)
	}
	for i, sub := range c.NoneOf {
		c.NoneOf[i] = normalizeCondition(sub)
	}
	if c.ParamCompare != nil {
		pc := *c.ParamCompare
		pc.Value = normalizeParamValue(pc.Value)
		if pc.Values != nil {
			pc.Values = normalizeParamValue(pc.Values).([]any)
		}
		c.ParamCompare = &pc
	}
	return c
}

type rawCurated struct {
	rawBase `yaml:"-"`

	Taxon    string          `yaml:"taxon"`
	Part     string          `yaml:"part"`
	Family   string          `yaml:"family"`
	Path     []ontology.Step `yaml:"path"`
	Name     string          `yaml:"name"`
	Synonyms flexSynonyms    `yaml:"synonyms"`
}

func (r *rawCurated) normalize(vs *[]ontology.Violation) ontology.CuratedEntry {
	e := ontology.CuratedEntry{
		Taxon:    normalizePrefix(r.Taxon),
		Part:     r.Part,
		Family:   r.Family,
		Path:     normalizeSteps(r.Path),
		Name:     r.Name,
		Synonyms: []string(r.Synonyms),
		Locator:  r.loc,
	}
	*vs = append(*vs, validateCurated(e, r.loc)...)
	return e
}

type rawNameOverride struct {
	rawBase `yaml:"-"`

	Taxon    string       `yaml:"taxon"`
	Part     string       `yaml:"part"`
	Name     string       `yaml:"name"`
	Synonyms flexSynonyms `yaml:"synonyms"`
}

func (r *rawNameOverride) normalize(vs *[]ontology.Violation) ontology.NameOverride {
	o := ontology.NameOverride{
		Taxon:    normalizePrefix(r.Taxon),
		Part:     r.Part,
		Name:     r.Name,
		Synonyms: []string(r.Synonyms),
		Locator:  r.loc,
	}
	*vs = append(*vs, validateNameOverride(o, r.loc)...)
	return o
}
