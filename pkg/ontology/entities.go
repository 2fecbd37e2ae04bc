// Package ontology defines the declarative rule entities, graph value types,
// and diagnostic primitives used by the foodgraph compiler.
package ontology

// PartKind distinguishes anatomical parts from parts produced by processing.
type PartKind string

// Supported part kinds.
const (
	// PartBiological identifies a part present on the living organism.
	PartBiological PartKind = "biological"
	// PartDerived identifies a part produced from another part by processing.
	PartDerived PartKind = "derived"
)

// ParamKind enumerates transform parameter value types.
type ParamKind string

// Supported parameter kinds. Number parameters must declare a unit.
const (
	ParamString ParamKind = "string"
	ParamNumber ParamKind = "number"
	ParamBool   ParamKind = "bool"
	ParamEnum   ParamKind = "enum"
)

// Taxon is a node in the biological classification tree. The id encodes the
// full lineage as colon-separated segments (e.g. "animalia:chordata:...:sus").
type Taxon struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Rank     string `json:"rank" yaml:"rank"`
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id"`
}

// PartAlias is an alternative part name valid under a taxon subtree.
type PartAlias struct {
	Name        string `json:"name" yaml:"name"`
	TaxonPrefix string `json:"taxon_prefix,omitempty" yaml:"taxon_prefix"`
}

// Part is a physical or derived food part.
type Part struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Kind     PartKind    `json:"kind" yaml:"kind"`
	Category string      `json:"category,omitempty" yaml:"category"`
	ParentID string      `json:"parent_id,omitempty" yaml:"parent_id"`
	Aliases  []PartAlias `json:"aliases,omitempty" yaml:"aliases"`
}

// TransformParam declares one parameter of a transform schema.
type TransformParam struct {
	Name          string    `json:"name" yaml:"name"`
	Kind          ParamKind `json:"kind" yaml:"kind"`
	Unit          string    `json:"unit,omitempty" yaml:"unit"`
	IdentityParam bool      `json:"identity_param" yaml:"identity_param"`
	EnumValues    []string  `json:"enum_values,omitempty" yaml:"enum_values"`
}

// TransformDef is one (possibly partial) authored definition of a transform.
// Multiple definitions sharing an id are merged by the registry; Override
// marks a definition whose order/identity values win a merge conflict.
type TransformDef struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name,omitempty" yaml:"name"`
	Params   []TransformParam `json:"params,omitempty" yaml:"params"`
	Order    *int             `json:"order,omitempty" yaml:"order"`
	Identity *bool            `json:"identity,omitempty" yaml:"identity"`
	Override bool             `json:"override,omitempty" yaml:"override"`
	Locator  Locator          `json:"-" yaml:"-"`
}

// Transform is the canonical merged form of all definitions of one id.
type Transform struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Params   []TransformParam `json:"params"`
	Order    int              `json:"order"`
	Identity bool             `json:"identity"`
}

// Param returns the named parameter declaration, if present.
func (t Transform) Param(name string) (TransformParam, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return TransformParam{}, false
}

// Bucket maps a continuous parameter range onto a discrete identity label.
// Nil bounds are open; values land in the first bucket with Min <= v < Max.
type Bucket struct {
	Label string   `json:"label" yaml:"label"`
	Min   *float64 `json:"min,omitempty" yaml:"min"`
	Max   *float64 `json:"max,omitempty" yaml:"max"`
}

// NameVariant is a conditional family naming template selected when every
// referenced bucketed value matches. Keys are "transform.param".
type NameVariant struct {
	When     map[string]string `json:"when" yaml:"when"`
	Template string            `json:"template" yaml:"template"`
}

// Family is an archetype: the minimal identity-transform skeleton shared by
// a group of derived foods, plus family-scoped buckets and naming rules.
type Family struct {
	ID                string              `json:"id" yaml:"id"`
	Name              string              `json:"name,omitempty" yaml:"name"`
	Skeleton          []Step              `json:"skeleton" yaml:"skeleton"`
	IdentityOverrides []string            `json:"identity_overrides,omitempty" yaml:"identity_overrides"`
	IdentityParams    map[string][]string `json:"identity_params,omitempty" yaml:"identity_params"`
	Buckets           map[string][]Bucket `json:"buckets,omitempty" yaml:"buckets"`
	NameTemplate      string              `json:"name_template,omitempty" yaml:"name_template"`
	NameVariants      []NameVariant       `json:"name_variants,omitempty" yaml:"name_variants"`
	LexicalVariants   []string            `json:"lexical_variants,omitempty" yaml:"lexical_variants"`
	Locator           Locator             `json:"-" yaml:"-"`
}

// PromotesIdentity reports whether the family promotes the transform to
// identity-bearing regardless of its global flag.
func (f Family) PromotesIdentity(transformID string) bool {
	for _, id := range f.IdentityOverrides {
		if id == transformID {
			return true
		}
	}
	return false
}

// IdentityParamNames returns extra identity parameter names the family
// declares for the transform.
func (f Family) IdentityParamNames(transformID string) []string {
	if f.IdentityParams == nil {
		return nil
	}
	return f.IdentityParams[transformID]
}

// ApplicabilityRule grants a part to every taxon matched by one of its
// prefixes, minus exclusions. Prefixes are colon-separated lineage prefixes;
// entries containing glob metacharacters are matched as patterns.
type ApplicabilityRule struct {
	Part     string   `json:"part" yaml:"part"`
	Prefixes []string `json:"applies_to" yaml:"applies_to"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes"`
	Locator  Locator  `json:"-" yaml:"-"`
}

// TaxonOverride adjusts part applicability for a single taxon. Overrides win
// over every rule-derived decision.
type TaxonOverride struct {
	Taxon         string   `json:"taxon" yaml:"taxon"`
	AllowParts    []string `json:"allow_parts,omitempty" yaml:"allow_parts"`
	DisallowParts []string `json:"disallow_parts,omitempty" yaml:"disallow_parts"`
	Locator       Locator  `json:"-" yaml:"-"`
}

// PromotionRule derives a new part from an existing one via an ordered
// proto-path of part-changing transforms.
type PromotionRule struct {
	DerivedPart string   `json:"derived_part" yaml:"derived_part"`
	FromPart    string   `json:"from_part" yaml:"from_part"`
	ProtoPath   []string `json:"proto_path" yaml:"proto_path"`
	Byproducts  []string `json:"byproducts,omitempty" yaml:"byproducts"`
	Locator     Locator  `json:"-" yaml:"-"`
}

// TransformApplicability restricts where a transform may appear. A transform
// with no records is applicable to every substrate; with records, at least
// one record must cover the draft's part (and taxon, when prefixes are set).
type TransformApplicability struct {
	Transform     string   `json:"transform" yaml:"transform"`
	Parts         []string `json:"parts,omitempty" yaml:"parts"`
	Categories    []string `json:"categories,omitempty" yaml:"categories"`
	TaxonPrefixes []string `json:"taxon_prefixes,omitempty" yaml:"taxon_prefixes"`
	Locator       Locator  `json:"-" yaml:"-"`
}

// FamilyAllowlist requests templated expansion of a family over every taxon
// matched by the prefix that carries the part.
type FamilyAllowlist struct {
	Family      string  `json:"family" yaml:"family"`
	TaxonPrefix string  `json:"taxon_prefix" yaml:"taxon_prefix"`
	Part        string  `json:"part" yaml:"part"`
	Locator     Locator `json:"-" yaml:"-"`
}

// CuratedEntry is a hand-authored derived-food seed record.
type CuratedEntry struct {
	Taxon    string   `json:"taxon" yaml:"taxon"`
	Part     string   `json:"part" yaml:"part"`
	Family   string   `json:"family" yaml:"family"`
	Path     []Step   `json:"path" yaml:"path"`
	Name     string   `json:"name,omitempty" yaml:"name"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Locator  Locator  `json:"-" yaml:"-"`
}

// NameOverride pins the display name and synonyms for one (taxon, part).
type NameOverride struct {
	Taxon    string   `json:"taxon" yaml:"taxon"`
	Part     string   `json:"part" yaml:"part"`
	Name     string   `json:"name" yaml:"name"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Locator  Locator  `json:"-" yaml:"-"`
}

// FlagCategory classifies guarded flag rules.
type FlagCategory string

// Guarded flag rule categories.
const (
	FlagSafety  FlagCategory = "safety"
	FlagDietary FlagCategory = "dietary"
)

// CompareOp enumerates parameter comparison operators.
type CompareOp string

// Parameter comparison operators evaluated across all occurrences of the
// named transform in a node's full path.
const (
	OpExists CompareOp = "exists"
	OpEq     CompareOp = "eq"
	OpNe     CompareOp = "ne"
	OpGt     CompareOp = "gt"
	OpGte    CompareOp = "gte"
	OpLt     CompareOp = "lt"
	OpLte    CompareOp = "lte"
	OpIn     CompareOp = "in"
	OpNotIn  CompareOp = "not_in"
)

// ParamCondition compares a parameter of a transform anywhere in the full
// path. The condition holds when any occurrence satisfies the operator.
type ParamCondition struct {
	Transform string    `json:"transform" yaml:"transform"`
	Param     string    `json:"param" yaml:"param"`
	Op        CompareOp `json:"op" yaml:"op"`
	Value     any       `json:"value,omitempty" yaml:"value"`
	Values    []any     `json:"values,omitempty" yaml:"values"`
}

// Condition is a closed tagged variant: exactly one field may be set.
// Composites recurse; leaves test the transform path or substrate closure.
type Condition struct {
	AllOf  []Condition `json:"all_of,omitempty" yaml:"all_of"`
	AnyOf  []Condition `json:"any_of,omitempty" yaml:"any_of"`
	NoneOf []Condition `json:"none_of,omitempty" yaml:"none_of"`

	TransformPresent string          `json:"transform_present,omitempty" yaml:"transform_present"`
	PartPresent      string          `json:"part_present,omitempty" yaml:"part_present"`
	ParamCompare     *ParamCondition `json:"param_compare,omitempty" yaml:"param_compare"`
}

// FlagRule emits a flag token when its condition holds for a node.
type FlagRule struct {
	ID        string       `json:"id" yaml:"id"`
	Category  FlagCategory `json:"category" yaml:"category"`
	Flag      string       `json:"flag" yaml:"flag"`
	Condition Condition    `json:"condition" yaml:"condition"`
	Locator   Locator      `json:"-" yaml:"-"`
}

// Definitions is the canonical in-memory form of every declarative input,
// produced once by the loader and treated as read-only afterwards.
type Definitions struct {
	Taxa                   []Taxon
	Parts                  []Part
	Transforms             []TransformDef
	Families               []Family
	Applicability          []ApplicabilityRule
	TaxonOverrides         []TaxonOverride
	Promotions             []PromotionRule
	TransformApplicability []TransformApplicability
	Allowlists             []FamilyAllowlist
	GlobalBuckets          map[string][]Bucket
	FlagRules              []FlagRule
	Curated                []CuratedEntry
	NameOverrides          []NameOverride
}
