package naming

import (
	"reflect"
	"testing"

	"foodgraph/internal/registry"
	"foodgraph/pkg/ontology"
)

func intp(v int) *int { return &v }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	defs := ontology.Definitions{
		Taxa: []ontology.Taxon{
			{ID: "animalia:suidae", Name: "Pig"},
			{ID: "animalia:bovidae", Name: "Cow"},
		},
		Parts: []ontology.Part{
			{ID: "cut:belly", Name: "Belly", Kind: ontology.PartBiological, Aliases: []ontology.PartAlias{
				{Name: "pork belly", TaxonPrefix: "animalia:suidae"},
				{Name: "flank", TaxonPrefix: ""},
			}},
		},
		Transforms: []ontology.TransformDef{
			{ID: "cure", Order: intp(10)},
		},
		Families: []ontology.Family{
			{
				ID:           "dry_cured_meat",
				Skeleton:     []ontology.Step{{Transform: "cure"}},
				NameTemplate: "Cured {taxon} {part}",
				NameVariants: []ontology.NameVariant{
					{When: map[string]string{"cure.nitrite_ppm": "nitrite_free"}, Template: "Nitrite-free cured {part}"},
				},
				LexicalVariants: []string{"charcuterie"},
			},
		},
	}
	reg, vs := registry.Build(defs)
	if len(vs) != 0 {
		t.Fatalf("registry violations: %+v", vs)
	}
	return reg
}

func node(taxon, name string, synonyms []string) ontology.TPTNode {
	return ontology.TPTNode{
		ID:       "test-node",
		Taxon:    taxon,
		Part:     "cut:belly",
		Family:   "dry_cured_meat",
		Name:     name,
		Synonyms: synonyms,
		IdentityPath: []ontology.IdentityStep{
			{Transform: "cure", Params: map[string]string{"nitrite_ppm": "nitrite"}},
		},
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	reg := testRegistry(t)
	overrides := []ontology.NameOverride{
		{Taxon: "animalia:suidae", Part: "cut:belly", Name: "Pancetta", Synonyms: []string{"pancetta tesa"}},
	}
	nodes := []ontology.TPTNode{node("animalia:suidae", "Curated Name", nil)}
	vs := New(reg, overrides, nil).Resolve(nodes)
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	if nodes[0].Name != "Pancetta" {
		t.Fatalf("override should beat the curated name, got %q", nodes[0].Name)
	}
	want := []string{"charcuterie", "flank", "pancetta tesa", "pork belly"}
	if !reflect.DeepEqual(nodes[0].Synonyms, want) {
		t.Fatalf("synonyms = %+v, want %+v", nodes[0].Synonyms, want)
	}
}

func TestResolve_CuratedBeatsTemplate(t *testing.T) {
	reg := testRegistry(t)
	nodes := []ontology.TPTNode{node("animalia:suidae", "Pancetta Tesa", nil)}
	New(reg, nil, nil).Resolve(nodes)
	if nodes[0].Name != "Pancetta Tesa" {
		t.Fatalf("curated name should beat the family template, got %q", nodes[0].Name)
	}
}

func TestResolve_TemplateAndVariants(t *testing.T) {
	reg := testRegistry(t)
	nodes := []ontology.TPTNode{node("animalia:suidae", "", nil)}
	New(reg, nil, nil).Resolve(nodes)
	if nodes[0].Name != "Cured Pig Belly" {
		t.Fatalf("template rendering wrong: %q", nodes[0].Name)
	}

	free := node("animalia:suidae", "", nil)
	free.IdentityPath = []ontology.IdentityStep{
		{Transform: "cure", Params: map[string]string{"nitrite_ppm": "nitrite_free"}},
	}
	freeNodes := []ontology.TPTNode{free}
	New(reg, nil, nil).Resolve(freeNodes)
	if freeNodes[0].Name != "Nitrite-free cured Belly" {
		t.Fatalf("variant template should win when its buckets match: %q", freeNodes[0].Name)
	}
}

func TestResolve_FallbackName(t *testing.T) {
	reg := testRegistry(t)
	n := node("animalia:bovidae", "", nil)
	n.Family = "unknown_family"
	n.IdentityPath = nil
	nodes := []ontology.TPTNode{n}
	New(reg, nil, nil).Resolve(nodes)
	if nodes[0].Name != "Cow Belly" {
		t.Fatalf("fallback name wrong: %q", nodes[0].Name)
	}
}

func TestResolve_TaxonScopedAliases(t *testing.T) {
	reg := testRegistry(t)
	nodes := []ontology.TPTNode{node("animalia:bovidae", "", nil)}
	New(reg, nil, nil).Resolve(nodes)
	for _, s := range nodes[0].Synonyms {
		if s == "pork belly" {
			t.Fatalf("suidae-scoped alias leaked onto a bovid node: %+v", nodes[0].Synonyms)
		}
	}
}

func TestResolve_SynonymFlagClashWarns(t *testing.T) {
	reg := testRegistry(t)
	rules := []ontology.FlagRule{
		{ID: "r", Category: ontology.FlagDietary, Flag: "pork_belly", Condition: ontology.Condition{TransformPresent: "cure"}},
	}
	nodes := []ontology.TPTNode{node("animalia:suidae", "", nil)}
	vs := New(reg, nil, rules).Resolve(nodes)
	found := false
	for _, v := range vs {
		if v.Severity == ontology.SeverityWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("synonym matching a flag token must warn: %+v", vs)
	}
}
