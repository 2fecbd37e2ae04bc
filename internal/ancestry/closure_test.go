package ancestry

import (
	"reflect"
	"strings"
	"testing"

	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

func intp(v int) *int { return &v }

func TestTaxonClosure_Depths(t *testing.T) {
	taxa := []ontology.Taxon{
		{ID: "animalia", Name: "Animals"},
		{ID: "animalia:suidae", Name: "Pigs", ParentID: "animalia"},
		{ID: "animalia:suidae:sus", Name: "Sus", ParentID: "animalia:suidae"},
	}
	rows, vs := TaxonClosure(taxa)
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	// 1 + 2 + 3 self-inclusive ancestry rows
	if len(rows) != 6 {
		t.Fatalf("expected 6 closure rows, got %d: %+v", len(rows), rows)
	}
	var sus []ontology.ClosureRow
	for _, r := range rows {
		if r.Descendant == "animalia:suidae:sus" {
			sus = append(sus, r)
		}
	}
	want := []ontology.ClosureRow{
		{Descendant: "animalia:suidae:sus", Ancestor: "animalia:suidae:sus", Depth: 0},
		{Descendant: "animalia:suidae:sus", Ancestor: "animalia:suidae", Depth: 1},
		{Descendant: "animalia:suidae:sus", Ancestor: "animalia", Depth: 2},
	}
	if !reflect.DeepEqual(sus, want) {
		t.Fatalf("sus ancestry = %+v, want %+v", sus, want)
	}
}

func TestTaxonClosure_CycleNamesOffender(t *testing.T) {
	taxa := []ontology.Taxon{
		{ID: "a", Name: "A", ParentID: "b"},
		{ID: "b", Name: "B", ParentID: "a"},
	}
	_, vs := TaxonClosure(taxa)
	if len(vs) == 0 {
		t.Fatalf("cycle not detected")
	}
	for _, v := range vs {
		if v.Category != ontology.CategoryStructural || v.Severity != ontology.SeverityBlock {
			t.Fatalf("cycle must be a blocking structural violation: %+v", v)
		}
		if !strings.Contains(v.Message, "cycle") || v.Locator.ID == "" {
			t.Fatalf("cycle violation must name the offending id: %+v", v)
		}
	}
}

func TestTaxonClosure_UnknownParent(t *testing.T) {
	taxa := []ontology.Taxon{
		{ID: "animalia:suidae", Name: "Pigs", ParentID: "animalia"},
	}
	_, vs := TaxonClosure(taxa)
	if len(vs) != 1 || vs[0].Category != ontology.CategoryReference {
		t.Fatalf("unknown parent must be a reference violation: %+v", vs)
	}
}

func TestPartClosure_DerivedMustTerminateBiological(t *testing.T) {
	parts := []ontology.Part{
		{ID: "milk", Name: "Milk", Kind: ontology.PartBiological},
		{ID: "curd", Name: "Curd", Kind: ontology.PartDerived, ParentID: "milk"},
		{ID: "cheese", Name: "Cheese", Kind: ontology.PartDerived, ParentID: "curd"},
		{ID: "orphan", Name: "Orphan", Kind: ontology.PartDerived, ParentID: "ghost"},
	}
	_, vs := PartClosure(parts)
	var messages []string
	for _, v := range vs {
		messages = append(messages, v.Message)
	}
	// cheese resolves milk through curd; orphan fails twice, once for the
	// unknown parent and once for not reaching a biological root
	if len(vs) != 2 {
		t.Fatalf("expected 2 violations, got %+v", messages)
	}
}

func TestSweep_CollectsEveryFinding(t *testing.T) {
	defs := ontology.Definitions{
		Taxa: []ontology.Taxon{{ID: "animalia:suidae", Name: "Pigs"}},
		Parts: []ontology.Part{
			{ID: "cut:belly", Name: "Belly", Kind: ontology.PartBiological},
		},
		Transforms: []ontology.TransformDef{
			{ID: "cure", Order: intp(10), Params: []ontology.TransformParam{
				{Name: "nitrite_ppm", Kind: ontology.ParamNumber, Unit: "ppm"},
			}},
		},
		Applicability: []ontology.ApplicabilityRule{
			{Part: "cut:belly", Prefixes: []string{"animalia:suidae"}},
		},
	}
	reg, _ := registry.Build(defs)
	sub, _ := substrate.NewBuilder(reg, 1).Build(defs)

	nodes := []ontology.TPTNode{
		{
			ID:    "bad-node",
			Taxon: "animalia:suidae",
			Part:  "cut:shoulder",
			Path: []ontology.Step{
				{Transform: "cure", Params: map[string]any{"salt_pct": float64(3)}},
				{Transform: "ferment"},
			},
		},
	}
	vs := Sweep(reg, sub, nodes)
	// unknown part, unknown param, unknown transform, and missing substrate
	// edge are all reported in one pass
	if len(vs) != 4 {
		t.Fatalf("expected 4 findings, got %d: %+v", len(vs), vs)
	}
	for _, v := range vs {
		if v.Severity != ontology.SeverityBlock || v.Locator.ID != "bad-node" {
			t.Fatalf("sweep findings must block and carry the node id: %+v", v)
		}
	}
}
