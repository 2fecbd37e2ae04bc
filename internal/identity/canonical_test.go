package identity

import (
	"strings"
	"testing"

	"foodgraph/internal/generate"
	"foodgraph/internal/registry"
	"foodgraph/pkg/ontology"
)

func intp(v int) *int { return &v }

func boolp(v bool) *bool { return &v }

func f64p(v float64) *float64 { return &v }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	defs := ontology.Definitions{
		Transforms: []ontology.TransformDef{
			{ID: "cure", Order: intp(10), Identity: boolp(true), Params: []ontology.TransformParam{
				{Name: "nitrite_ppm", Kind: ontology.ParamNumber, Unit: "ppm", IdentityParam: true},
				{Name: "time_h", Kind: ontology.ParamNumber, Unit: "h"},
			}},
			{ID: "smoke", Order: intp(20), Identity: boolp(true), Params: []ontology.TransformParam{
				{Name: "wood", Kind: ontology.ParamString},
			}},
			{ID: "wash", Order: intp(1), Identity: boolp(false)},
		},
		Families: []ontology.Family{
			{ID: "dry_cured_meat", Skeleton: []ontology.Step{{Transform: "cure"}, {Transform: "smoke"}}},
			{ID: "washed_cured", Skeleton: []ontology.Step{{Transform: "cure"}},
				IdentityOverrides: []string{"wash"}},
		},
		GlobalBuckets: map[string][]ontology.Bucket{
			"cure.nitrite_ppm": {
				{Label: "nitrite_free", Max: f64p(1)},
				{Label: "nitrite", Min: f64p(1)},
			},
		},
	}
	reg, vs := registry.Build(defs)
	if len(vs) != 0 {
		t.Fatalf("registry violations: %+v", vs)
	}
	return reg
}

func draft(path []ontology.Step, prov ontology.Provenance) generate.Draft {
	return generate.Draft{
		Taxon:      "animalia:suidae",
		Part:       "cut:belly",
		Family:     "dry_cured_meat",
		Path:       path,
		Provenance: prov,
	}
}

func TestCanonicalize_IdentityReduction(t *testing.T) {
	reg := testRegistry(t)
	d := draft([]ontology.Step{
		{Transform: "wash"},
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120), "time_h": float64(12)}},
		{Transform: "smoke", Params: map[string]any{"wood": "beech"}},
	}, ontology.ProvenanceCurated)

	nodes, collisions, vs := New(reg, 1).Canonicalize([]generate.Draft{d})
	if len(vs) != 0 || len(collisions) != 0 {
		t.Fatalf("unexpected diagnostics: %+v %+v", vs, collisions)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %d", len(nodes))
	}
	node := nodes[0]
	// wash is non-identity and drops out; time_h is not an identity param;
	// nitrite_ppm buckets to its label; wood is not declared identity either
	if len(node.IdentityPath) != 2 {
		t.Fatalf("identity path wrong: %+v", node.IdentityPath)
	}
	if node.IdentityPath[0].Transform != "cure" || node.IdentityPath[0].Params["nitrite_ppm"] != "nitrite" {
		t.Fatalf("cure step wrong: %+v", node.IdentityPath[0])
	}
	if _, kept := node.IdentityPath[0].Params["time_h"]; kept {
		t.Fatalf("non-identity param survived reduction")
	}
	if node.IdentityPath[1].Transform != "smoke" || node.IdentityPath[1].Params != nil {
		t.Fatalf("smoke step wrong: %+v", node.IdentityPath[1])
	}
	if !strings.HasPrefix(node.ID, "suidae:cut-belly:dry_cured_meat:") {
		t.Fatalf("node id format wrong: %s", node.ID)
	}
	if len(node.Hash) != 64 {
		t.Fatalf("hash should be full sha256 hex: %s", node.Hash)
	}
	// full authored path is preserved on the node
	if len(node.Path) != 3 {
		t.Fatalf("authored path must survive: %+v", node.Path)
	}
}

func TestCanonicalize_AuthoredOrderInvariance(t *testing.T) {
	reg := testRegistry(t)
	a := draft([]ontology.Step{
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120)}},
		{Transform: "smoke"},
	}, ontology.ProvenanceGenerated)
	b := draft([]ontology.Step{
		{Transform: "smoke"},
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(50)}},
	}, ontology.ProvenanceCurated)

	nodes, collisions, vs := New(reg, 2).Canonicalize([]generate.Draft{a, b})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	// both nitrite values bucket to "nitrite" and the paths sort by
	// transform order, so the two drafts collapse to one node
	if len(nodes) != 1 {
		t.Fatalf("expected deduplication, got %d nodes", len(nodes))
	}
	if nodes[0].Provenance != ontology.ProvenanceCurated {
		t.Fatalf("curated draft must win the collision, kept %s", nodes[0].Provenance)
	}
	if len(collisions) != 1 || collisions[0].Kept != ontology.ProvenanceCurated || collisions[0].Dropped != ontology.ProvenanceGenerated {
		t.Fatalf("collision not logged correctly: %+v", collisions)
	}
}

func TestCanonicalize_CrossFamilyDuplicate(t *testing.T) {
	reg := testRegistry(t)
	a := draft([]ontology.Step{
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120)}},
	}, ontology.ProvenanceGenerated)
	b := generate.Draft{
		Taxon:  "animalia:suidae",
		Part:   "cut:belly",
		Family: "washed_cured",
		Path: []ontology.Step{
			{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120)}},
		},
		Provenance: ontology.ProvenanceCurated,
	}

	nodes, collisions, vs := New(reg, 1).Canonicalize([]generate.Draft{a, b})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	// identical identity reduction for the same (taxon, part) is one node
	// even when the drafts were authored under different families
	if len(nodes) != 1 {
		t.Fatalf("expected cross-family deduplication, got %d nodes", len(nodes))
	}
	if nodes[0].Provenance != ontology.ProvenanceCurated || nodes[0].Family != "washed_cured" {
		t.Fatalf("curated draft must win the collision: %+v", nodes[0])
	}
	if len(collisions) != 1 || collisions[0].Dropped != ontology.ProvenanceGenerated {
		t.Fatalf("collision not logged: %+v", collisions)
	}
}

func TestCanonicalize_BucketBoundary(t *testing.T) {
	reg := testRegistry(t)
	zero := draft([]ontology.Step{
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(0)}},
	}, ontology.ProvenanceGenerated)
	high := draft([]ontology.Step{
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(1)}},
	}, ontology.ProvenanceGenerated)

	nodes, _, vs := New(reg, 1).Canonicalize([]generate.Draft{zero, high})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	if len(nodes) != 2 {
		t.Fatalf("buckets on either side of the boundary must yield distinct nodes")
	}
	labels := map[string]bool{}
	for _, n := range nodes {
		labels[n.IdentityPath[0].Params["nitrite_ppm"]] = true
	}
	if !labels["nitrite_free"] || !labels["nitrite"] {
		t.Fatalf("boundary bucketing wrong: %+v", labels)
	}
}

func TestCanonicalize_BucketMissIsWarning(t *testing.T) {
	defs := ontology.Definitions{
		Transforms: []ontology.TransformDef{
			{ID: "cure", Order: intp(10), Identity: boolp(true), Params: []ontology.TransformParam{
				{Name: "nitrite_ppm", Kind: ontology.ParamNumber, Unit: "ppm", IdentityParam: true},
			}},
		},
		GlobalBuckets: map[string][]ontology.Bucket{
			"cure.nitrite_ppm": {{Label: "low", Min: f64p(0), Max: f64p(10)}},
		},
	}
	reg, _ := registry.Build(defs)
	d := draft([]ontology.Step{
		{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(500)}},
	}, ontology.ProvenanceGenerated)
	nodes, _, vs := New(reg, 1).Canonicalize([]generate.Draft{d})
	if len(nodes) != 1 {
		t.Fatalf("bucket miss must not drop the node")
	}
	if nodes[0].IdentityPath[0].Params["nitrite_ppm"] != "500" {
		t.Fatalf("bucket miss should keep the formatted value: %+v", nodes[0].IdentityPath[0])
	}
	if len(vs) != 1 || vs[0].Severity != ontology.SeverityWarn {
		t.Fatalf("bucket miss must warn: %+v", vs)
	}
}

func TestCanonicalize_FamilyIdentityOverride(t *testing.T) {
	reg := testRegistry(t)
	d := generate.Draft{
		Taxon:  "animalia:suidae",
		Part:   "cut:belly",
		Family: "washed_cured",
		Path: []ontology.Step{
			{Transform: "wash"},
			{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120)}},
		},
		Provenance: ontology.ProvenanceGenerated,
	}
	nodes, _, vs := New(reg, 1).Canonicalize([]generate.Draft{d})
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
	// washed_cured promotes wash to identity-bearing, so it survives and
	// sorts first (order 1 before cure's 10)
	if len(nodes[0].IdentityPath) != 2 || nodes[0].IdentityPath[0].Transform != "wash" {
		t.Fatalf("family identity override ignored: %+v", nodes[0].IdentityPath)
	}
}

func TestSerialize(t *testing.T) {
	steps := []ontology.IdentityStep{
		{Transform: "cure", Params: map[string]string{"nitrite_ppm": "nitrite", "method": "dry"}},
		{Transform: "smoke"},
	}
	got := Serialize("animalia:suidae", "cut:belly", steps)
	want := "animalia:suidae|cut:belly|cure{method=dry,nitrite_ppm=nitrite}|smoke"
	if got != want {
		t.Fatalf("Serialize = %q, want %q", got, want)
	}
}

func TestNodeID(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	got := NodeID("animalia:suidae:sus", "cut:belly", "dry_cured_meat", hash)
	if got != "sus:cut-belly:dry_cured_meat:abababababab" {
		t.Fatalf("NodeID = %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{float64(120), "120"},
		{float64(0.5), "0.5"},
		{true, "true"},
		{"beech", "beech"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := FormatValue(c.in); got != c.want {
			t.Fatalf("FormatValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
