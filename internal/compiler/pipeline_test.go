package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"foodgraph/internal/blob"
	"foodgraph/pkg/ontology"
)

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func scenarioRules() map[string]string {
	return map[string]string{
		"taxa.yaml": `
- id: animalia
  name: Animals
  rank: kingdom
- id: animalia:suidae
  name: Pigs
  rank: family
  parent_id: animalia
`,
		"parts.yaml": `
- id: cut:belly
  name: Belly
  category: meat_cut
  aliases:
    - name: pork belly
      taxon_prefix: animalia:suidae
`,
		"transforms.yaml": `
- id: cure
  name: Curing
  order: 10
  identity: true
  params:
    - name: nitrite_ppm
      kind: number
      unit: ppm
      identity_param: true
- id: smoke
  name: Smoking
  order: 20
  identity: true
`,
		"families.yaml": `
- id: dry_cured_meat
  name: Dry cured meat
  skeleton:
    - transform: cure
    - transform: smoke
`,
		"applicability.yaml": `
- part: cut:belly
  applies_to: animalia:suidae
`,
		"buckets.yaml": `
cure.nitrite_ppm:
  - label: nitrite_free
    max: 1
  - label: nitrite
    min: 1
`,
		"flag_rules.yaml": `
- id: smoked
  category: dietary
  flag: smoked
  condition:
    transform_present: smoke
- id: nitrite-present
  category: safety
  flag: nitrite_present
  condition:
    param_compare:
      transform: cure
      param: nitrite_ppm
      op: gt
      value: 0
- id: nitrite-free
  category: dietary
  flag: nitrite_free
  condition:
    all_of:
      - transform_present: cure
      - none_of:
          - param_compare:
              transform: cure
              param: nitrite_ppm
              op: gt
              value: 0
`,
		"curated.yaml": `
- taxon: animalia:suidae
  part: cut:belly
  family: dry_cured_meat
  path:
    - transform: cure
      params:
        nitrite_ppm: 120
    - transform: smoke
  name: Smoked pancetta
- taxon: animalia:suidae
  part: cut:belly
  family: dry_cured_meat
  path:
    - transform: cure
      params:
        nitrite_ppm: 0
    - transform: smoke
  name: Nitrite-free smoked pancetta
`,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := writeRules(t, scenarioRules())
	store := blob.NewMemory()
	cfg := Config{RulesDir: dir, Workers: 2, ApplicabilityThreshold: DefaultApplicabilityThreshold}

	graph, report, err := New(cfg, store, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v (violations %+v)", err, report.Violations)
	}
	if len(graph.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %+v", len(graph.Nodes), graph.Nodes)
	}
	// the two curated entries differ only in the nitrite bucket, so they
	// yield distinct ids and complementary flags
	if graph.Nodes[0].ID == graph.Nodes[1].ID {
		t.Fatalf("nitrite buckets must separate identities")
	}
	byName := map[string]ontology.TPTNode{}
	for _, n := range graph.Nodes {
		byName[n.Name] = n
	}
	cured := byName["Smoked pancetta"]
	free := byName["Nitrite-free smoked pancetta"]
	if len(cured.Flags) != 2 || cured.Flags[0] != "nitrite_present" || cured.Flags[1] != "smoked" {
		t.Fatalf("cured flags = %+v", cured.Flags)
	}
	if len(free.Flags) != 2 || free.Flags[0] != "nitrite_free" || free.Flags[1] != "smoked" {
		t.Fatalf("nitrite-free flags = %+v", free.Flags)
	}
	// taxon-scoped part alias lands in synonyms
	if len(cured.Synonyms) != 1 || cured.Synonyms[0] != "pork belly" {
		t.Fatalf("synonyms = %+v", cured.Synonyms)
	}
	if report.Counts["nodes"] != 2 || report.Counts["edges"] != 1 {
		t.Fatalf("report counts wrong: %+v", report.Counts)
	}
	// the artifact set is committed by the manifest
	infos, err := store.List(context.Background(), "runs/"+report.RunID+"/")
	if err != nil || len(infos) != 4 {
		t.Fatalf("published artifact set wrong: %v %+v", err, infos)
	}
}

func TestRun_Deterministic(t *testing.T) {
	dir := writeRules(t, scenarioRules())
	cfg := Config{RulesDir: dir, Workers: 4, ApplicabilityThreshold: DefaultApplicabilityThreshold}

	first, _, err := New(cfg, nil, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := New(cfg, nil, nil, nil).Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(first.Nodes) != len(again.Nodes) {
			t.Fatalf("node count changed between runs")
		}
		for j := range first.Nodes {
			if first.Nodes[j].ID != again.Nodes[j].ID || first.Nodes[j].Hash != again.Nodes[j].Hash {
				t.Fatalf("node identity changed between runs: %+v vs %+v", first.Nodes[j], again.Nodes[j])
			}
		}
	}
}

func TestRun_BlockedRunPublishesNothing(t *testing.T) {
	files := scenarioRules()
	files["curated.yaml"] += `
- taxon: animalia:suidae
  part: cut:shoulder
  family: dry_cured_meat
  path:
    - transform: cure
`
	dir := writeRules(t, files)
	store := blob.NewMemory()
	cfg := Config{RulesDir: dir, Workers: 1, ApplicabilityThreshold: DefaultApplicabilityThreshold}

	graph, report, err := New(cfg, store, nil, nil).Run(context.Background())
	var cerr *ontology.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if graph != nil {
		t.Fatalf("blocked run must not return a graph")
	}
	if !report.HasFatal() {
		t.Fatalf("report should carry the blocking violation: %+v", report.Violations)
	}
	infos, _ := store.List(context.Background(), "")
	if len(infos) != 0 {
		t.Fatalf("blocked run must publish nothing: %+v", infos)
	}
}

func TestRun_ApplicabilityThresholdAborts(t *testing.T) {
	files := scenarioRules()
	// restrict cure to a category no part carries, so every draft fails
	files["transform_applicability.yaml"] = `
- transform: cure
  categories: [dairy]
`
	dir := writeRules(t, files)
	cfg := Config{RulesDir: dir, Workers: 1, ApplicabilityThreshold: DefaultApplicabilityThreshold}

	_, report, err := New(cfg, nil, nil, nil).Run(context.Background())
	var cerr *ontology.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if report.Counts["drafts_rejected"] != 2 {
		t.Fatalf("rejection accounting wrong: %+v", report.Counts)
	}
	blocked := false
	for _, v := range report.Violations {
		if v.Category == ontology.CategoryApplicability && v.Severity == ontology.SeverityBlock {
			blocked = true
		}
	}
	if !blocked {
		t.Fatalf("threshold breach must block the run: %+v", report.Violations)
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Setenv("FOODGRAPH_RULES_DIR", "")
	t.Setenv("FOODGRAPH_WORKERS", "")
	t.Setenv("FOODGRAPH_APPLICABILITY_THRESHOLD", "")
	t.Setenv("FOODGRAPH_POSTGRES_DSN", "")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.RulesDir != "./rules" || cfg.Workers < 1 || cfg.ApplicabilityThreshold != DefaultApplicabilityThreshold {
		t.Fatalf("defaults wrong: %+v", cfg)
	}

	t.Setenv("FOODGRAPH_WORKERS", "nope")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("invalid worker count must fail")
	}
}

func TestConfig_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rules_dir: /srv/rules\nworkers: 3\napplicability_threshold: 0.1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RulesDir != "/srv/rules" || cfg.Workers != 3 || cfg.ApplicabilityThreshold != 0.1 {
		t.Fatalf("config wrong: %+v", cfg)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing config file must fail")
	}
}
