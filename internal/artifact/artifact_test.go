package artifact

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"foodgraph/internal/blob"
	"foodgraph/pkg/ontology"
)

func testGraph() *ontology.Graph {
	return &ontology.Graph{
		Nodes: []ontology.TPTNode{
			{
				ID:    "suidae:cut-belly:dry_cured_meat:abababababab",
				Taxon: "animalia:suidae",
				Part:  "cut:belly",
				Path: []ontology.Step{
					{Transform: "cure", Params: map[string]any{"nitrite_ppm": float64(120), "method": "dry"}},
				},
				IdentityPath: []ontology.IdentityStep{
					{Transform: "cure", Params: map[string]string{"nitrite_ppm": "nitrite"}},
				},
				Hash:       strings.Repeat("ab", 32),
				Name:       "Pancetta",
				Family:     "dry_cured_meat",
				Flags:      []string{"nitrite_present"},
				Provenance: ontology.ProvenanceCurated,
			},
		},
		Edges: []ontology.SubstrateEdge{
			{Taxon: "animalia:suidae", Part: "cut:belly", Source: "applicability.yaml#0"},
		},
		TaxonClosure: []ontology.ClosureRow{
			{Descendant: "animalia:suidae", Ancestor: "animalia:suidae", Depth: 0},
		},
		PartClosure: []ontology.ClosureRow{
			{Descendant: "cut:belly", Ancestor: "cut:belly", Depth: 0},
		},
	}
}

func testReport() *ontology.Report {
	report := ontology.NewReport("run-1")
	report.Count("nodes", 1)
	report.Add(ontology.Violation{
		Category: ontology.CategorySchema,
		Severity: ontology.SeverityWarn,
		Message:  "value 500 falls outside every bucket",
	})
	return report
}

func TestEncodeGraph_Deterministic(t *testing.T) {
	graph := testGraph()
	first, err := EncodeGraph(graph)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EncodeGraph(graph)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("graph encoding is not byte-stable")
		}
	}
	// map params serialize with sorted keys
	if !bytes.Contains(first, []byte(`"method": "dry"`)) {
		t.Fatalf("params missing from encoding: %s", first)
	}
}

func TestWriteSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	if err := WriteSQLite(path, testGraph(), testReport()); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM tpt_nodes`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("node rows: %d %v", n, err)
	}
	var name, flags string
	if err := db.QueryRow(`SELECT name, flags FROM tpt_nodes WHERE taxon = 'animalia:suidae'`).Scan(&name, &flags); err != nil {
		t.Fatalf("query node: %v", err)
	}
	if name != "Pancetta" || flags != `["nitrite_present"]` {
		t.Fatalf("node columns wrong: %q %q", name, flags)
	}
	if err := db.QueryRow(`SELECT count(*) FROM substrate_edges`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("edge rows: %d %v", n, err)
	}
	var runID string
	if err := db.QueryRow(`SELECT run_id FROM compile_report`).Scan(&runID); err != nil || runID != "run-1" {
		t.Fatalf("report row: %q %v", runID, err)
	}
}

func TestPublisher_ManifestLast(t *testing.T) {
	store := blob.NewMemory()
	manifest, err := NewPublisher(store, nil).Publish(context.Background(), testGraph(), testReport())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if manifest.RunID != "run-1" || len(manifest.Files) != 3 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	infos, err := store.List(context.Background(), "runs/run-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		"runs/run-1/" + DatabaseFile,
		"runs/run-1/" + GraphFile,
		"runs/run-1/" + ManifestFile,
		"runs/run-1/" + ReportFile,
	}
	if len(infos) != len(want) {
		t.Fatalf("published files: %+v", infos)
	}
	for i, info := range infos {
		if info.Key != want[i] {
			t.Fatalf("file %d = %q, want %q", i, info.Key, want[i])
		}
	}
	if manifest.Checksums[GraphFile] == "" {
		t.Fatalf("manifest is missing checksums: %+v", manifest)
	}
}

func TestPublisher_RunIsImmutable(t *testing.T) {
	store := blob.NewMemory()
	pub := NewPublisher(store, nil)
	if _, err := pub.Publish(context.Background(), testGraph(), testReport()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := pub.Publish(context.Background(), testGraph(), testReport()); err == nil {
		t.Fatalf("re-publishing the same run id must fail")
	}
}
