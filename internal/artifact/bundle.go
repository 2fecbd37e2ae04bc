// Package artifact turns a compiled graph and its report into the published
// output set: a JSON bundle, a queryable SQLite database, and an optional
// relational publish. Every byte written here is deterministic for a given
// input graph so artifact diffs reflect ontology changes only.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"

	"foodgraph/pkg/ontology"
)

// Bundle file names inside a run directory.
const (
	GraphFile    = "graph.json"
	ReportFile   = "report.json"
	DatabaseFile = "graph.db"
	ManifestFile = "manifest.json"
)

// Manifest is written last and acts as the commit point of a publish: a run
// directory without one is an aborted upload and safe to garbage collect.
type Manifest struct {
	RunID     string            `json:"run_id"`
	Files     []ManifestEntry   `json:"files"`
	Counts    map[string]int    `json:"counts"`
	Checksums map[string]string `json:"checksums"`
}

// ManifestEntry records one published file.
type ManifestEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

// EncodeGraph renders the graph as indented JSON. Node, edge, and closure
// slices are already sorted by their canonical keys, and encoding/json
// emits map keys in sorted order, so the output is byte-stable.
func EncodeGraph(graph *ontology.Graph) ([]byte, error) {
	return encodeJSON(graph)
}

// EncodeReport renders the compile report as indented JSON with violations
// in their canonical order.
func EncodeReport(report *ontology.Report) ([]byte, error) {
	sorted := *report
	sorted.Violations = report.Sorted()
	return encodeJSON(&sorted)
}

// EncodeManifest renders the manifest as indented JSON.
func EncodeManifest(m Manifest) ([]byte, error) {
	return encodeJSON(m)
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode artifact json: %w", err)
	}
	return buf.Bytes(), nil
}
