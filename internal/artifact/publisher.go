package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"foodgraph/internal/blob"
	"foodgraph/pkg/ontology"
)

// Publisher stages a run's artifact set locally and uploads it to a blob
// store. The manifest goes up last so readers can treat its presence as the
// run being complete.
type Publisher struct {
	store  blob.Store
	logger *slog.Logger
}

// NewPublisher constructs a publisher writing to store.
func NewPublisher(store blob.Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger}
}

// Publish writes the JSON bundle and SQLite database for the run and uploads
// them under runs/<run-id>/. It returns the manifest describing what was
// published.
func (p *Publisher) Publish(ctx context.Context, graph *ontology.Graph, report *ontology.Report) (Manifest, error) {
	staging, err := os.MkdirTemp("", "foodgraph-run-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	graphJSON, err := EncodeGraph(graph)
	if err != nil {
		return Manifest{}, err
	}
	reportJSON, err := EncodeReport(report)
	if err != nil {
		return Manifest{}, err
	}
	dbPath := filepath.Join(staging, DatabaseFile)
	if err := WriteSQLite(dbPath, graph, report); err != nil {
		return Manifest{}, fmt.Errorf("write sqlite artifact: %w", err)
	}
	dbBytes, err := os.ReadFile(dbPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("read staged database: %w", err)
	}

	manifest := Manifest{
		RunID:     report.RunID,
		Counts:    report.Counts,
		Checksums: make(map[string]string),
	}
	files := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{GraphFile, graphJSON, "application/json"},
		{ReportFile, reportJSON, "application/json"},
		{DatabaseFile, dbBytes, "application/vnd.sqlite3"},
	}
	prefix := "runs/" + report.RunID + "/"
	for _, f := range files {
		info, err := p.store.Put(ctx, prefix+f.name, bytes.NewReader(f.data), f.contentType)
		if err != nil {
			return Manifest{}, fmt.Errorf("publish %s: %w", f.name, err)
		}
		manifest.Files = append(manifest.Files, ManifestEntry{Name: f.name, Size: info.Size, ETag: info.ETag})
		manifest.Checksums[f.name] = info.ETag
		p.logger.Info("published artifact file", "run_id", report.RunID, "file", f.name, "bytes", info.Size)
	}

	manifestJSON, err := EncodeManifest(manifest)
	if err != nil {
		return Manifest{}, err
	}
	if _, err := p.store.Put(ctx, prefix+ManifestFile, bytes.NewReader(manifestJSON), "application/json"); err != nil {
		return Manifest{}, fmt.Errorf("publish manifest: %w", err)
	}
	p.logger.Info("run published", "run_id", report.RunID, "files", len(manifest.Files)+1)
	return manifest, nil
}
