package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"foodgraph/pkg/ontology"
)

const pgDriver = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tpt_runs (
	run_id      TEXT PRIMARY KEY,
	graph       JSONB NOT NULL,
	report      JSONB NOT NULL,
	published_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PublishPostgres uploads the full run to a relational mirror for ad hoc
// querying. One row per run; re-publishing a run id is an error, mirroring
// the create-only contract of the blob stores.
func PublishPostgres(ctx context.Context, dsn string, graph *ontology.Graph, report *ontology.Report) (retErr error) {
	if dsn == "" {
		return fmt.Errorf("postgres dsn required")
	}
	openMu.Lock()
	db, err := sqlOpen(pgDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure runs table: %w", err)
	}
	graphJSON, err := EncodeGraph(graph)
	if err != nil {
		return err
	}
	reportJSON, err := EncodeReport(report)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO tpt_runs(run_id,graph,report) VALUES($1,$2,$3)`,
		report.RunID, graphJSON, reportJSON); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
