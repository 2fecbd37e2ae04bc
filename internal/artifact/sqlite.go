package artifact

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"foodgraph/pkg/ontology"
)

const sqliteSchema = `
CREATE TABLE tpt_nodes (
	id            TEXT PRIMARY KEY,
	taxon         TEXT NOT NULL,
	part          TEXT NOT NULL,
	family        TEXT NOT NULL DEFAULT '',
	hash          TEXT NOT NULL,
	name          TEXT NOT NULL,
	provenance    TEXT NOT NULL,
	path          TEXT NOT NULL,
	identity_path TEXT NOT NULL,
	synonyms      TEXT NOT NULL,
	flags         TEXT NOT NULL
);
CREATE INDEX idx_tpt_nodes_taxon ON tpt_nodes(taxon);
CREATE INDEX idx_tpt_nodes_part ON tpt_nodes(part);
CREATE INDEX idx_tpt_nodes_family ON tpt_nodes(family);

CREATE TABLE substrate_edges (
	taxon      TEXT NOT NULL,
	part       TEXT NOT NULL,
	source     TEXT NOT NULL,
	from_part  TEXT NOT NULL DEFAULT '',
	proto_path TEXT NOT NULL,
	byproducts TEXT NOT NULL,
	PRIMARY KEY (taxon, part)
);

CREATE TABLE taxon_closure (
	descendant TEXT NOT NULL,
	ancestor   TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	PRIMARY KEY (descendant, ancestor)
);
CREATE INDEX idx_taxon_closure_ancestor ON taxon_closure(ancestor);

CREATE TABLE part_closure (
	descendant TEXT NOT NULL,
	ancestor   TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	PRIMARY KEY (descendant, ancestor)
);
CREATE INDEX idx_part_closure_ancestor ON part_closure(ancestor);

CREATE TABLE compile_report (
	run_id  TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`

// WriteSQLite materializes the graph as a queryable SQLite database at path.
// The file must not already exist; a run never mutates a prior database.
func WriteSQLite(path string, graph *ontology.Graph, report *ontology.Report) (retErr error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := insertNodes(tx, graph.Nodes); err != nil {
		retErr = err
		return retErr
	}
	if err := insertEdges(tx, graph.Edges); err != nil {
		retErr = err
		return retErr
	}
	if err := insertClosure(tx, "taxon_closure", graph.TaxonClosure); err != nil {
		retErr = err
		return retErr
	}
	if err := insertClosure(tx, "part_closure", graph.PartClosure); err != nil {
		retErr = err
		return retErr
	}
	payload, err := EncodeReport(report)
	if err != nil {
		retErr = err
		return retErr
	}
	if _, err := tx.Exec(`INSERT INTO compile_report(run_id,payload) VALUES(?,?)`, report.RunID, string(payload)); err != nil {
		retErr = fmt.Errorf("insert report: %w", err)
		return retErr
	}
	if err := tx.Commit(); err != nil {
		retErr = fmt.Errorf("commit: %w", err)
		return retErr
	}
	return nil
}

func insertNodes(tx *sql.Tx, nodes []ontology.TPTNode) error {
	stmt, err := tx.Prepare(`INSERT INTO tpt_nodes(id,taxon,part,family,hash,name,provenance,path,identity_path,synonyms,flags)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare nodes: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, n := range nodes {
		path, err := jsonColumn(n.Path)
		if err != nil {
			return err
		}
		idPath, err := jsonColumn(n.IdentityPath)
		if err != nil {
			return err
		}
		synonyms, err := jsonColumn(n.Synonyms)
		if err != nil {
			return err
		}
		flags, err := jsonColumn(n.Flags)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(n.ID, n.Taxon, n.Part, n.Family, n.Hash, n.Name, string(n.Provenance), path, idPath, synonyms, flags); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

func insertEdges(tx *sql.Tx, edges []ontology.SubstrateEdge) error {
	stmt, err := tx.Prepare(`INSERT INTO substrate_edges(taxon,part,source,from_part,proto_path,byproducts) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range edges {
		protoPath, err := jsonColumn(e.ProtoPath)
		if err != nil {
			return err
		}
		byproducts, err := jsonColumn(e.Byproducts)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.Taxon, e.Part, e.Source, e.FromPart, protoPath, byproducts); err != nil {
			return fmt.Errorf("insert edge (%s,%s): %w", e.Taxon, e.Part, err)
		}
	}
	return nil
}

func insertClosure(tx *sql.Tx, table string, rows []ontology.ClosureRow) error {
	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s(descendant,ancestor,depth) VALUES(?,?,?)`, table))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()
	for _, row := range rows {
		if _, err := stmt.Exec(row.Descendant, row.Ancestor, row.Depth); err != nil {
			return fmt.Errorf("insert %s row (%s,%s): %w", table, row.Descendant, row.Ancestor, err)
		}
	}
	return nil
}

// jsonColumn encodes a slice column as compact JSON, normalizing nil to [].
func jsonColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
