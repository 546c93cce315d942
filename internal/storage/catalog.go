package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schemaVersion = 2

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	param_name TEXT NOT NULL,
	method     TEXT NOT NULL,
	param_min  REAL NOT NULL,
	param_max  REAL NOT NULL,
	branches   INTEGER NOT NULL,
	points     INTEGER NOT NULL,
	folds      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// CatalogEntry is one row of the run catalog.
type CatalogEntry struct {
	ID        string
	Model     string
	ParamName string
	Method    string
	ParamMin  float64
	ParamMax  float64
	Branches  int
	Points    int
	Folds     int
	Created   time.Time
}

func openCatalog(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return db, nil
}

// InitSchema creates the catalog tables if they do not exist yet.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// insertRun stores created_at as unix nanoseconds, so ordering by it is
// time order.
func insertRun(ctx context.Context, db *sql.DB, meta *RunMetadata) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (id, model, param_name, method, param_min, param_max, branches, points, folds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Model, meta.ParamName, meta.Method, meta.ParamMin, meta.ParamMax,
		len(meta.Branches), meta.Points(), meta.Folds(), meta.Timestamp.UnixNano())
	return err
}

func listRuns(ctx context.Context, db *sql.DB) ([]CatalogEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, model, param_name, method, param_min, param_max, branches, points, folds, created_at
		FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	entries := make([]CatalogEntry, 0)
	for rows.Next() {
		var e CatalogEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.Model, &e.ParamName, &e.Method, &e.ParamMin, &e.ParamMax,
			&e.Branches, &e.Points, &e.Folds, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		e.Created = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
