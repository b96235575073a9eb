package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	created_at    DATETIME NOT NULL,
	feature_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	feature_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	label      TEXT,
	remarks    TEXT,
	metadata   TEXT NOT NULL,
	geometry   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_features_feature_id ON features(feature_id);
`

// SQLite archives each run and its features in a local database. A run is
// written in one transaction.
type SQLite struct {
	dsn string
}

// NewSQLite creates a SQLite sink for the database at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{dsn: path}
}

// Name implements Sink.
func (s *SQLite) Name() string { return "sqlite" }

func openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite sink: open")
	}
	// Pragmas are per connection; one connection keeps them in force for the
	// submit transaction.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite sink: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite sink: migrate")
	}
	return db, nil
}

// Submit implements Sink.
func (s *SQLite) Submit(ctx context.Context, sub *Submission) error {
	db, err := openSQLite(s.dsn)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite sink: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, feature_count) VALUES (?, ?, ?)`,
		sub.RunID, sub.CreatedAt.UTC().Format(time.RFC3339), sub.Collection.Len(),
	); err != nil {
		return eris.Wrap(err, "sqlite sink: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (run_id, seq, feature_id, kind, label, remarks, metadata, geometry)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite sink: prepare feature insert")
	}
	defer stmt.Close() //nolint:errcheck

	if sub.Collection != nil {
		for i := range sub.Collection.Features {
			f := &sub.Collection.Features[i]
			kind, _ := f.Kind()
			md, err := json.Marshal(f.Metadata)
			if err != nil {
				return eris.Wrapf(err, "sqlite sink: marshal metadata for %s", f.ID)
			}
			g, err := geojson.Marshal(f.Geometry)
			if err != nil {
				return eris.Wrapf(err, "sqlite sink: marshal geometry for %s", f.ID)
			}
			if _, err := stmt.ExecContext(ctx, sub.RunID, i, f.ID, string(kind), f.Label, f.Remarks, string(md), string(g)); err != nil {
				return eris.Wrapf(err, "sqlite sink: insert feature %s", f.ID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite sink: commit")
	}
	return nil
}
