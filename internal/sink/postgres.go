package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/incident-etl/internal/db"
	"github.com/sells-group/incident-etl/internal/model"
)

// SRID is the spatial reference of every stored geometry (WGS 84).
const SRID = 4326

const runsTable = "incident_runs"

var (
	historyColumns = []string{"run_id", "seq", "feature_id", "kind", "label", "remarks", "metadata", "geom"}
	currentColumns = []string{"feature_id", "run_id", "kind", "label", "remarks", "metadata", "geom", "updated_at"}
)

// Postgres writes runs into PostGIS: a run row, the full feature history via
// COPY, and the latest state per feature id via upsert, all in one
// transaction.
type Postgres struct {
	dsn   string
	table string
	pool  db.Pool
}

// NewPostgres creates a PostGIS sink. The connection is opened on first use.
func NewPostgres(dsn, table string) *Postgres {
	if table == "" {
		table = "incident_features"
	}
	return &Postgres{dsn: dsn, table: table}
}

// NewPostgresWithPool creates a PostGIS sink on an existing pool.
func NewPostgresWithPool(pool db.Pool, table string) *Postgres {
	p := NewPostgres("", table)
	p.pool = pool
	return p
}

// Name implements Sink.
func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) currentTable() string {
	return p.table + "_current"
}

func (p *Postgres) conn(ctx context.Context) (db.Pool, func(), error) {
	if p.pool != nil {
		return p.pool, func() {}, nil
	}
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres sink: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, eris.Wrap(err, "postgres sink: ping")
	}
	return pool, pool.Close, nil
}

// MigrationSQL returns the DDL for the runs, history and current tables.
func (p *Postgres) MigrationSQL() string {
	hist := db.SanitizeTable(p.table)
	cur := db.SanitizeTable(p.currentTable())
	runs := db.SanitizeTable(runsTable)
	name := db.Identifier(p.table)
	base := name[len(name)-1]
	idx := func(suffix string) string {
		return db.Identifier("idx_" + base + "_" + suffix).Sanitize()
	}
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS %[1]s (
	id            UUID PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	feature_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS %[2]s (
	run_id     UUID NOT NULL REFERENCES %[1]s(id),
	seq        INTEGER NOT NULL,
	feature_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	label      TEXT,
	remarks    TEXT,
	metadata   JSONB NOT NULL,
	geom       geometry(Geometry, %[4]d) NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS %[3]s (
	feature_id TEXT PRIMARY KEY,
	run_id     UUID NOT NULL,
	kind       TEXT NOT NULL,
	label      TEXT,
	remarks    TEXT,
	metadata   JSONB NOT NULL,
	geom       geometry(Geometry, %[4]d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS %[5]s ON %[2]s USING GIST (geom);
CREATE INDEX IF NOT EXISTS %[6]s ON %[3]s USING GIST (geom);
`, runs, hist, cur, SRID, idx("geom"), idx("current_geom"))
}

// Migrate creates the sink tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	pool, closeFn, err := p.conn(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := pool.Exec(ctx, p.MigrationSQL()); err != nil {
		return eris.Wrap(err, "postgres sink: migrate")
	}
	return nil
}

// Submit implements Sink.
func (p *Postgres) Submit(ctx context.Context, sub *Submission) error {
	history, current, err := p.rows(sub)
	if err != nil {
		return err
	}

	pool, closeFn, err := p.conn(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres sink: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, created_at, feature_count) VALUES ($1, $2, $3)", db.SanitizeTable(runsTable)),
		sub.RunID, sub.CreatedAt, sub.Collection.Len(),
	); err != nil {
		return eris.Wrap(err, "postgres sink: insert run")
	}

	if _, err := db.CopyFrom(ctx, tx, p.table, historyColumns, history); err != nil {
		return eris.Wrap(err, "postgres sink: copy features")
	}

	if _, err := db.Upsert(ctx, tx, db.UpsertConfig{
		Table:        p.currentTable(),
		Columns:      currentColumns,
		ConflictKeys: []string{"feature_id"},
	}, current); err != nil {
		return eris.Wrap(err, "postgres sink: upsert current")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres sink: commit")
	}
	return nil
}

// rows builds COPY rows for the history table and upsert rows for the
// current table. Duplicate feature ids keep the last occurrence so a single
// upsert never touches the same row twice.
func (p *Postgres) rows(sub *Submission) (history, current [][]any, err error) {
	if sub.Collection == nil {
		return nil, nil, nil
	}

	latest := make(map[string]int)
	for i := range sub.Collection.Features {
		f := &sub.Collection.Features[i]
		kind, _ := f.Kind()
		md, err := json.Marshal(f.Metadata)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "postgres sink: marshal metadata for %s", f.ID)
		}
		g, err := EncodeEWKB(f.Geometry)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "postgres sink: encode geometry for %s", f.ID)
		}

		history = append(history, []any{sub.RunID, i, f.ID, string(kind), f.Label, f.Remarks, md, g})

		row := []any{f.ID, sub.RunID, string(kind), f.Label, f.Remarks, md, g, sub.CreatedAt}
		if j, ok := latest[f.ID]; ok {
			current[j] = row
			continue
		}
		latest[f.ID] = len(current)
		current = append(current, row)
	}
	return history, current, nil
}

// EncodeEWKB encodes g as little-endian EWKB tagged with SRID 4326.
func EncodeEWKB(g geom.T) ([]byte, error) {
	var tagged geom.T
	switch t := g.(type) {
	case *geom.Point:
		tagged = t.Clone().SetSRID(SRID)
	case *geom.LineString:
		tagged = t.Clone().SetSRID(SRID)
	case *geom.Polygon:
		tagged = t.Clone().SetSRID(SRID)
	default:
		return nil, model.NewProtocolError("encode geometry", "unsupported geometry %T", g)
	}
	return ewkb.Marshal(tagged, ewkb.NDR)
}
