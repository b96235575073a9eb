package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsert_EmptyRows(t *testing.T) {
	n, err := Upsert(context.TODO(), nil, UpsertConfig{
		Table:        "gis.current",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpsert_NoColumns(t *testing.T) {
	_, err := Upsert(context.TODO(), nil, UpsertConfig{
		Table:        "gis.current",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestUpsert_NoConflictKeys(t *testing.T) {
	_, err := Upsert(context.TODO(), nil, UpsertConfig{
		Table:   "gis.current",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "gis.current",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_gis_current" (LIKE "gis"."current" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_gis_current"}, []string{"id", "name"}).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(UpsertSQL(cfg))).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := Upsert(context.Background(), mock, cfg, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{Table: "current", Columns: []string{"id"}, ConflictKeys: []string{"id"}}

	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_current"}, []string{"id"}).WillReturnError(fmt.Errorf("disk full"))

	_, err = Upsert(context.Background(), mock, cfg, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for current")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := UpsertSQL(UpsertConfig{
		Table:        "gis.current",
		Columns:      []string{"feature_id", "status", "geom"},
		ConflictKeys: []string{"feature_id"},
	})
	assert.Equal(t,
		`INSERT INTO "gis"."current" ("feature_id", "status", "geom") SELECT "feature_id", "status", "geom" FROM "_tmp_upsert_gis_current" ON CONFLICT ("feature_id") DO UPDATE SET "status" = EXCLUDED."status", "geom" = EXCLUDED."geom"`,
		got)

	keysOnly := UpsertSQL(UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}})
	assert.Contains(t, keysOnly, "ON CONFLICT (\"id\") DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"gis.incident_features", `"gis"."incident_features"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
