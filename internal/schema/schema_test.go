package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestParseDDLRejectsEmpty(t *testing.T) {
	_, err := ParseDDL(context.Background(), nil)
	assert.Error(t, err)
}

func TestParseDDLExtractsTablesAndIndexes(t *testing.T) {
	stmts := []string{
		`CREATE TABLE tests (id TEXT PRIMARY KEY, text TEXT)`,
		`CREATE INDEX idx_tests_text ON tests(text)`,
	}
	tables, err := ParseDDL(context.Background(), stmts)
	require.NoError(t, err)

	require.Contains(t, tables, "tests")
	tb := tables["tests"]
	assert.Contains(t, tb.SQL, "CREATE TABLE")
	require.Len(t, tb.Indexes, 1)
	assert.Contains(t, tb.Indexes[0], "idx_tests_text")
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE __corro_schema (
		tbl_name TEXT NOT NULL, type TEXT NOT NULL, name TEXT NOT NULL,
		sql TEXT, source TEXT NOT NULL DEFAULT 'api')`)
	require.NoError(t, err)
	return db
}

func TestMergerApplyPublishesSchemaAndCatalogRows(t *testing.T) {
	db := openDB(t)
	store := NewStore()
	merger := NewMerger(store)

	stmts := []string{`CREATE TABLE tests (id TEXT PRIMARY KEY, text TEXT)`}
	parsed, err := ParseDDL(context.Background(), stmts)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, merger.Apply(context.Background(), tx, parsed))
	require.NoError(t, tx.Commit())

	assert.Contains(t, store.Current().Tables, "tests")

	var sqlText string
	require.NoError(t, db.QueryRow(
		`SELECT sql FROM __corro_schema WHERE tbl_name = 'tests' AND type = 'table'`).Scan(&sqlText))
	assert.Contains(t, sqlText, "CREATE TABLE")

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM tests`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMergerApplyLeavesSchemaUntouchedOnFailure(t *testing.T) {
	db := openDB(t)
	store := NewStore()
	merger := NewMerger(store)

	bad := map[string]Table{"broken": {Name: "broken", SQL: `NOT VALID SQL`}}

	tx, err := db.Begin()
	require.NoError(t, err)
	err = merger.Apply(context.Background(), tx, bad)
	require.Error(t, err)
	_ = tx.Rollback()

	assert.NotContains(t, store.Current().Tables, "broken")
}
