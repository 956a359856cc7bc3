// Package schema implements schema evolution (spec §4.3): merging
// user-submitted DDL into the live in-memory schema and applying it
// to the primary database under the writer lock.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Table is a parsed table definition: its name, its own CREATE TABLE
// statement, and the CREATE INDEX statements that reference it.
type Table struct {
	Name    string
	SQL     string
	Indexes []string
}

// Schema is the in-memory, point-in-time view of the live database
// schema: a name-keyed set of tables. It is treated as immutable once
// published — merge always clones, overlays, and swaps, never
// mutates a published Schema in place.
type Schema struct {
	Tables map[string]Table
}

// Clone returns a deep-enough copy for overlay: merge never mutates
// the schema a concurrent reader might be holding.
func (s *Schema) Clone() *Schema {
	out := &Schema{Tables: make(map[string]Table, len(s.Tables))}
	for k, v := range s.Tables {
		idx := make([]string, len(v.Indexes))
		copy(idx, v.Indexes)
		out.Tables[k] = Table{Name: v.Name, SQL: v.SQL, Indexes: idx}
	}
	return out
}

// Store holds the live schema behind a reader-preferring lock (spec
// §5: "Matcher map and schema are guarded by reader-preferring
// locks").
type Store struct {
	mu     sync.RWMutex
	schema *Schema
}

// NewStore creates a Store with an empty starting schema.
func NewStore() *Store {
	return &Store{schema: &Schema{Tables: make(map[string]Table)}}
}

// Current returns the live schema. Callers must not mutate it.
func (s *Store) Current() *Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// swap publishes a new schema, replacing the old one atomically for
// future readers.
func (s *Store) swap(next *Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = next
}

// ParseDDL extracts table definitions from a batch of DDL statements
// by executing them against a scratch in-memory database and reading
// back sqlite_master — the database's own catalog is the parser, so
// this package carries no separate SQL grammar dependency. statements
// must be non-empty.
func ParseDDL(ctx context.Context, statements []string) (map[string]Table, error) {
	if len(statements) == 0 {
		return nil, fmt.Errorf("schema: empty statement list")
	}

	scratch, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("schema: open scratch db: %w", err)
	}
	defer scratch.Close()

	for i, stmt := range statements {
		if _, err := scratch.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("schema: apply statement %d: %w", i, err)
		}
	}

	rows, err := scratch.QueryContext(ctx,
		`SELECT type, name, tbl_name, sql FROM sqlite_master
		  WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("schema: read catalog: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]Table)
	for rows.Next() {
		var typ, name, tblName, sqlText string
		if err := rows.Scan(&typ, &name, &tblName, &sqlText); err != nil {
			return nil, fmt.Errorf("schema: scan catalog row: %w", err)
		}

		switch typ {
		case "table":
			t := tables[tblName]
			t.Name = tblName
			t.SQL = sqlText
			tables[tblName] = t
		case "index":
			t := tables[tblName]
			t.Name = tblName
			t.Indexes = append(t.Indexes, sqlText)
			tables[tblName] = t
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: iterate catalog: %w", err)
	}
	return tables, nil
}

// Merger applies parsed DDL to the live database and schema under the
// writer lock. The lock acquisition itself is the caller's
// responsibility (spec §4.3 "acquires the writer lock"); Merger.Apply
// assumes it is already held.
type Merger struct {
	store *Store
}

// NewMerger builds a Merger bound to a schema Store.
func NewMerger(store *Store) *Merger {
	return &Merger{store: store}
}

// Apply overlays parsed tables onto a clone of the current schema
// (overwrite-by-name), applies the diff to db under tx, records each
// table in __corro_schema as api-origin, and on success swaps the
// in-memory schema. On any failure the in-memory schema is left
// untouched — only the transaction, which the caller rolls back, is
// affected.
func (m *Merger) Apply(ctx context.Context, tx *sql.Tx, parsed map[string]Table) error {
	next := m.store.Current().Clone()
	for name, t := range parsed {
		next.Tables[name] = t
	}

	for name, t := range parsed {
		if err := applyTable(ctx, tx, name, t); err != nil {
			return err
		}
	}

	m.store.swap(next)
	return nil
}

// applyTable creates the table and its indexes against the real
// database by running their CREATE statements as given; a table that
// already exists makes that CREATE fail, and existing tables are not
// altered. It then re-describes the table in __corro_schema from the
// database's own catalog — the same "re-enumerable" rule ParseDDL
// uses, applied now against the writer's transaction instead of a
// scratch database.
func applyTable(ctx context.Context, tx *sql.Tx, name string, t Table) error {
	if _, err := tx.ExecContext(ctx, t.SQL); err != nil {
		return fmt.Errorf("schema: create table %s: %w", name, err)
	}
	for _, idx := range t.Indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("schema: create index for %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM __corro_schema WHERE tbl_name = ?`, name); err != nil {
		return fmt.Errorf("schema: clear %s from catalog table: %w", name, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT type, name, sql FROM sqlite_master WHERE tbl_name = ? AND sql IS NOT NULL`, name)
	if err != nil {
		return fmt.Errorf("schema: read live catalog for %s: %w", name, err)
	}

	type row struct{ typ, rname, sqlText string }
	var toInsert []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.typ, &r.rname, &r.sqlText); err != nil {
			rows.Close()
			return fmt.Errorf("schema: scan live catalog row for %s: %w", name, err)
		}
		toInsert = append(toInsert, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("schema: iterate live catalog for %s: %w", name, err)
	}
	rows.Close()

	for _, r := range toInsert {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO __corro_schema (tbl_name, type, name, sql, source) VALUES (?, ?, ?, ?, 'api')`,
			name, r.typ, r.rname, r.sqlText); err != nil {
			return fmt.Errorf("schema: insert catalog row for %s: %w", name, err)
		}
	}
	return nil
}
