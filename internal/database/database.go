// Package database opens the primary SQLite database and manages the
// three connection pools described in spec §5: a single exclusive
// writer connection, a shared pool of ordinary read connections, and
// a dedicated-connection pool reserved for long-lived matcher
// snapshot reads.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// dsn builds the modernc.org/sqlite connection string with the
// pragmas the write-broadcast core relies on: WAL for concurrent
// readers during a writer transaction, NORMAL synchronous (durability
// is already provided by WAL + fsync on checkpoint), and a busy
// timeout so ordinary readers block briefly rather than erroring out
// under writer contention.
func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
}

// DB wraps the primary database's connection pools.
type DB struct {
	path string

	// Writer is the single connection the writer executes transactions
	// against. A *sql.DB with MaxOpenConns(1) models "one exclusive
	// writer connection" without hand-rolling a connection checkout.
	Writer *sql.DB

	// Readers is the shared pool of ordinary multiplexed read
	// connections used by query/execute-adjacent reads that don't need
	// a long-lived handle.
	Readers *sql.DB

	// dedicated holds the long-lived connections reserved for matcher
	// snapshot reads (§4.4, §9 "Dedicated connections for matchers").
	// Unlike Readers, these are never recycled by idle-connection
	// reaping and are checked out for the subscriber's session.
	dedicated dedicatedPool
}

// Open creates the primary database at path, bootstraps the schema,
// and returns a DB with all three pools configured.
func Open(ctx context.Context, path string) (*DB, error) {
	writer, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("database: open writer conn: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("database: ping writer conn: %w", err)
	}

	readers, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("database: open reader pool: %w", err)
	}
	readers.SetMaxOpenConns(8)

	if err := readers.PingContext(ctx); err != nil {
		writer.Close()
		readers.Close()
		return nil, fmt.Errorf("database: ping reader pool: %w", err)
	}

	db := &DB{
		path:    path,
		Writer:  writer,
		Readers: readers,
		dedicated: dedicatedPool{
			path:  path,
			conns: make(map[int64]*sql.DB),
		},
	}

	if _, err := writer.ExecContext(ctx, bookkeepingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: bootstrap bookkeeping schema: %w", err)
	}

	return db, nil
}

// Close shuts down every pool, including any still-open dedicated
// connections.
func (db *DB) Close() {
	db.Writer.Close()
	db.Readers.Close()
	db.dedicated.closeAll()
}

// Dedicated opens a fresh single-connection *sql.DB reserved for one
// matcher's lifetime. The caller must call the returned release func
// when the matcher is torn down.
func (db *DB) Dedicated(ctx context.Context) (*sql.DB, func(), error) {
	return db.dedicated.acquire(ctx)
}

// dedicatedPool hands out single-connection *sql.DB handles, each
// outside the multiplexed reader pool, and tracks them so Close can
// reap any a caller forgot to release.
type dedicatedPool struct {
	path string

	mu     sync.Mutex
	nextID int64
	conns  map[int64]*sql.DB
}

func (p *dedicatedPool) acquire(ctx context.Context) (*sql.DB, func(), error) {
	conn, err := sql.Open("sqlite", dsn(p.path))
	if err != nil {
		return nil, nil, fmt.Errorf("database: open dedicated conn: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("database: ping dedicated conn: %w", err)
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.conns[id] = conn
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		delete(p.conns, id)
		p.mu.Unlock()
		conn.Close()
	}
	return conn, release, nil
}

func (p *dedicatedPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, conn := range p.conns {
		conn.Close()
		delete(p.conns, id)
	}
}

// bookkeepingSchema creates the two side tables this core owns:
// __corro_bookkeeping (per-actor version ledger) and __corro_schema
// (the DDL self-description table used by schema merge). The CRR
// extension's own tables (changes view, site_id(), next_db_version())
// are assumed already present — see internal/crr.
const bookkeepingSchema = `
CREATE TABLE IF NOT EXISTS __corro_bookkeeping (
    actor_id      BLOB NOT NULL,
    start_version INTEGER NOT NULL,
    db_version    INTEGER,
    last_seq      INTEGER,
    ts            TEXT,
    PRIMARY KEY (actor_id, start_version)
);

CREATE TABLE IF NOT EXISTS __corro_schema (
    tbl_name TEXT NOT NULL,
    type     TEXT NOT NULL,
    name     TEXT NOT NULL,
    sql      TEXT,
    source   TEXT NOT NULL DEFAULT 'api'
);
`
