// Package crr consumes the contract the CRR (conflict-free replicated
// row) SQLite extension is assumed to expose: next_db_version(), a
// changes view with columns (table, pk, cid, val, col_version,
// db_version, seq, site_id), and site_id(). This package does not
// implement the extension — per spec §1 it is an external
// collaborator — it only wraps the SQL calls the write path and
// post-commit reader need, and substitutes the local site id for rows
// stored with a null site id (locally originated changes).
package crr

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
)

// Collaborator is the interface the writer and post-commit reader
// consume. Production code is backed by SQLCollaborator; tests back
// it with an in-memory fake so writer logic can be exercised without
// the real extension loaded.
type Collaborator interface {
	// NextDBVersion allocates a new db_version for the transaction tx
	// is part of.
	NextDBVersion(ctx context.Context, tx *sql.Tx) (int64, error)

	// LocalChangeSummary reports whether any locally-originated
	// changes (site_id IS NULL) exist under dbVersion, and if so the
	// maximum seq among them.
	LocalChangeSummary(ctx context.Context, tx *sql.Tx, dbVersion int64) (lastSeq int64, ok bool, err error)

	// SiteID returns this node's site id, the value substituted for
	// null site_id columns when materializing changes for broadcast.
	SiteID(ctx context.Context) (actorid.ActorId, error)

	// QueryChanges returns the change records for dbVersion in
	// ascending seq order, with null site_id already substituted.
	QueryChanges(ctx context.Context, db *sql.DB, dbVersion int64) ([]broadcast.ChangeRecord, error)
}

// SQLCollaborator is the production Collaborator, issuing the exact
// calls the contract promises.
type SQLCollaborator struct {
	siteID actorid.ActorId
}

// NewSQLCollaborator builds a Collaborator bound to this node's site
// id (spec: "locally produced rows carry a null site id in storage,
// which must be substituted with this node's site_id()").
func NewSQLCollaborator(siteID actorid.ActorId) *SQLCollaborator {
	return &SQLCollaborator{siteID: siteID}
}

func (c *SQLCollaborator) NextDBVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	var v int64
	if err := tx.QueryRowContext(ctx, `SELECT crsql_next_db_version()`).Scan(&v); err != nil {
		return 0, fmt.Errorf("crr: next_db_version: %w", err)
	}
	return v, nil
}

func (c *SQLCollaborator) LocalChangeSummary(ctx context.Context, tx *sql.Tx, dbVersion int64) (int64, bool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT max(seq) FROM crsql_changes WHERE site_id IS NULL AND db_version = ?`, dbVersion)

	var lastSeq sql.NullInt64
	if err := row.Scan(&lastSeq); err != nil {
		return 0, false, fmt.Errorf("crr: local change summary: %w", err)
	}
	if !lastSeq.Valid {
		return 0, false, nil
	}
	return lastSeq.Int64, true, nil
}

func (c *SQLCollaborator) SiteID(ctx context.Context) (actorid.ActorId, error) {
	return c.siteID, nil
}

func (c *SQLCollaborator) QueryChanges(ctx context.Context, db *sql.DB, dbVersion int64) ([]broadcast.ChangeRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT "table", pk, cid, val, col_version, db_version, seq, site_id
		   FROM crsql_changes
		  WHERE db_version = ?
		  ORDER BY seq ASC`, dbVersion)
	if err != nil {
		return nil, fmt.Errorf("crr: query changes: %w", err)
	}
	defer rows.Close()

	var out []broadcast.ChangeRecord
	for rows.Next() {
		var rec broadcast.ChangeRecord
		var siteID []byte
		if err := rows.Scan(&rec.Table, &rec.Pk, &rec.Cid, &rec.Value, &rec.ColumnVersion, &rec.DbVersion, &rec.Seq, &siteID); err != nil {
			return nil, fmt.Errorf("crr: scan change row: %w", err)
		}
		if len(siteID) == 0 {
			rec.SiteId = c.siteID
		} else {
			copy(rec.SiteId[:], siteID)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crr: iterate changes: %w", err)
	}
	return out, nil
}
