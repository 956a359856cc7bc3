// Package broadcast carries committed changesets from the writer's
// post-commit path to the external gossip transport over a single
// bounded MPSC sink. It does not implement anti-entropy itself —
// that is the gossip transport's job (spec §1 Non-goals); this
// package only defines the handoff boundary.
package broadcast

import (
	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/hlc"
)

// ChangeRecord is the logical change tuple: (table, primary_key,
// column_id, value, column_version, db_version, seq, site_id).
type ChangeRecord struct {
	Table         string
	Pk            []byte
	Cid           string
	Value         any
	ColumnVersion int64
	DbVersion     int64
	Seq           int64
	SiteId        actorid.ActorId
}

// Changeset is a fully specified local version: the tuple (actor_id,
// version, changes, seqs, last_seq, timestamp) from spec §3.
type Changeset struct {
	ActorId   actorid.ActorId
	Version   int64
	Changes   []ChangeRecord
	SeqsStart int64
	SeqsEnd   int64
	LastSeq   int64
	Timestamp hlc.Timestamp
}

// Change wraps a Changeset as the payload of an AddBroadcast message,
// matching the wire envelope in spec §6: AddBroadcast(Change{version,
// actor_id, changeset}).
type Change struct {
	// Version is the broadcast message schema version (always 1 in
	// this core), not to be confused with Changeset.Version.
	Version   int
	ActorId   actorid.ActorId
	Changeset Changeset
}

// Message is the sum type enqueued on the broadcast channel. Only one
// variant, AddBroadcast, is produced by this core; the type is kept
// open so the gossip transport can extend it without changing this
// package's exported surface.
type Message struct {
	AddBroadcast *Change
}

// NewAddBroadcast builds a Message carrying a single Change.
func NewAddBroadcast(c Change) Message {
	return Message{AddBroadcast: &c}
}
