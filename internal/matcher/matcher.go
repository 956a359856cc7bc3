// Package matcher implements the live-query subscription surface
// (spec §4.4): a process-wide registry of materialized-query matchers
// keyed by id and by normalized query text, each exposing a snapshot
// source, a change subscription, and a command channel.
//
// The matcher engine itself — translating SQL into an incremental
// materialization — is an external collaborator (spec §1); this
// package models its contract only: registration, lookup, cache
// keying, and the command/change channels a streamer task consumes.
package matcher

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MuhtasimTanmoy/corrosion/internal/rowresult"
)

// Command is sent on a Matcher's command channel by a detaching
// streamer task.
type Command int

const (
	// Unsubscribe tells the matcher one subscriber has gone away. The
	// matcher decides its own fate; it is not removed from the
	// registry by this alone (spec §4.4 "On termination").
	Unsubscribe Command = iota
)

// Matcher is the stable, process-registered handle for one live
// query (spec §3 "Matcher"). Construction of the underlying
// materialization is out of scope here; New wires up the bookkeeping
// this package owns around an already-materialized table.
type Matcher struct {
	ID uuid.UUID

	// TableName is this matcher's own materialized table (e.g.
	// "watch_<id>"), never a routing key: post-commit changes arrive
	// tagged with the *source* table the write touched, which is
	// SourceTables below.
	TableName string

	// SourceTables lists the base tables this matcher's query reads
	// from, as identified by the query planner (§ "routing"). A
	// post-commit change record is dispatched to this matcher only
	// when its Table is one of these.
	SourceTables []string

	Columns   []string
	QueryText string

	cancel  chan struct{}
	cancelO sync.Once
	changes chan rowresult.RowResult
	cmds    chan Command
	release func()
}

// New builds a Matcher bound to a materialized table, the source
// tables its query reads from, and its column list. changeBuffer
// sizes the broadcast-style change channel (spec §5 "Change channel
// ... bounded, lossy on lag").
func New(queryText, tableName string, sourceTables, columns []string, changeBuffer int) *Matcher {
	return NewWithID(uuid.New(), queryText, tableName, sourceTables, columns, changeBuffer)
}

// NewWithID is New with an explicit id, used when the caller (the
// dedicated-connection allocator) has already minted the id the
// materialized table name is derived from.
func NewWithID(id uuid.UUID, queryText, tableName string, sourceTables, columns []string, changeBuffer int) *Matcher {
	return &Matcher{
		ID:           id,
		Columns:      columns,
		TableName:    tableName,
		SourceTables: sourceTables,
		QueryText:    queryText,
		cancel:       make(chan struct{}),
		changes:      make(chan rowresult.RowResult, changeBuffer),
		cmds:         make(chan Command, 1),
	}
}

// SetRelease attaches the func that releases the matcher's dedicated
// database connection. Cancel calls it so the connection isn't
// leaked once the matcher is torn down.
func (m *Matcher) SetRelease(release func()) { m.release = release }

// Cancelled returns a channel closed when the matcher has been
// cancelled. A streamer task that observes it removes the matcher
// from the registry (cancellation is authoritative).
func (m *Matcher) Cancelled() <-chan struct{} { return m.cancel }

// Cancel marks the matcher cancelled and releases its dedicated
// connection, if any. Idempotent.
func (m *Matcher) Cancel() {
	m.cancelO.Do(func() {
		close(m.cancel)
		if m.release != nil {
			m.release()
		}
	})
}

// Changes returns the matcher's incremental row-result subscription.
func (m *Matcher) Changes() <-chan rowresult.RowResult { return m.changes }

// Publish delivers one incremental row-result to subscribers. It
// never blocks the caller (the post-commit dispatch path): a full
// channel drops the event and Publish returns false. The subscriber
// is not told about the drop and keeps its subscription.
func (m *Matcher) Publish(r rowresult.RowResult) bool {
	select {
	case m.changes <- r:
		return true
	default:
		return false
	}
}

// Commands returns the channel a streamer task sends Unsubscribe on.
func (m *Matcher) Commands() chan<- Command { return m.cmds }

// Registry is the process-wide matcher map (spec §5: "Matcher map ...
// guarded by reader-preferring locks"), indexed both by id and by
// normalized query text so create-or-attach can find an existing
// matcher for the same query.
type Registry struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Matcher
	byQuery map[string]uuid.UUID
}

// NewRegistry builds an empty matcher registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[uuid.UUID]*Matcher),
		byQuery: make(map[string]uuid.UUID),
	}
}

// NormalizeQuery produces the cache key used for create-or-attach
// lookups: trimmed, whitespace-collapsed query text. Two textually
// distinct-but-equivalent queries that only differ in surrounding or
// repeated whitespace hit the same matcher.
func NormalizeQuery(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}

// Lookup finds a matcher by the normalized query text of a
// create-or-attach request. The second return reports whether one was
// found and is still registered.
func (r *Registry) Lookup(query string) (*Matcher, bool) {
	key := NormalizeQuery(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byQuery[key]
	if !ok {
		return nil, false
	}
	m, ok := r.byID[id]
	return m, ok
}

// Get finds a matcher by its stable id (the attach path, spec
// §4.4 "Attach").
func (r *Registry) Get(id uuid.UUID) (*Matcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// Register adds m to the registry, indexed by its id and its query
// text's normalized key.
func (r *Registry) Register(m *Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
	r.byQuery[NormalizeQuery(m.QueryText)] = m.ID
}

// Remove deletes a matcher from the registry (spec §4.4: cancellation
// is authoritative and removes the matcher from the process map).
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if r.byQuery[NormalizeQuery(m.QueryText)] == id {
		delete(r.byQuery, NormalizeQuery(m.QueryText))
	}
}

// Len reports the number of registered matchers, for shutdown
// draining and diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// All returns a snapshot slice of every registered matcher, used by
// agent shutdown to cancel every live subscription.
func (r *Registry) All() []*Matcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Matcher, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	return out
}
