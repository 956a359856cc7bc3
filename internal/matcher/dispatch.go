package matcher

import (
	"context"
	"hash/fnv"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
	"github.com/MuhtasimTanmoy/corrosion/internal/rowresult"
)

// Dispatcher delivers post-commit change records to every matcher
// whose query reads the affected source table, satisfying
// writer.Dispatcher. The actual query-to-materialization translation
// is the matcher engine's internals (spec §1: "consumed; its
// internals are not specified"); this dispatcher only does the part
// this core owns — routing a committed record to the subscriptions
// whose source table it affects and publishing an upsert row-result
// built from the record's primary key and value. A matcher spanning
// multiple columns per row is expected to coalesce same-pk records
// itself; that coalescing is also engine-internal and out of scope
// here.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher routing through registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// DispatchFrame implements writer.Dispatcher.
func (d *Dispatcher) DispatchFrame(ctx context.Context, actor actorid.ActorId, version int64, records []broadcast.ChangeRecord) error {
	for _, m := range d.registry.All() {
		for _, rec := range records {
			if !readsTable(m.SourceTables, rec.Table) {
				continue
			}
			m.Publish(rowresult.NewRow(rowIDFor(rec.Pk), rowresult.Upsert, []any{rec.Cid, rec.Value}))
		}
	}
	return nil
}

// readsTable reports whether table is one of a matcher's source
// tables — the tables its query reads from, not its own materialized
// table name.
func readsTable(sourceTables []string, table string) bool {
	for _, t := range sourceTables {
		if t == table {
			return true
		}
	}
	return false
}

// rowIDFor derives a stable synthetic rowid from a primary key blob so
// incremental dispatch doesn't need a round-trip to __corro_rowid for
// every change record.
func rowIDFor(pk []byte) int64 {
	h := fnv.New64a()
	h.Write(pk)
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
