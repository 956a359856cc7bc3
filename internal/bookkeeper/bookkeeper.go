// Package bookkeeper maintains, per actor, the in-memory ledger of
// committed versions: an ordered map from version to its known state.
// It backs the "last version" read the writer uses to allocate the
// next version, and the durable bookkeeping row the writer inserts.
package bookkeeper

import (
	"fmt"
	"sync"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/hlc"
)

// KnownVersion is the state a bookkeeping entry can hold. Only
// Current is produced by the write path in this core; Cleared and
// Partial belong to the peer-receive path, which is out of scope
// here, but the type is kept open (as a tagged union) so this arena
// can be reused without a breaking change when that path lands.
type KnownVersion struct {
	Kind KnownKind

	// Populated when Kind == Current.
	DbVersion int64
	LastSeq   int64
	Timestamp hlc.Timestamp
}

// KnownKind tags the variant held by a KnownVersion.
type KnownKind int

const (
	// KindCurrent is a version this node itself committed, or
	// received and fully applied.
	KindCurrent KnownKind = iota
	// KindCleared marks a version whose rows have since been
	// superseded; retained so its spot in the sequence isn't reused.
	KindCleared
	// KindPartial marks a version received but not fully applied.
	KindPartial
)

// Bookkeeper is the per-actor arena: an ordered map from version to
// KnownVersion, guarded by its own lock. One Bookkeeper instance
// tracks exactly one actor's version stream; the Bookkeepers type
// below indexes many of them by ActorId.
type Bookkeeper struct {
	mu       sync.Mutex
	versions map[int64]KnownVersion
	last     int64 // 0 means no version has been committed yet
}

// New creates an empty per-actor Bookkeeper.
func New() *Bookkeeper {
	return &Bookkeeper{versions: make(map[int64]KnownVersion)}
}

// LastVersion returns the highest version committed so far, or 0 if
// none has been committed (there is no version 0).
func (b *Bookkeeper) LastVersion() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// PeekNext reports the version number the next commit would claim,
// without reserving it. It does not mutate the bookkeeper: under the
// writer lock only one write is ever in flight for this actor, so a
// non-mutating peek is safe, and it lets the caller defer actually
// advancing the sequence until the commit that uses this version has
// succeeded (§3: "each version is written exactly once", §4.2 step 8:
// the version is marked Current only after commit).
func (b *Bookkeeper) PeekNext() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last + 1
}

// InsertCurrent records a newly committed version as Current and
// advances the bookkeeper's last-version mark to it. version must be
// exactly last+1: InsertCurrent is the sole mutator of the sequence,
// called only after the transaction that produced it has committed,
// so a failed or rolled-back commit never consumes a version number.
func (b *Bookkeeper) InsertCurrent(version, dbVersion, lastSeq int64, ts hlc.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if version != b.last+1 {
		return fmt.Errorf("bookkeeper: version %d is not the next contiguous version after %d", version, b.last)
	}
	b.versions[version] = KnownVersion{
		Kind:      KindCurrent,
		DbVersion: dbVersion,
		LastSeq:   lastSeq,
		Timestamp: ts,
	}
	b.last = version
	return nil
}

// Get returns the known state of a version and whether it is present.
func (b *Bookkeeper) Get(version int64) (KnownVersion, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kv, ok := b.versions[version]
	return kv, ok
}

// Bookkeepers indexes one Bookkeeper per actor, creating them lazily.
type Bookkeepers struct {
	mu   sync.RWMutex
	byID map[actorid.ActorId]*Bookkeeper
}

// NewBookkeepers creates an empty registry.
func NewBookkeepers() *Bookkeepers {
	return &Bookkeepers{byID: make(map[actorid.ActorId]*Bookkeeper)}
}

// For returns (creating if necessary) the Bookkeeper for an actor.
func (r *Bookkeepers) For(id actorid.ActorId) *Bookkeeper {
	r.mu.RLock()
	bk, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return bk
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if bk, ok := r.byID[id]; ok {
		return bk
	}
	bk = New()
	r.byID[id] = bk
	return bk
}
