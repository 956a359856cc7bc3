// Package writer implements the serialized write path (spec §4.2):
// make-broadcastable-changes. It executes a user transaction under
// the global writer lock, allocates replication identity, records
// bookkeeping, and schedules post-commit broadcast without blocking
// the caller on it.
package writer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/bookkeeper"
	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
	"github.com/MuhtasimTanmoy/corrosion/internal/chunker"
	"github.com/MuhtasimTanmoy/corrosion/internal/crr"
	"github.com/MuhtasimTanmoy/corrosion/internal/hlc"
)

// ChunkSize is the post-commit broadcast chunker's chunk_size (spec
// §4.2: "chunk_size = 50").
const ChunkSize = 50

// Lock is the single exclusive writer permit (spec §5). It is backed
// by a weighted semaphore of weight 1 that the writer and schema-merge
// paths acquire in plain FIFO order. Read paths never take this lock
// at all, so there are no read waiters queued on it; the semaphore
// gives schema merge and the writer a uniform acquisition primitive to
// share.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unheld writer lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the permit is available or ctx is cancelled.
func (l *Lock) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("writer: acquire lock: %w", err)
	}
	return func() { l.sem.Release(1) }, nil
}

// Sink is the subset of broadcast.Sink the writer needs, so tests can
// substitute a fake.
type Sink interface {
	Enqueue(msg broadcast.Message) error
}

// Dispatcher delivers a committed frame synchronously to the local
// subscription/matcher dispatch surface for incremental processing
// (spec §4.2 step (a), before the frame is enqueued for broadcast).
// Implemented by internal/matcher in the full agent; tests may use a
// no-op.
type Dispatcher interface {
	DispatchFrame(ctx context.Context, actor actorid.ActorId, version int64, records []broadcast.ChangeRecord) error
}

// NoopDispatcher discards every frame. Useful where no matcher is wired.
type NoopDispatcher struct{}

func (NoopDispatcher) DispatchFrame(context.Context, actorid.ActorId, int64, []broadcast.ChangeRecord) error {
	return nil
}

// Writer is the serialized transactional executor.
type Writer struct {
	db       *sql.DB
	actor    actorid.ActorId
	lock     *Lock
	bk       *bookkeeper.Bookkeeper
	collab   crr.Collaborator
	clock    *hlc.Clock
	sink     Sink
	dispatch Dispatcher
}

// New builds a Writer. db is the single exclusive writer connection
// (database.DB.Writer); bk is this actor's Bookkeeper.
func New(db *sql.DB, actor actorid.ActorId, lock *Lock, bk *bookkeeper.Bookkeeper, collab crr.Collaborator, clock *hlc.Clock, sink Sink, dispatch Dispatcher) *Writer {
	if dispatch == nil {
		dispatch = NoopDispatcher{}
	}
	return &Writer{
		db:       db,
		actor:    actor,
		lock:     lock,
		bk:       bk,
		collab:   collab,
		clock:    clock,
		sink:     sink,
		dispatch: dispatch,
	}
}

// Result is what Execute returns on success: the caller's value and
// the wall-clock duration from lock acquisition to commit.
type Result[T any] struct {
	Value   T
	Elapsed time.Duration
}

// Execute runs f inside one write transaction under the writer lock,
// following the algorithm in spec §4.2. f must not retain tx beyond
// its own return.
func Execute[T any](ctx context.Context, w *Writer, f func(tx *sql.Tx) (T, error)) (Result[T], error) {
	var zero T

	release, err := w.lock.Acquire(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	defer release()

	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return Result[T]{}, fmt.Errorf("writer: begin tx: %w", err)
	}

	value, ferr := f(tx)
	if ferr != nil {
		_ = tx.Rollback()
		return Result[T]{}, fmt.Errorf("writer: f: %w", ferr)
	}

	dbVersion, err := w.collab.NextDBVersion(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return Result[T]{}, err
	}

	lastSeq, hasChanges, err := w.collab.LocalChangeSummary(ctx, tx, dbVersion)
	if err != nil {
		_ = tx.Rollback()
		return Result[T]{}, err
	}

	// Version allocation is gated on hasChanges: a no-op commit
	// consumes no version (spec §4.2 "No-op commits").
	var version int64
	ts := w.clock.NewTimestamp()

	if hasChanges {
		// Peek only: the sequence doesn't advance until InsertCurrent
		// runs below, after commit has actually succeeded, so a
		// rollback or failed commit never consumes a version number.
		version = w.bk.PeekNext()
		if err := insertBookkeeping(ctx, tx, w.actor, version, dbVersion, lastSeq, ts); err != nil {
			_ = tx.Rollback()
			return Result[T]{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Result[T]{}, fmt.Errorf("writer: commit: %w", err)
	}
	elapsed := time.Since(start)

	if hasChanges {
		if err := w.bk.InsertCurrent(version, dbVersion, lastSeq, ts); err != nil {
			// The commit already happened; a bookkeeper bug here must
			// not be reported as a write failure.
			log.Printf("writer: in-memory bookkeeper insert failed for version %d: %v", version, err)
		}
		go w.postCommit(dbVersion, version, lastSeq, ts)
	}

	return Result[T]{Value: value, Elapsed: elapsed}, nil
}

func insertBookkeeping(ctx context.Context, tx *sql.Tx, actor actorid.ActorId, version, dbVersion, lastSeq int64, ts hlc.Timestamp) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO __corro_bookkeeping (actor_id, start_version, db_version, last_seq, ts)
		 VALUES (?, ?, ?, ?, ?)`,
		actor.Bytes(), version, dbVersion, lastSeq, ts.String())
	if err != nil {
		return fmt.Errorf("writer: insert bookkeeping: %w", err)
	}
	return nil
}

// postCommit runs independently of the writer lock: it reads the
// change records for dbVersion, chunks them, and for each frame first
// dispatches it locally then enqueues it for broadcast. Errors are
// logged and abort only the remaining frames of this version — the
// commit is already durable.
func (w *Writer) postCommit(dbVersion, version, lastSeq int64, ts hlc.Timestamp) {
	ctx := context.Background()

	records, err := w.collab.QueryChanges(ctx, w.db, dbVersion)
	if err != nil {
		log.Printf("writer: post-commit query changes failed for version %d: %v", version, err)
		return
	}

	src := &recordSource{records: records}
	ck, err := chunker.New[*changeRecordRef](src, 0, lastSeq, ChunkSize)
	if err != nil {
		log.Printf("writer: post-commit chunker init failed for version %d: %v", version, err)
		return
	}

	for {
		frame, ok, err := ck.Next()
		if err != nil {
			log.Printf("writer: post-commit chunking failed for version %d: %v", version, err)
			return
		}
		if !ok {
			return
		}

		changes := make([]broadcast.ChangeRecord, len(frame.Records))
		for i, r := range frame.Records {
			changes[i] = r.rec
		}

		if err := w.dispatch.DispatchFrame(ctx, w.actor, version, changes); err != nil {
			log.Printf("writer: post-commit dispatch failed for version %d: %v", version, err)
		}

		msg := broadcast.NewAddBroadcast(broadcast.Change{
			Version: 1,
			ActorId: w.actor,
			Changeset: broadcast.Changeset{
				ActorId:   w.actor,
				Version:   version,
				Changes:   changes,
				SeqsStart: frame.Range.Start,
				SeqsEnd:   frame.Range.End,
				LastSeq:   lastSeq,
				Timestamp: ts,
			},
		})
		if err := w.sink.Enqueue(msg); err != nil {
			log.Printf("writer: post-commit enqueue failed for version %d: %v", version, err)
			return
		}
	}
}

// changeRecordRef adapts broadcast.ChangeRecord to chunker.Change: the
// record itself has a field named Seq, which collides with the
// interface method name, so the chunker walks this thin pointer
// wrapper instead.
type changeRecordRef struct {
	rec broadcast.ChangeRecord
}

func (c *changeRecordRef) Seq() int64 { return c.rec.Seq }

// recordSource is a chunker.Source over an in-memory slice, used to
// feed the post-commit reader's query result into the chunker.
type recordSource struct {
	records []broadcast.ChangeRecord
	i       int
}

func (s *recordSource) Next() (*changeRecordRef, bool, error) {
	if s.i >= len(s.records) {
		return nil, false, nil
	}
	r := s.records[s.i]
	s.i++
	return &changeRecordRef{rec: r}, true, nil
}
