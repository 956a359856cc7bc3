// Package agent is the shared process-wide handle cloned into every
// request task (spec §9 "Shared ownership of the agent"): immutable
// core fields plus independently locked sub-resources, no single big
// lock.
package agent

import (
	"context"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/bookkeeper"
	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
	"github.com/MuhtasimTanmoy/corrosion/internal/crr"
	"github.com/MuhtasimTanmoy/corrosion/internal/database"
	"github.com/MuhtasimTanmoy/corrosion/internal/hlc"
	"github.com/MuhtasimTanmoy/corrosion/internal/matcher"
	"github.com/MuhtasimTanmoy/corrosion/internal/schema"
	"github.com/MuhtasimTanmoy/corrosion/internal/writer"
)

// Agent is the shared handle. All fields are safe for concurrent use:
// ActorID is immutable after construction, DB and Collab are
// themselves internally pooled/stateless, and Bookkeepers, Schema,
// Matchers, Clock each own their own lock.
type Agent struct {
	ActorID actorid.ActorId

	DB          *database.DB
	Collab      crr.Collaborator
	Bookkeepers *bookkeeper.Bookkeepers
	Schema      *schema.Store
	Matchers    *matcher.Registry
	Clock       *hlc.Clock
	Broadcast   *broadcast.Sink
	WriterLock  *writer.Lock
}

// New assembles an Agent around an opened database and loaded actor
// id. The caller retains ownership of db's lifetime and closes it on
// shutdown. The broadcast sink is created here with capacity
// broadcastBufferSize; nothing closes it.
func New(actor actorid.ActorId, db *database.DB, broadcastBufferSize int) *Agent {
	return &Agent{
		ActorID:     actor,
		DB:          db,
		Collab:      crr.NewSQLCollaborator(actor),
		Bookkeepers: bookkeeper.NewBookkeepers(),
		Schema:      schema.NewStore(),
		Matchers:    matcher.NewRegistry(),
		Clock:       hlc.New(),
		Broadcast:   broadcast.NewSink(broadcastBufferSize),
		WriterLock:  writer.NewLock(),
	}
}

// Writer builds a writer.Writer bound to this agent's own actor
// bookkeeper, writer lock, collaborator, clock, and broadcast sink.
// dispatch delivers committed frames to live matchers; pass nil to
// use writer.NoopDispatcher.
func (a *Agent) Writer(dispatch writer.Dispatcher) *writer.Writer {
	bk := a.Bookkeepers.For(a.ActorID)
	return writer.New(a.DB.Writer, a.ActorID, a.WriterLock, bk, a.Collab, a.Clock, a.Broadcast, dispatch)
}

// Shutdown cancels every registered matcher (spec §9 supplemented
// feature: draining in-flight watches on shutdown). It does not close
// the broadcast sink — the gossip handoff loop relies on ctx
// cancellation to know when to stop draining it instead.
func (a *Agent) Shutdown(ctx context.Context) error {
	for _, m := range a.Matchers.All() {
		m.Cancel()
	}
	return nil
}
