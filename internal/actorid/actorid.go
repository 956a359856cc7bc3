// Package actorid provides the node's immutable actor identity: a
// 128-bit UUID fixed at startup and persisted to a file so restarts
// keep the same replication identity.
package actorid

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ActorId is a node's immutable, process-wide replication identity.
type ActorId uuid.UUID

// Nil is the zero ActorId. No version stream is ever allocated under it.
var Nil ActorId

// String renders the actor id in canonical UUID form.
func (a ActorId) String() string {
	return uuid.UUID(a).String()
}

// Bytes returns the 16-byte representation, the same layout the CRR
// extension's site_id() stores in the changes view.
func (a ActorId) Bytes() []byte {
	u := uuid.UUID(a)
	return u[:]
}

// Parse decodes a canonical UUID string into an ActorId.
func Parse(s string) (ActorId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("actorid: parse %q: %w", s, err)
	}
	return ActorId(u), nil
}

// LoadOrCreate reads the actor id persisted at path. If the file does
// not exist, a new random actor id is generated and written there, so
// subsequent restarts resume the same identity.
func LoadOrCreate(path string) (ActorId, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		s := strings.TrimSpace(string(data))
		id, err := Parse(s)
		if err != nil {
			return Nil, fmt.Errorf("actorid: load %s: %w", path, err)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return Nil, fmt.Errorf("actorid: read %s: %w", path, err)
	}

	id := ActorId(uuid.New())
	if werr := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); werr != nil {
		return Nil, fmt.Errorf("actorid: persist %s: %w", path, werr)
	}
	return id, nil
}
