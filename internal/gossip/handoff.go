// Package gossip is the handoff boundary to the anti-entropy
// transport (spec §1: "Only the handoff boundary ... is specified").
// This package does not implement gossip/anti-entropy; it drains the
// broadcast sink and exposes a thin WebSocket peer endpoint other
// nodes could dial to receive the drained messages. The actual
// convergence protocol is an external collaborator.
package gossip

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
)

// upgrader allows any origin: peer handoff has no auth concerns in
// this core (spec Non-goals).
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handoff drains a broadcast.Sink and fans each message out to every
// currently connected peer socket. It is the minimal object satisfying
// "a typed message enqueued on a broadcast channel" without attempting
// to implement anti-entropy itself.
type Handoff struct {
	sink *broadcast.Sink

	mu    sync.Mutex
	peers map[*websocket.Conn]struct{}
}

// New builds a Handoff draining sink. Call Run to start the drain
// loop.
func New(sink *broadcast.Sink) *Handoff {
	return &Handoff{
		sink:  sink,
		peers: make(map[*websocket.Conn]struct{}),
	}
}

// Run drains the sink until ctx is cancelled, forwarding each message
// to every connected peer. A peer write failure drops that peer; it
// does not stop the drain loop.
func (h *Handoff) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.sink.Receive():
			if !ok {
				return
			}
			h.broadcastToPeers(msg)
		}
	}
}

func (h *Handoff) broadcastToPeers(msg broadcast.Message) {
	if msg.AddBroadcast == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.peers {
		if err := conn.WriteJSON(msg.AddBroadcast); err != nil {
			log.Printf("gossip: peer write failed, dropping: %v", err)
			conn.Close()
			delete(h.peers, conn)
		}
	}
}

// ServeHTTP upgrades a peer connection and registers it to receive
// future broadcasts. There is no replay/cursor support here; a real
// anti-entropy transport reconciles history out-of-band (spec §1).
func (h *Handoff) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gossip: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.peers[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.peers, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
