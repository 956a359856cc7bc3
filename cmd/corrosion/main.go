// corrosion is a single-node agent implementing the write-broadcast
// and live-query core of a peer-to-peer, eventually-consistent
// relational store.
//
// It reads configuration from corrosion.json in the working
// directory, loads or creates this node's actor id, opens the primary
// SQLite database, starts the gossip handoff drain loop, and serves
// the HTTP API until SIGINT or SIGTERM.
//
// Usage:
//
//	./corrosion                # reads ./corrosion.json, starts the agent
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/agent"
	"github.com/MuhtasimTanmoy/corrosion/internal/config"
	"github.com/MuhtasimTanmoy/corrosion/internal/database"
	"github.com/MuhtasimTanmoy/corrosion/internal/gossip"
	"github.com/MuhtasimTanmoy/corrosion/internal/server"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("corrosion starting...")

	cfg, err := config.Load("corrosion.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (api=%s db=%s)", cfg.APIAddr, cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	actor, err := actorid.LoadOrCreate(cfg.ActorIDPath)
	if err != nil {
		log.Fatalf("Failed to load or create actor id: %v", err)
	}
	log.Printf("Actor id: %s", actor.String())

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Println("Database opened, bookkeeping schema bootstrapped")

	a := agent.New(actor, db, cfg.BroadcastBufferSize)

	handoff := gossip.New(a.Broadcast)
	go handoff.Run(ctx)
	log.Printf("Gossip handoff draining (bind %s, handoff boundary only)", cfg.GossipAddr)

	srv := server.New(a, cfg.APIAddr)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("corrosion stopped")
}
