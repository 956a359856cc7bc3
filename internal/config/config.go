// Package config handles loading and validating the agent's
// configuration from a corrosion.json file.
//
// The configuration file is expected to be a JSON object naming the
// primary database path, the API and gossip bind addresses, and the
// file the node's actor id is persisted to. This package only loads
// and validates the file; it does not define the gossip transport or
// process lifecycle (spec §1: out of scope).
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all agent configuration loaded from corrosion.json.
// The file is read once at startup; changes require a restart.
type Config struct {
	// DBPath is the path to the primary SQLite database file.
	DBPath string `json:"dbPath"`

	// ActorIDPath is the file this node's actor id is persisted to
	// across restarts (see internal/actorid.LoadOrCreate).
	ActorIDPath string `json:"actorIdPath"`

	// APIAddr is the HTTP API listen address (default ":8080").
	APIAddr string `json:"apiAddr"`

	// GossipAddr is the bind address handed to the external gossip
	// transport. This core only passes it through; it does not open
	// the socket itself (spec §1: gossip transport is out of scope).
	GossipAddr string `json:"gossipAddr"`

	// BroadcastBufferSize bounds the broadcast egress channel to the
	// transport (spec §5, nominal default 512 applied when unset).
	BroadcastBufferSize int `json:"broadcastBufferSize,omitempty"`

	// SnapshotBufferSize is loaded and defaulted to 512 when unset, but
	// nothing reads it: each watch's internal snapshot channel uses the
	// fixed capacity snapshotBufferSize (512) in internal/server.
	SnapshotBufferSize int `json:"snapshotBufferSize,omitempty"`
}

const (
	defaultAPIAddr             = ":8080"
	defaultBroadcastBufferSize = 512
	defaultSnapshotBufferSize  = 512
)

// Load reads and parses configuration from the given file path,
// filling in documented defaults and validating required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = defaultAPIAddr
	}
	if cfg.BroadcastBufferSize == 0 {
		cfg.BroadcastBufferSize = defaultBroadcastBufferSize
	}
	if cfg.SnapshotBufferSize == 0 {
		cfg.SnapshotBufferSize = defaultSnapshotBufferSize
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("config: dbPath is required")
	case c.ActorIDPath == "":
		return fmt.Errorf("config: actorIdPath is required")
	case c.GossipAddr == "":
		return fmt.Errorf("config: gossipAddr is required")
	}
	return nil
}
