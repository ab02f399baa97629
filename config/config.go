// Package config loads and, on first run, creates the node's TOML
// configuration file (spec §6 "Configuration (enumerated)"). Grounded on
// nhb's config.Load (decode-if-present, else write a generated default
// back to disk).
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"srishti/crypto"
)

// Gossip carries the epidemic dissemination tunables (spec §4.7).
type Gossip struct {
	Fanout        int `toml:"Fanout"`
	TTL           int `toml:"TTL"`
	DedupWindowMS int `toml:"DedupWindowMS"`
}

// RateLimit carries the sliding-window quota tunables (spec §4.9).
type RateLimit struct {
	BlocksPerMinute    float64 `toml:"BlocksPerMinute"`
	NewNodeMultiplier  float64 `toml:"NewNodeMultiplier"`
	SyncPerMinute      float64 `toml:"SyncPerMinute"`
	HeartbeatPerMinute float64 `toml:"HeartbeatPerMinute"`
}

// Karma is the per-event-type reward table (spec §4.4/§9).
type Karma struct {
	NodeJoin      uint64 `toml:"NodeJoin"`
	SoulboundMint uint64 `toml:"SoulboundMint"`
	VoteCast      uint64 `toml:"VoteCast"`
}

// SyncTimeouts carries the three timeout tiers spec §4.8/§6 name (short,
// long, overall).
type SyncTimeouts struct {
	ShortMS   int `toml:"ShortMS"`
	LongMS    int `toml:"LongMS"`
	OverallMS int `toml:"OverallMS"`
}

// AdminAPI configures the optional read-only JWT-gated HTTP surface
// (SPEC_FULL.md §5 supplemented feature).
type AdminAPI struct {
	Enabled       bool   `toml:"Enabled"`
	ListenAddress string `toml:"ListenAddress"`
	JWTSecret     string `toml:"JWTSecret"`
}

// AppIndex configures the secondary APP_EVENT sqlite index.
type AppIndex struct {
	DriverDSN string `toml:"DriverDSN"`
}

// Relay configures the relay transport kind and the DNS server
// (host:port) against which bare BootstrapSeeds names are resolved.
type Relay struct {
	Kind     string `toml:"Kind"`
	Endpoint string `toml:"Endpoint"`
}

// Export configures the periodic karma/soulbound-credential parquet
// snapshot (SPEC_FULL.md §5 supplemented feature "Analytics export").
type Export struct {
	Enabled      bool   `toml:"Enabled"`
	OutputDir    string `toml:"OutputDir"`
	IntervalMS   int    `toml:"IntervalMS"`
}

// Config is the full node configuration (spec §6, enumerated).
type Config struct {
	ListenAddress       string       `toml:"ListenAddress"`
	DataDir             string       `toml:"DataDir"`
	ChainEpoch          uint64       `toml:"ChainEpoch"`
	NodeName            string       `toml:"NodeName"`
	IdentityKeyHex      string       `toml:"IdentityKeyHex"`
	BootstrapSeeds      []string     `toml:"BootstrapSeeds"`
	Gossip              Gossip       `toml:"Gossip"`
	RateLimit           RateLimit    `toml:"RateLimit"`
	Karma               Karma        `toml:"Karma"`
	SyncTimeouts        SyncTimeouts `toml:"SyncTimeouts"`
	HeartbeatIntervalMS int          `toml:"HeartbeatIntervalMS"`
	ResyncTickMS        int          `toml:"ResyncTickMS"`
	AdminAPI            AdminAPI     `toml:"AdminAPI"`
	AppIndex            AppIndex     `toml:"AppIndex"`
	Relay               Relay        `toml:"Relay"`
	Export              Export       `toml:"Export"`
}

// Load reads the TOML configuration at path, creating and persisting a
// generated default (including a freshly minted identity key) if the file
// does not exist yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.IdentityKeyHex == "" {
		keyHex, err := generateIdentityKeyHex()
		if err != nil {
			return nil, err
		}
		cfg.IdentityKeyHex = keyHex
		if err := writeTOML(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func generateIdentityKeyHex() (string, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("config: generate identity key: %w", err)
	}
	return hex.EncodeToString(kp.Private), nil
}

func createDefault(path string) (*Config, error) {
	keyHex, err := generateIdentityKeyHex()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress:  ":7946",
		DataDir:        "./srishti-data",
		ChainEpoch:     1,
		NodeName:       "srishti-node",
		IdentityKeyHex: keyHex,
		BootstrapSeeds: []string{},
		Gossip:         Gossip{Fanout: 3, TTL: 10, DedupWindowMS: 60000},
		RateLimit: RateLimit{
			BlocksPerMinute:    10,
			NewNodeMultiplier:  0.1,
			SyncPerMinute:      20,
			HeartbeatPerMinute: 100,
		},
		Karma: Karma{NodeJoin: 10, SoulboundMint: 5, VoteCast: 1},
		SyncTimeouts: SyncTimeouts{
			ShortMS:   3000,
			LongMS:    8000,
			OverallMS: 30000,
		},
		HeartbeatIntervalMS: 5000,
		ResyncTickMS:        15000,
		AdminAPI:            AdminAPI{Enabled: false, ListenAddress: ":8081"},
		AppIndex:            AppIndex{DriverDSN: "file:srishti-appindex.db?cache=shared"},
		Relay:               Relay{Kind: "websocket"},
		Export:              Export{Enabled: false, OutputDir: "./srishti-data/export", IntervalMS: 3600000},
	}
	if err := writeTOML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeTOML(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
