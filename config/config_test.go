package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.IdentityKeyHex)
	require.Equal(t, ":7946", cfg.ListenAddress)
	require.Equal(t, 3, cfg.Gossip.Fanout)
	require.Equal(t, float64(10), cfg.RateLimit.BlocksPerMinute)
	require.Equal(t, uint64(10), cfg.Karma.NodeJoin)
	require.Equal(t, 30000, cfg.SyncTimeouts.OverallMS)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be persisted: %v", err)
	}

	// Reloading the generated file must round-trip identically.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.IdentityKeyHex, reloaded.IdentityKeyHex)
	require.Equal(t, cfg.Gossip, reloaded.Gossip)
}

func TestLoadDecodesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
ChainEpoch = 4
NodeName = "seed-1"
IdentityKeyHex = "aabbcc"
BootstrapSeeds = ["seed.example.com"]
HeartbeatIntervalMS = 4000
ResyncTickMS = 10000

[Gossip]
Fanout = 5
TTL = 12
DedupWindowMS = 30000

[RateLimit]
BlocksPerMinute = 20
NewNodeMultiplier = 0.2
SyncPerMinute = 40
HeartbeatPerMinute = 200

[Karma]
NodeJoin = 15
SoulboundMint = 8
VoteCast = 2

[SyncTimeouts]
ShortMS = 2000
LongMS = 5000
OverallMS = 20000

[AdminAPI]
Enabled = true
ListenAddress = ":8082"
JWTSecret = "topsecret"

[AppIndex]
DriverDSN = "file:test.db"

[Relay]
Kind = "websocket"
Endpoint = "wss://relay.example.com"

[Export]
Enabled = true
OutputDir = "./export-out"
IntervalMS = 1800000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Equal(t, uint64(4), cfg.ChainEpoch)
	require.Equal(t, "seed-1", cfg.NodeName)
	require.Equal(t, "aabbcc", cfg.IdentityKeyHex)
	require.Equal(t, []string{"seed.example.com"}, cfg.BootstrapSeeds)
	require.Equal(t, Gossip{Fanout: 5, TTL: 12, DedupWindowMS: 30000}, cfg.Gossip)
	require.Equal(t, RateLimit{BlocksPerMinute: 20, NewNodeMultiplier: 0.2, SyncPerMinute: 40, HeartbeatPerMinute: 200}, cfg.RateLimit)
	require.Equal(t, Karma{NodeJoin: 15, SoulboundMint: 8, VoteCast: 2}, cfg.Karma)
	require.Equal(t, SyncTimeouts{ShortMS: 2000, LongMS: 5000, OverallMS: 20000}, cfg.SyncTimeouts)
	require.Equal(t, 4000, cfg.HeartbeatIntervalMS)
	require.True(t, cfg.AdminAPI.Enabled)
	require.Equal(t, ":8082", cfg.AdminAPI.ListenAddress)
	require.Equal(t, "file:test.db", cfg.AppIndex.DriverDSN)
	require.Equal(t, "wss://relay.example.com", cfg.Relay.Endpoint)
	require.Equal(t, Export{Enabled: true, OutputDir: "./export-out", IntervalMS: 1800000}, cfg.Export)
}

func TestLoadBackfillsMissingIdentityKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = ":7946"
DataDir = "./data"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.IdentityKeyHex)

	// The backfilled key must have been persisted back to disk.
	onDisk := &Config{}
	_, err = toml.DecodeFile(path, onDisk)
	require.NoError(t, err)
	require.Equal(t, cfg.IdentityKeyHex, onDisk.IdentityKeyHex)
}
