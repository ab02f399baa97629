package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Invariant 9: within any WINDOW_SIZE, accepted BLOCK messages per node
// never exceed its configured limit.
func TestBlockQuotaNeverExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NewNodeWindow = 0 // New replaces a non-positive window with one hour
	l := New(cfg)
	now := time.Now()

	// node_A is new here, so its burst is the penalised share of
	// BlockPerMinute (10); either way it never exceeds the limit.
	accepted := 0
	for i := 0; i < 50; i++ {
		if l.Allow("node_A", "conn_1", KindBlock, now) {
			accepted++
		}
	}
	require.LessOrEqual(t, accepted, int(cfg.BlockPerMinute))
}

func TestNewNodePenaltyMultiplierAppliesToBlock(t *testing.T) {
	cfg := DefaultConfig()
	l := New(cfg)
	now := time.Now()

	accepted := 0
	for i := 0; i < 50; i++ {
		if l.Allow("node_new", "conn_1", KindBlock, now) {
			accepted++
		}
	}
	// New-node burst is BlockPerMinute * NewNodeMultiplier, rounded up to
	// at least 1 token by maxBurst.
	require.LessOrEqual(t, accepted, 1)
}

func TestPerConnectionBucketPunishesChattyLinkRegardlessOfNodeID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NewNodeWindow = 0
	l := New(cfg)
	now := time.Now()

	accepted := 0
	for i := 0; i < 200; i++ {
		nodeID := "node_rotating"
		if i%2 == 0 {
			nodeID = "node_other"
		}
		if l.Allow(nodeID, "conn_shared", KindHeartbeat, now) {
			accepted++
		}
	}
	require.LessOrEqual(t, accepted, int(cfg.HeartbeatPerMinute))
}

func TestRefillOverTimeAllowsMoreMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NewNodeWindow = 0
	cfg.SyncPerMinute = 60 // 1 per second, easy to reason about
	l := New(cfg)
	now := time.Now()

	for i := 0; i < 60; i++ {
		l.Allow("node_A", "conn_1", KindSync, now)
	}
	require.False(t, l.Allow("node_A", "conn_1", KindSync, now))

	later := now.Add(2 * time.Second)
	require.True(t, l.Allow("node_A", "conn_1", KindSync, later))
}
