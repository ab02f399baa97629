package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresenceDirectTakesPrecedenceOverPiggybacked(t *testing.T) {
	p := NewPresence()
	now := time.Unix(1000, 0)

	p.RecordPiggybacked("node_x", now)
	entry, ok := p.Get("node_x")
	require.True(t, ok)
	require.False(t, entry.Direct)

	p.RecordDirect("node_x", true, now.Add(time.Second))
	entry, ok = p.Get("node_x")
	require.True(t, ok)
	require.True(t, entry.Direct)

	// A later piggybacked entry must not clobber the direct one.
	p.RecordPiggybacked("node_x", now.Add(2*time.Second))
	entry, ok = p.Get("node_x")
	require.True(t, ok)
	require.True(t, entry.Direct)
}

func TestPresenceExpireMarksStaleNodesOffline(t *testing.T) {
	p := NewPresence()
	now := time.Unix(1000, 0)
	p.RecordDirect("node_x", true, now)

	p.Expire(now.Add(time.Second), time.Minute)
	entry, _ := p.Get("node_x")
	require.True(t, entry.Online)

	p.Expire(now.Add(2*time.Minute), time.Minute)
	entry, _ = p.Get("node_x")
	require.False(t, entry.Online)
}

func TestParentRequestPoolResolveClearsEntry(t *testing.T) {
	pool := NewParentRequestPool()
	pool.Add(PendingParentRequest{NodeID: "node_x", ParentID: "node_parent"})
	require.Len(t, pool.Pending(), 1)

	req, ok := pool.Resolve("node_x")
	require.True(t, ok)
	require.Equal(t, "node_parent", req.ParentID)
	require.Empty(t, pool.Pending())

	_, ok = pool.Resolve("node_x")
	require.False(t, ok)
}
