package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"srishti/block"
	"srishti/event"
)

func mustEvent(e event.Event, err error) event.Event {
	if err != nil {
		panic(err)
	}
	return e
}

func testBlock(t *testing.T, index uint64, previousHash string) block.Block {
	t.Helper()
	e := mustEvent(event.NewNodeJoin(1000+int64(index), event.SystemSender, fmt.Sprintf("node-%d", index), "name", "", "pub", ""))
	b := block.Block{
		Index: index,
		Header: block.Header{
			PreviousHash: previousHash,
			Timestamp:    1000 + int64(index),
		},
		Body:     block.Body{Events: []event.Event{e}},
		Proposer: event.SystemSender,
	}
	require.NoError(t, b.ComputeHash())
	return b
}

func openTestStore(t *testing.T, epoch uint64) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "chain.db"), epoch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadChainRoundTrips(t *testing.T) {
	s := openTestStore(t, 1)

	b0 := testBlock(t, 0, "")
	b1 := testBlock(t, 1, b0.Hash)
	require.NoError(t, s.SaveBlocks([]block.Block{b0, b1}))

	loaded, err := s.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, b0.Hash, loaded[0].Hash)
	require.Equal(t, b1.Hash, loaded[1].Hash)
}

func TestReplaceBlocksIsAtomic(t *testing.T) {
	s := openTestStore(t, 1)

	b0 := testBlock(t, 0, "")
	b1 := testBlock(t, 1, b0.Hash)
	require.NoError(t, s.SaveBlocks([]block.Block{b0, b1}))

	fb0 := testBlock(t, 0, "")
	fb0.Header.Timestamp = 9999
	require.NoError(t, fb0.ComputeHash())
	require.NoError(t, s.ReplaceBlocks([]block.Block{fb0}))

	loaded, err := s.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, fb0.Hash, loaded[0].Hash)
}

func TestIdentityRoundTrips(t *testing.T) {
	s := openTestStore(t, 1)

	rec := IdentityRecord{NodeID: "node-a", Name: "alice", PublicKey: "pub", PrivateKey: []byte("secret")}
	require.NoError(t, s.SaveIdentity(rec))

	loaded, ok, err := s.LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.NodeID, loaded.NodeID)
	require.Equal(t, rec.PrivateKey, loaded.PrivateKey)
}

func TestLoadIdentityMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t, 1)

	_, ok, err := s.LoadIdentity()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckpointTracksHighestIndex(t *testing.T) {
	s := openTestStore(t, 1)

	require.NoError(t, s.SaveCheckpoint(Checkpoint{Index: 3, Hash: "h3", Timestamp: 300}))
	require.NoError(t, s.SaveCheckpoint(Checkpoint{Index: 7, Hash: "h7", Timestamp: 700}))
	require.NoError(t, s.SaveCheckpoint(Checkpoint{Index: 5, Hash: "h5", Timestamp: 500}))

	latest, ok, err := s.LatestCheckpoint()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), latest.Index)
}

func TestReopenWithSameEpochPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.db")

	s1, err := Open(path, 3)
	require.NoError(t, err)
	b0 := testBlock(t, 0, "")
	require.NoError(t, s1.SaveBlocks([]block.Block{b0}))
	require.NoError(t, s1.Close())

	s2, err := Open(path, 3)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestReopenWithHigherEpochWipesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.db")

	s1, err := Open(path, 1)
	require.NoError(t, err)
	b0 := testBlock(t, 0, "")
	require.NoError(t, s1.SaveBlocks([]block.Block{b0}))
	require.NoError(t, s1.SaveIdentity(IdentityRecord{NodeID: "node-a", Name: "alice"}))
	require.NoError(t, s1.Close())

	s2, err := Open(path, 2)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.LoadChain()
	require.NoError(t, err)
	require.Empty(t, loaded)

	_, ok, err := s2.LoadIdentity()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReopenWithLowerEpochIsRejectedSilentlyAsNoOpWipe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.db")

	s1, err := Open(path, 5)
	require.NoError(t, err)
	b0 := testBlock(t, 0, "")
	require.NoError(t, s1.SaveBlocks([]block.Block{b0}))
	require.NoError(t, s1.Close())

	s2, err := Open(path, 4)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}
