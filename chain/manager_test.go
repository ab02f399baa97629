package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"srishti/block"
	"srishti/crypto"
	"srishti/event"
	"srishti/state"
)

func mustEvent(e event.Event, err error) event.Event {
	if err != nil {
		panic(err)
	}
	return e
}

func newGenesisManager(t *testing.T, timestamp int64, token string) *Manager {
	t.Helper()
	m := NewManager(state.DefaultRewards(), nil)
	_, err := m.CreateGenesis(GenesisParams{ChainEpoch: 1, Token: token, Timestamp: timestamp, Proposer: event.SystemSender})
	require.NoError(t, err)
	return m
}

func appendJoin(t *testing.T, m *Manager, nodeID, name, parentID, publicKey string, timestamp int64) block.Block {
	t.Helper()
	tip, ok := m.Tip()
	require.True(t, ok)
	e := mustEvent(event.NewNodeJoin(timestamp, event.SystemSender, nodeID, name, parentID, publicKey, ""))
	b := block.Block{
		Index: tip.Index + 1,
		Header: block.Header{
			PreviousHash: tip.Hash,
			Timestamp:    timestamp,
		},
		Body:     block.Body{Events: []event.Event{e}},
		Proposer: event.SystemSender,
	}
	require.NoError(t, b.ComputeHash())
	ok2, err := m.AddBlock(b)
	require.NoError(t, err)
	require.True(t, ok2)
	return b
}

func fixedPublicKey(t *testing.T) string {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	exported, err := crypto.ExportPublicKey(kp.Public)
	require.NoError(t, err)
	return exported
}

// Scenario 1 (spec §8): genesis + first join.
func TestScenarioGenesisAndFirstJoin(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)

	require.Equal(t, uint64(2), m.Length())
	st := m.State()
	require.Equal(t, state.RoleRoot, st.NodeRoles["node_A"])
	require.Empty(t, st.Nodes["node_A"].ParentIDs)
}

// Invariant 1: chain[i].previousHash == chain[i-1].hash.
func TestInvariantPreviousHashLinkage(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)
	appendJoin(t, m, "node_B", "Bob", "node_A", pub, 1002)

	blocks := m.Blocks()
	for i := 1; i < len(blocks); i++ {
		require.Equal(t, blocks[i-1].Hash, blocks[i].Header.PreviousHash)
	}
}

// Invariant 2 & 3: re-serialising/re-hashing and re-rooting every block
// must reproduce its stored hash and Merkle root.
func TestInvariantHashAndMerkleRootStable(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)

	for _, b := range m.Blocks() {
		okHash, err := b.VerifyHash()
		require.NoError(t, err)
		require.True(t, okHash)
		okRoot, err := b.VerifyMerkleRoot()
		require.NoError(t, err)
		require.True(t, okRoot)
	}
}

// Invariant 4: rebuild(chain) == fold(apply, empty, all events).
func TestInvariantRebuildMatchesFold(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)
	appendJoin(t, m, "node_B", "Bob", "node_A", pub, 1002)

	rebuilt, err := state.Rebuild(m.Blocks(), state.DefaultRewards())
	require.NoError(t, err)
	require.Equal(t, m.State().NodeRoles, rebuilt.NodeRoles)
	require.Equal(t, m.State().Nodes["node_B"].ParentIDs, rebuilt.Nodes["node_B"].ParentIDs)
}

func TestAddBlockRejectsIndexMismatch(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	tip, _ := m.Tip()
	pub := fixedPublicKey(t)
	e := mustEvent(event.NewNodeJoin(1001, event.SystemSender, "node_A", "Alice", "", pub, ""))
	b := block.Block{
		Index:  5,
		Header: block.Header{PreviousHash: tip.Hash, Timestamp: 1001},
		Body:   block.Body{Events: []event.Event{e}},
	}
	require.NoError(t, b.ComputeHash())
	ok, err := m.AddBlock(b)
	require.False(t, ok)
	var mismatch *ErrIndexMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestAddBlockRejectsPreviousHashMismatch(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	e := mustEvent(event.NewNodeJoin(1001, event.SystemSender, "node_A", "Alice", "", pub, ""))
	b := block.Block{
		Index:  1,
		Header: block.Header{PreviousHash: "not-the-tip", Timestamp: 1001},
		Body:   block.Body{Events: []event.Event{e}},
	}
	require.NoError(t, b.ComputeHash())
	ok, err := m.AddBlock(b)
	require.False(t, ok)
	var mismatch *ErrPreviousHashMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestAddBlockDuplicateNodeJoinIsBenign(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)

	tip, _ := m.Tip()
	e := mustEvent(event.NewNodeJoin(1002, event.SystemSender, "node_A", "Alice-again", "", pub, ""))
	b := block.Block{
		Index:  tip.Index + 1,
		Header: block.Header{PreviousHash: tip.Hash, Timestamp: 1002},
		Body:   block.Body{Events: []event.Event{e}},
	}
	require.NoError(t, b.ComputeHash())
	ok, err := m.AddBlock(b)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(2), m.Length())
}

// Invariant 7 + scenario 7 (replaceChain against a shorter candidate).
func TestReplaceChainRejectsShorterCandidate(t *testing.T) {
	m := newGenesisManager(t, 1000, "T")
	pub := fixedPublicKey(t)
	appendJoin(t, m, "node_A", "Alice", "", pub, 1001)
	before := m.State()

	err := m.ReplaceChain(m.Blocks()[:1])
	require.Error(t, err)
	var lost *ErrForkChoiceLost
	require.ErrorAs(t, err, &lost)
	require.Equal(t, before.NodeRoles, m.State().NodeRoles)
}

// Scenario 5: fork-choice tie-break by genesis timestamp, then genesis hash.
func TestScenarioForkChoiceTieBreak(t *testing.T) {
	earlier := newGenesisManager(t, 1000, "T")
	later := newGenesisManager(t, 2000, "T")

	require.True(t, ForkChoiceWins(earlier.Blocks(), later.Blocks()))
	require.False(t, ForkChoiceWins(later.Blocks(), earlier.Blocks()))

	sameTimeA := newGenesisManager(t, 1500, "A-token")
	sameTimeB := newGenesisManager(t, 1500, "B-token")
	aWins := ForkChoiceWins(sameTimeA.Blocks(), sameTimeB.Blocks())
	bWins := ForkChoiceWins(sameTimeB.Blocks(), sameTimeA.Blocks())
	require.True(t, aWins != bWins)
	if sameTimeA.Blocks()[0].Hash < sameTimeB.Blocks()[0].Hash {
		require.True(t, aWins)
	} else {
		require.True(t, bWins)
	}
}

// Scenario 6: merging unique NODE_JOIN events from a remote chain that
// lacks our own local join.
func TestScenarioMergeUniqueNodes(t *testing.T) {
	local := newGenesisManager(t, 1000, "T")
	pubA := fixedPublicKey(t)
	appendJoin(t, local, "node_A", "Alice", "", pubA, 1001)

	remote := newGenesisManager(t, 1000, "T")
	pubB := fixedPublicKey(t)
	appendJoin(t, remote, "node_B", "Bob", "", pubB, 1001)

	mergedBlock, merged, err := local.MergeUniqueNodes(remote.Blocks(), "node_B_peer", 5000)
	require.NoError(t, err)
	require.True(t, merged)
	require.Greater(t, mergedBlock.Index, remote.Length()-1)
	require.Equal(t, int64(5000), mergedBlock.Header.Timestamp)

	st := local.State()
	require.Contains(t, st.Nodes, "node_A")
	require.Contains(t, st.Nodes, "node_B")
	require.Equal(t, pubB, st.Nodes["node_B"].PublicKey)
}

func TestReplaceChainRejectsEpochMismatch(t *testing.T) {
	local := NewManager(state.DefaultRewards(), nil)
	_, err := local.CreateGenesis(GenesisParams{ChainEpoch: 1, Token: "T", Timestamp: 1000, Proposer: event.SystemSender})
	require.NoError(t, err)

	foreign := NewManager(state.DefaultRewards(), nil)
	_, err = foreign.CreateGenesis(GenesisParams{ChainEpoch: 2, Token: "T", Timestamp: 900, Proposer: event.SystemSender})
	require.NoError(t, err)

	err = local.ReplaceChain(foreign.Blocks())
	require.Error(t, err)
	var mismatch *ErrEpochMismatch
	require.ErrorAs(t, err, &mismatch)
}
