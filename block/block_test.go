package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"srishti/crypto"
	"srishti/event"
)

func sampleEvents(t *testing.T) []event.Event {
	t.Helper()
	e1, err := event.NewGenesis(1, 1, "T")
	require.NoError(t, err)
	e2, err := event.NewNodeJoin(2, "node_a", "node_a", "Alice", "", "pub", "")
	require.NoError(t, err)
	return []event.Event{e1, e2}
}

func TestMerkleRootOfEmptyBodyIsHashOfEmptyString(t *testing.T) {
	root, err := MerkleRoot(nil)
	require.NoError(t, err)
	require.Equal(t, crypto.HashBytes([]byte("")), root)
}

func TestMerkleRootIsDeterministic(t *testing.T) {
	events := sampleEvents(t)
	r1, err := MerkleRoot(events)
	require.NoError(t, err)
	r2, err := MerkleRoot(events)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
}

func TestMerkleRootChangesWithEvents(t *testing.T) {
	events := sampleEvents(t)
	r1, err := MerkleRoot(events)
	require.NoError(t, err)
	r2, err := MerkleRoot(events[:1])
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}

func TestMerkleProofVerifies(t *testing.T) {
	events := sampleEvents(t)
	root, err := MerkleRoot(events)
	require.NoError(t, err)

	for i, e := range events {
		proof, err := ProveMerkle(events, i)
		require.NoError(t, err)
		leaf, err := e.Hash()
		require.NoError(t, err)
		require.True(t, VerifyMerkleProof(leaf, proof, root))
	}
}

func TestProveMerkleRejectsOutOfRange(t *testing.T) {
	events := sampleEvents(t)
	_, err := ProveMerkle(events, len(events))
	require.Error(t, err)
}

func newTestBlock(t *testing.T) *Block {
	t.Helper()
	b := &Block{
		Index: 0,
		Header: Header{
			PreviousHash: "",
			Timestamp:    1,
			Nonce:        0,
		},
		Body:     Body{Events: sampleEvents(t)},
		Proposer: "node_a",
		ParticipationProof: ParticipationProof{
			NodeID:    "node_a",
			Score:     1,
			Timestamp: 1,
		},
	}
	require.NoError(t, b.ComputeHash())
	return b
}

func TestComputeHashFillsMerkleRootAndHash(t *testing.T) {
	b := newTestBlock(t)
	require.NotEmpty(t, b.Header.MerkleRoot)
	require.NotEmpty(t, b.Hash)
}

func TestVerifyHashDetectsTampering(t *testing.T) {
	b := newTestBlock(t)
	ok, err := b.VerifyHash()
	require.NoError(t, err)
	require.True(t, ok)

	b.Proposer = "node_b"
	ok, err = b.VerifyHash()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMerkleRootDetectsBodyTampering(t *testing.T) {
	b := newTestBlock(t)
	ok, err := b.VerifyMerkleRoot()
	require.NoError(t, err)
	require.True(t, ok)

	b.Body.Events = b.Body.Events[:1]
	ok, err = b.VerifyMerkleRoot()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsValidRequiresPreviousHashForNonGenesis(t *testing.T) {
	b := newTestBlock(t)
	require.NoError(t, b.IsValid())

	b.Index = 1
	b.Header.PreviousHash = ""
	require.Error(t, b.IsValid())
}

func TestSigningDigestCoversEvents(t *testing.T) {
	b := newTestBlock(t)
	d1, err := b.SigningDigest()
	require.NoError(t, err)

	b2 := *b
	b2.Body.Events = b.Body.Events[:1]
	d2, err := b2.SigningDigest()
	require.NoError(t, err)

	require.NotEqual(t, d1, d2)
}
