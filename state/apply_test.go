package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"srishti/event"
)

func applyOK(t *testing.T, s *State, e event.Event, blockIndex uint64) {
	t.Helper()
	require.NoError(t, Apply(s, e, blockIndex, DefaultRewards()))
}

// Scenario 1: genesis + first join (spec §8).
func TestScenarioGenesisAndFirstJoin(t *testing.T) {
	s := New()
	genesis, err := event.NewGenesis(1, 1, "T")
	require.NoError(t, err)
	applyOK(t, s, genesis, 0)

	join, err := event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")
	require.NoError(t, err)
	applyOK(t, s, join, 1)

	require.Equal(t, RoleRoot, s.NodeRoles["node_A"])
	require.Empty(t, s.Nodes["node_A"].ParentIDs)
}

// Scenario 2: institution lifecycle.
func TestScenarioInstitutionLifecycle(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "node_A", "pub_b", "")), 2)
	applyOK(t, s, mustEvent(event.NewInstitutionRegister(4, "node_B", "EDUCATION")), 3)
	applyOK(t, s, mustEvent(event.NewInstitutionVerify(5, "node_A", "node_B", true, "")), 4)

	_, verified := s.Institutions.Verified["node_B"]
	require.True(t, verified)
	require.Equal(t, RoleInstitution, s.NodeRoles["node_B"])
}

// Scenario 3: credential minting authorisation.
func TestScenarioCredentialMintingAuthorisation(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "node_A", "pub_b", "")), 2)
	applyOK(t, s, mustEvent(event.NewInstitutionRegister(4, "node_B", "EDUCATION")), 3)
	applyOK(t, s, mustEvent(event.NewInstitutionVerify(5, "node_A", "node_B", true, "")), 4)
	applyOK(t, s, mustEvent(event.NewNodeJoin(6, "node_C", "node_C", "Carol", "node_B", "pub_c", "")), 5)

	// node_A is not a child of node_B: mint must fail.
	mintBad := mustEvent(event.NewSoulboundMint(7, "node_B", "node_A", "X", "", "", "", true))
	require.Error(t, Apply(s, mintBad, 6, DefaultRewards()))

	// node_C is a child of node_B: mint succeeds.
	mintGood := mustEvent(event.NewSoulboundMint(8, "node_B", "node_C", "X", "", "", "", true))
	applyOK(t, s, mintGood, 7)
	require.Len(t, s.SoulboundTokens["node_C"], 1)
	require.Equal(t, "X", s.SoulboundTokens["node_C"][0].AchievementID)
}

// Scenario 4: karma transfer.
func TestScenarioKarmaTransfer(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "", "pub_b", "")), 2)

	applyOK(t, s, mustEvent(event.NewKarmaEarn(4, "node_A", 100, "seed")), 3)
	applyOK(t, s, mustEvent(event.NewKarmaTransfer(5, "node_A", "node_B", 30, "")), 4)

	require.Equal(t, uint64(70+10), s.KarmaOf("node_A").Uint64()) // +10 NODE_JOIN reward
	require.Equal(t, uint64(30+10), s.KarmaOf("node_B").Uint64())

	err := Apply(s, mustEvent(event.NewKarmaTransfer(6, "node_A", "node_B", 90, "")), 5, DefaultRewards())
	require.Error(t, err)
	require.Equal(t, uint64(80), s.KarmaOf("node_A").Uint64())
	require.Equal(t, uint64(40), s.KarmaOf("node_B").Uint64())
}

// A KARMA_TRANSFER built by hand (not through event.NewKarmaTransfer, e.g. as
// replayed from a remote block) must still be rejected for a zero amount —
// the state machine, not the convenience constructor, is the enforcement
// point.
func TestKarmaTransferZeroAmountRejectedEvenWithoutConstructor(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "", "pub_b", "")), 2)
	applyOK(t, s, mustEvent(event.NewKarmaEarn(4, "node_A", 100, "seed")), 3)

	recipient := "node_B"
	raw, err := json.Marshal(event.KarmaAmountPayload{Amount: 0})
	require.NoError(t, err)
	e := event.Event{
		Type:      event.KarmaTransfer,
		Timestamp: 5,
		Sender:    "node_A",
		Recipient: &recipient,
		Payload:   raw,
	}

	err = Apply(s, e, 4, DefaultRewards())
	require.Error(t, err)
	var invalidAmount *ErrInvalidAmount
	require.ErrorAs(t, err, &invalidAmount)
}

func TestDuplicateNodeJoinFails(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	join := mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", ""))
	applyOK(t, s, join, 1)

	err := Apply(s, join, 2, DefaultRewards())
	var dup *ErrDuplicateNode
	require.ErrorAs(t, err, &dup)
}

func TestNodeParentUpdateAuthorization(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "", "pub_b", "")), 2)
	applyOK(t, s, mustEvent(event.NewNodeJoin(4, "node_C", "node_C", "Carol", "", "pub_c", "")), 3)

	// A stranger (node_C) cannot add itself as node_B's parent.
	bad := mustEvent(event.NewNodeParentUpdate(5, "node_C", "node_B", event.ActionAdd, "node_C", "node_C", nil))
	require.Error(t, Apply(s, bad, 4, DefaultRewards()))

	// node_B can add node_A as its own parent (self-authorized).
	good := mustEvent(event.NewNodeParentUpdate(5, "node_B", "node_B", event.ActionAdd, "node_B", "node_A", nil))
	applyOK(t, s, good, 4)
	require.Contains(t, s.Nodes["node_B"].ParentIDs, "node_A")

	// Idempotent re-add is a silent no-op, not an error.
	require.NoError(t, Apply(s, good, 5, DefaultRewards()))
	require.Len(t, s.Nodes["node_B"].ParentIDs, 1)
}

func TestVoteCastRejectedAfterVotingWindow(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)

	proposal := mustEvent(event.NewGovProposal(3, "node_A", "prop_1", "raise the limit", 5, 50))
	applyOK(t, s, proposal, 1)
	require.Equal(t, uint64(6), s.Proposals["prop_1"].VotingEndsAtBlockIndex)

	vote := mustEvent(event.NewVoteCast(4, "node_A", "prop_1", "YES"))
	applyOK(t, s, vote, 6)

	lateVote := mustEvent(event.NewVoteCast(5, "node_A", "prop_1", "NO"))
	err := Apply(s, lateVote, 7, DefaultRewards())
	var closed *ErrProposalClosed
	require.ErrorAs(t, err, &closed)
}

func TestKarmaConservationAcrossTransfers(t *testing.T) {
	s := New()
	applyOK(t, s, mustEvent(event.NewGenesis(1, 1, "T")), 0)
	applyOK(t, s, mustEvent(event.NewNodeJoin(2, "node_A", "node_A", "Alice", "", "pub_a", "")), 1)
	applyOK(t, s, mustEvent(event.NewNodeJoin(3, "node_B", "node_B", "Bob", "", "pub_b", "")), 2)
	applyOK(t, s, mustEvent(event.NewKarmaEarn(4, "node_A", 100, "seed")), 3)
	applyOK(t, s, mustEvent(event.NewKarmaTransfer(5, "node_A", "node_B", 40, "")), 4)

	sum := s.KarmaOf("node_A").Uint64() + s.KarmaOf("node_B").Uint64()
	require.Equal(t, s.TotalKarmaAwarded.Uint64(), sum)
}

func mustEvent(e event.Event, err error) event.Event {
	if err != nil {
		panic(err)
	}
	return e
}
