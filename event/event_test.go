package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenesisRequiresToken(t *testing.T) {
	_, err := NewGenesis(1, 1, "")
	require.Error(t, err)

	e, err := NewGenesis(1, 1, "T")
	require.NoError(t, err)
	require.Equal(t, Genesis, e.Type)
	require.Equal(t, SystemSender, e.Sender)
}

func TestNewNodeJoinRequiresFields(t *testing.T) {
	_, err := NewNodeJoin(1, "node_a", "", "Alice", "", "pub", "")
	require.Error(t, err)

	e, err := NewNodeJoin(1, "node_a", "node_a", "Alice", "", "pub", "")
	require.NoError(t, err)
	require.Equal(t, NodeJoin, e.Type)
}

func TestNewNodeParentUpdateValidatesAction(t *testing.T) {
	_, err := NewNodeParentUpdate(1, "node_a", "node_a", "BOGUS", "node_a", "node_b", nil)
	require.Error(t, err)

	e, err := NewNodeParentUpdate(1, "node_a", "node_a", ActionAdd, "node_a", "node_b", nil)
	require.NoError(t, err)
	require.Equal(t, NodeParentUpdate, e.Type)

	_, err = NewNodeParentUpdate(1, "node_a", "node_a", ActionAdd, "node_a", "", nil)
	require.Error(t, err, "ADD requires parentId")

	_, err = NewNodeParentUpdate(1, "node_a", "node_a", ActionSet, "node_a", "", []string{"node_b", "node_c"})
	require.NoError(t, err, "SET does not require parentId")
}

func TestNewKarmaEarnRequiresSystemSenderImplicitly(t *testing.T) {
	e, err := NewKarmaEarn(1, "node_a", 10, "reward")
	require.NoError(t, err)
	require.Equal(t, SystemSender, e.Sender)
	require.Equal(t, "node_a", e.RecipientOrEmpty())
}

func TestValidateRejectsUnknownType(t *testing.T) {
	err := Validate(Event{Type: "BOGUS", Timestamp: 1, Sender: "x"})
	require.Error(t, err)
}

func TestValidateRejectsMissingTimestampOrSender(t *testing.T) {
	err := Validate(Event{Type: Genesis, Sender: "x"})
	require.Error(t, err)

	err = Validate(Event{Type: Genesis, Timestamp: 1})
	require.Error(t, err)
}

func TestEventHashIsStableAndSensitiveToPayload(t *testing.T) {
	e1, err := NewKarmaEarn(1, "node_a", 10, "reward")
	require.NoError(t, err)
	e2, err := NewKarmaEarn(1, "node_a", 20, "reward")
	require.NoError(t, err)

	h1, err := e1.Hash()
	require.NoError(t, err)
	h1Again, err := e1.Hash()
	require.NoError(t, err)
	h2, err := e2.Hash()
	require.NoError(t, err)

	require.Equal(t, h1, h1Again)
	require.NotEqual(t, h1, h2)
}

func TestSocialRecoveryUpdateThresholdBounds(t *testing.T) {
	_, err := NewSocialRecoveryUpdate(1, "node_a", []string{"g1", "g2"}, 0)
	require.Error(t, err)

	_, err = NewSocialRecoveryUpdate(1, "node_a", []string{"g1", "g2"}, 3)
	require.Error(t, err)

	_, err = NewSocialRecoveryUpdate(1, "node_a", []string{"g1", "g2"}, 2)
	require.NoError(t, err)
}
