package node

import (
	"fmt"

	"srishti/block"
	"srishti/chain"
	"srishti/crypto"
	"srishti/event"
)

// restoreOrBootstrapChain replays any persisted chain into the manager, or
// (on an empty store) creates a brand-new local genesis and immediately
// self-joins. Every node bootstraps its own genesis independently; HELLO
// plus fork-choice reconciles competing genesis blocks once peers connect
// (spec §4.5 "Genesis reconciliation").
func (n *Node) restoreOrBootstrapChain() error {
	blocks, err := n.store.LoadChain()
	if err != nil {
		return fmt.Errorf("node: load chain: %w", err)
	}
	if len(blocks) > 0 {
		// ReplaceChain skips the fork-choice/epoch check entirely when the
		// manager is still empty, so this only ever restores local history.
		return n.chain.ReplaceChain(blocks)
	}
	return n.bootstrapGenesis()
}

func (n *Node) bootstrapGenesis() error {
	now := n.now()
	if _, err := n.chain.CreateGenesis(chain.GenesisParams{
		ChainEpoch: n.cfg.ChainEpoch,
		Token:      uniqueGenesisToken(),
		Timestamp:  now.Unix(),
		Proposer:   n.nodeID,
	}); err != nil {
		return fmt.Errorf("node: create genesis: %w", err)
	}
	return n.selfJoin()
}

// selfJoin appends the node's own NODE_JOIN as block 1. The block is left
// unsigned: the proposer is not yet present in world state at signature-
// verification time (it is this very event that registers it), and
// chain.Manager only enforces a signature when one is supplied.
func (n *Node) selfJoin() error {
	tip, ok := n.chain.Tip()
	if !ok {
		return fmt.Errorf("node: self-join attempted before genesis exists")
	}
	pub, err := crypto.ExportPublicKey(n.identity.Public)
	if err != nil {
		return fmt.Errorf("node: export public key: %w", err)
	}
	joinEvent, err := event.NewNodeJoin(n.now().Unix(), n.nodeID, n.nodeID, n.cfg.NodeName, "", pub, "")
	if err != nil {
		return fmt.Errorf("node: build self-join event: %w", err)
	}

	b := block.Block{
		Index:    tip.Index + 1,
		Header:   block.Header{PreviousHash: tip.Hash, Timestamp: n.now().Unix()},
		Body:     block.Body{Events: []event.Event{joinEvent}},
		Proposer: n.nodeID,
	}
	if err := b.ComputeHash(); err != nil {
		return fmt.Errorf("node: hash self-join block: %w", err)
	}
	applied, err := n.chain.AddBlock(b)
	if err != nil {
		return fmt.Errorf("node: apply self-join block: %w", err)
	}
	if !applied {
		return fmt.Errorf("node: self-join block rejected as duplicate")
	}
	return nil
}
