// Package chain implements the chain manager (spec §4.5): block
// acceptance, fork-choice, and genesis reconciliation layered on top of the
// pure state machine in package state. Grounded on core/blockchain.go's
// shape (a mutex-guarded struct owning the canonical block sequence, a
// height-indexed store, explicit append/replace operations) generalised
// from a single-writer append-only chain to one that also reconciles
// competing genesis blocks.
package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"srishti/block"
	"srishti/crypto"
	"srishti/event"
	"srishti/state"
)

// Persister is the subset of storage.Store the chain manager needs. It is
// optional: a Manager with a nil persister is purely in-memory (used by
// tests).
type Persister interface {
	SaveBlocks(blocks []block.Block) error
	ReplaceBlocks(blocks []block.Block) error
}

// Manager owns the canonical block sequence and the world state derived
// from it. All mutation happens through its exported methods; callers
// never touch blocks or state directly (spec §5: "the chain + state pair
// is the only contended resource; it is owned by the chain manager").
type Manager struct {
	mu        sync.RWMutex
	blocks    []block.Block
	st        *state.State
	rewards   state.RewardTable
	persister Persister
}

// NewManager constructs an empty chain manager. Call CreateGenesis or
// ReplaceChain to populate it.
func NewManager(rewards state.RewardTable, persister Persister) *Manager {
	return &Manager{
		st:        state.New(),
		rewards:   rewards,
		persister: persister,
	}
}

// GenesisParams configures CreateGenesis.
type GenesisParams struct {
	ChainEpoch uint64
	Token      string
	Timestamp  int64
	Proposer   string
}

// CreateGenesis produces block 0 carrying a GENESIS event, applies it, and
// (if a persister is configured) persists it.
func (m *Manager) CreateGenesis(params GenesisParams) (block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) != 0 {
		return block.Block{}, fmt.Errorf("chain: genesis already created")
	}
	genesisEvent, err := event.NewGenesis(params.Timestamp, params.ChainEpoch, params.Token)
	if err != nil {
		return block.Block{}, err
	}
	b := block.Block{
		Index: 0,
		Header: block.Header{
			PreviousHash: "",
			Timestamp:    params.Timestamp,
		},
		Body:     block.Body{Events: []event.Event{genesisEvent}},
		Proposer: params.Proposer,
	}
	if err := b.ComputeHash(); err != nil {
		return block.Block{}, err
	}
	next := state.New()
	if err := state.Apply(next, genesisEvent, 0, m.rewards); err != nil {
		return block.Block{}, err
	}
	m.blocks = []block.Block{b}
	m.st = next
	if m.persister != nil {
		if err := m.persister.SaveBlocks(m.blocks); err != nil {
			return block.Block{}, fmt.Errorf("chain: persist genesis: %w", err)
		}
	}
	return b, nil
}

// Length returns the current chain length.
func (m *Manager) Length() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.blocks))
}

// Tip returns the latest block. The second return value is false for an
// empty chain.
func (m *Manager) Tip() (block.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return block.Block{}, false
	}
	return m.blocks[len(m.blocks)-1], true
}

// Blocks returns a copy of the current chain.
func (m *Manager) Blocks() []block.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]block.Block(nil), m.blocks...)
}

// State returns a deep copy of the current world state.
func (m *Manager) State() *state.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Clone()
}

// AddBlock validates and appends a single block, mutating state on
// success. It implements every check in spec §4.5: index continuity,
// previous-hash linkage, hash/Merkle recomputation, optional signature
// verification, and atomic per-block event application.
//
// A NODE_JOIN for an already-known node id is treated as a benign,
// idempotent short-circuit: the block is not appended, no error is
// returned, and the caller sees (false, nil).
func (m *Manager) AddBlock(b block.Block) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBlockLocked(b)
}

func (m *Manager) addBlockLocked(b block.Block) (bool, error) {
	if err := b.IsValid(); err != nil {
		return false, err
	}
	wantIndex := uint64(len(m.blocks))
	if b.Index != wantIndex {
		return false, &ErrIndexMismatch{Want: wantIndex, Got: b.Index}
	}
	if len(m.blocks) > 0 {
		tip := m.blocks[len(m.blocks)-1]
		if b.Header.PreviousHash != tip.Hash {
			return false, &ErrPreviousHashMismatch{Want: tip.Hash, Got: b.Header.PreviousHash}
		}
	} else if b.Header.PreviousHash != "" {
		return false, &ErrPreviousHashMismatch{Want: "", Got: b.Header.PreviousHash}
	}

	okHash, err := b.VerifyHash()
	if err != nil {
		return false, err
	}
	if !okHash {
		return false, &ErrHashMismatch{}
	}
	okRoot, err := b.VerifyMerkleRoot()
	if err != nil {
		return false, err
	}
	if !okRoot {
		return false, &ErrMerkleMismatch{}
	}

	if b.Signature != "" {
		if err := m.verifyBlockSignature(b); err != nil {
			return false, err
		}
	}

	next := m.st.Clone()
	for _, e := range b.Body.Events {
		if err := state.Apply(next, e, b.Index, m.rewards); err != nil {
			var dup *state.ErrDuplicateNode
			if e.Type == event.NodeJoin && asDuplicateNode(err, &dup) {
				return false, nil
			}
			return false, err
		}
	}

	m.blocks = append(m.blocks, b)
	m.st = next
	if m.persister != nil {
		if err := m.persister.SaveBlocks([]block.Block{b}); err != nil {
			return false, fmt.Errorf("chain: persist block %d: %w", b.Index, err)
		}
	}
	blockMetrics().blocksApplied.Inc()
	return true, nil
}

func asDuplicateNode(err error, target **state.ErrDuplicateNode) bool {
	dup, ok := err.(*state.ErrDuplicateNode)
	if ok {
		*target = dup
	}
	return ok
}

func (m *Manager) verifyBlockSignature(b block.Block) error {
	node, ok := m.st.Nodes[b.Proposer]
	if !ok {
		return &ErrSignatureInvalid{}
	}
	pub, err := crypto.ImportPublicKey(node.PublicKey)
	if err != nil {
		return &ErrSignatureInvalid{}
	}
	sigBytes, err := hex.DecodeString(b.Signature)
	if err != nil {
		return &ErrSignatureInvalid{}
	}
	unsigned := b
	unsigned.Signature = ""
	digest, err := unsigned.SigningDigest()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, digest[:], sigBytes) {
		return &ErrSignatureInvalid{}
	}
	return nil
}

// ReplaceChain accepts candidate as the new canonical chain if every block
// validates from its own genesis, the genesis chainEpoch matches ours, and
// candidate wins fork-choice against the local chain (spec §4.5).
func (m *Manager) ReplaceChain(candidate []block.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(candidate) == 0 {
		return &ErrEmptyChain{}
	}

	rebuilt, err := state.Rebuild(candidate, m.rewards)
	if err != nil {
		return fmt.Errorf("chain: replace chain: candidate invalid: %w", err)
	}
	if len(m.blocks) > 0 {
		localEpoch, err := genesisChainEpoch(m.blocks)
		if err != nil {
			return err
		}
		candidateEpoch, err := genesisChainEpoch(candidate)
		if err != nil {
			return err
		}
		if candidateEpoch != localEpoch {
			return &ErrEpochMismatch{Want: localEpoch, Got: candidateEpoch}
		}
		if !ForkChoiceWins(candidate, m.blocks) {
			return &ErrForkChoiceLost{}
		}
	}

	m.blocks = append([]block.Block(nil), candidate...)
	m.st = rebuilt
	if m.persister != nil {
		if err := m.persister.ReplaceBlocks(m.blocks); err != nil {
			return fmt.Errorf("chain: persist replaced chain: %w", err)
		}
	}
	return nil
}

// ForkChoiceWins reports whether candidate beats local under the spec's
// total order: longer chain wins; tie on length, earlier genesis timestamp
// wins; tie on timestamp, lexicographically smaller genesis hash wins.
func ForkChoiceWins(candidate, local []block.Block) bool {
	if len(candidate) == 0 {
		return false
	}
	if len(local) == 0 {
		return true
	}
	if len(candidate) != len(local) {
		return len(candidate) > len(local)
	}
	cGenesis, lGenesis := candidate[0], local[0]
	if cGenesis.Header.Timestamp != lGenesis.Header.Timestamp {
		return cGenesis.Header.Timestamp < lGenesis.Header.Timestamp
	}
	return cGenesis.Hash < lGenesis.Hash
}

func genesisChainEpoch(blocks []block.Block) (uint64, error) {
	if len(blocks) == 0 {
		return 0, &ErrEmptyChain{}
	}
	genesisBlock := blocks[0]
	for _, e := range genesisBlock.Body.Events {
		if e.Type != event.Genesis {
			continue
		}
		var p event.GenesisPayload
		if err := decodePayload(e.Payload, &p); err != nil {
			return 0, err
		}
		return p.ChainEpoch, nil
	}
	return 0, fmt.Errorf("chain: genesis block carries no GENESIS event")
}

// MergeUniqueNodes repackages NODE_JOIN events present in otherBlocks for
// node ids not known locally into a single new block appended to the local
// tail, preserving node id, public key, recovery-phrase hash, and parent
// (if the parent exists locally), with a fresh timestamp (spec §4.5).
// peerID is recorded as the new block's proposer.
func (m *Manager) MergeUniqueNodes(otherBlocks []block.Block, peerID string, now int64) (block.Block, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fresh []event.Event
	for _, b := range otherBlocks {
		for _, e := range b.Body.Events {
			if e.Type != event.NodeJoin {
				continue
			}
			var p event.NodeJoinPayload
			if err := decodePayload(e.Payload, &p); err != nil {
				continue
			}
			if _, known := m.st.Nodes[p.NodeID]; known {
				continue
			}
			parentID := p.ParentID
			if parentID != "" {
				if _, ok := m.st.Nodes[parentID]; !ok {
					parentID = ""
				}
			}
			reinjected, err := event.NewNodeJoin(now, e.Sender, p.NodeID, p.Name, parentID, p.PublicKey, p.RecoveryPhraseHash)
			if err != nil {
				continue
			}
			fresh = append(fresh, reinjected)
		}
	}
	if len(fresh) == 0 {
		return block.Block{}, false, nil
	}

	tip := m.blocks[len(m.blocks)-1]
	b := block.Block{
		Index: uint64(len(m.blocks)),
		Header: block.Header{
			PreviousHash: tip.Hash,
			Timestamp:    now,
		},
		Body:     block.Body{Events: fresh},
		Proposer: peerID,
	}
	if err := b.ComputeHash(); err != nil {
		return block.Block{}, false, err
	}
	ok, err := m.addBlockLocked(b)
	if err != nil || !ok {
		return block.Block{}, false, err
	}
	return b, true, nil
}

func decodePayload(raw []byte, target any) error {
	return json.Unmarshal(raw, target)
}
