// Package block implements the content-addressed unit of commitment (spec
// §3, §4.3): a header committing to a Merkle root over the body's events,
// wrapped in an envelope carrying the chain index, proposer, a
// participation proof, and the block's own hash.
package block

import (
	"encoding/hex"
	"fmt"

	"srishti/crypto"
	"srishti/event"
)

// Header commits to the previous block and to the body via a Merkle root.
type Header struct {
	PreviousHash string `json:"previousHash"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        uint64 `json:"nonce"`
	MerkleRoot   string `json:"merkleRoot"`
}

// OrderedFields fixes the canonical-JSON key order used when a Header is
// embedded in a hash/signature input (previousHash, timestamp, nonce,
// merkleRoot).
func (h Header) OrderedFields() []crypto.Field {
	return []crypto.Field{
		{Key: "previousHash", Value: h.PreviousHash},
		{Key: "timestamp", Value: h.Timestamp},
		{Key: "nonce", Value: h.Nonce},
		{Key: "merkleRoot", Value: h.MerkleRoot},
	}
}

// Body is the ordered sequence of events committed by a block.
type Body struct {
	Events []event.Event `json:"events"`
}

// ParticipationProof is opaque metadata attached to a block for future
// consensus use; the core only hashes it (spec GLOSSARY).
type ParticipationProof struct {
	NodeID    string  `json:"nodeId"`
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"`
}

// OrderedFields fixes the canonical-JSON key order (nodeId, score, timestamp).
func (p ParticipationProof) OrderedFields() []crypto.Field {
	return []crypto.Field{
		{Key: "nodeId", Value: p.NodeID},
		{Key: "score", Value: p.Score},
		{Key: "timestamp", Value: p.Timestamp},
	}
}

// Block is a pair of (header, body) plus envelope metadata.
type Block struct {
	Index              uint64             `json:"index"`
	Header             Header             `json:"header"`
	Body               Body               `json:"body"`
	Proposer           string             `json:"proposer"`
	ParticipationProof ParticipationProof `json:"participationProof"`
	Hash               string             `json:"hash"`
	Signature          string             `json:"signature,omitempty"`
}

// hashInput is the exact object the spec hashes: {index, header, proposer,
// participationProof}. Note that the body's events are not hashed
// directly here — they are committed to via header.merkleRoot.
type hashInput struct {
	Index              uint64
	Header             Header
	Proposer           string
	ParticipationProof ParticipationProof
}

func (h hashInput) OrderedFields() []crypto.Field {
	return []crypto.Field{
		{Key: "index", Value: h.Index},
		{Key: "header", Value: h.Header},
		{Key: "proposer", Value: h.Proposer},
		{Key: "participationProof", Value: h.ParticipationProof},
	}
}

// signInput is the broader object a block signature covers: (index,
// header, events, proposer, participationProof).
type signInput struct {
	Index              uint64
	Header             Header
	Events             []event.Event
	Proposer           string
	ParticipationProof ParticipationProof
}

func (s signInput) OrderedFields() []crypto.Field {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		events[i] = e
	}
	return []crypto.Field{
		{Key: "index", Value: s.Index},
		{Key: "header", Value: s.Header},
		{Key: "events", Value: events},
		{Key: "proposer", Value: s.Proposer},
		{Key: "participationProof", Value: s.ParticipationProof},
	}
}

// ComputeHash (re)computes the Merkle root from the body, fills the
// header, then computes the block hash. It is idempotent: the same body
// plus the same envelope fields always produce the same hash.
func (b *Block) ComputeHash() error {
	root, err := MerkleRoot(b.Body.Events)
	if err != nil {
		return fmt.Errorf("block: compute merkle root: %w", err)
	}
	b.Header.MerkleRoot = hex.EncodeToString(root[:])

	sum, err := crypto.Hash(hashInput{
		Index:              b.Index,
		Header:             b.Header,
		Proposer:           b.Proposer,
		ParticipationProof: b.ParticipationProof,
	})
	if err != nil {
		return fmt.Errorf("block: compute hash: %w", err)
	}
	b.Hash = hex.EncodeToString(sum[:])
	return nil
}

// SigningDigest returns the bytes a proposer signs over: (index, header,
// events, proposer, participationProof).
func (b *Block) SigningDigest() ([32]byte, error) {
	return crypto.Hash(signInput{
		Index:              b.Index,
		Header:             b.Header,
		Events:             b.Body.Events,
		Proposer:           b.Proposer,
		ParticipationProof: b.ParticipationProof,
	})
}

// VerifyMerkleRoot recomputes the Merkle root over the body and compares it
// to the header's committed value (spec property 3).
func (b *Block) VerifyMerkleRoot() (bool, error) {
	root, err := MerkleRoot(b.Body.Events)
	if err != nil {
		return false, err
	}
	return hex.EncodeToString(root[:]) == b.Header.MerkleRoot, nil
}

// VerifyHash recomputes the block hash from its current fields and
// compares it to the stored Hash (spec property 2).
func (b *Block) VerifyHash() (bool, error) {
	want := b.Hash
	clone := *b
	if err := clone.ComputeHash(); err != nil {
		return false, err
	}
	return clone.Hash == want, nil
}

// IsValid performs the structural check described in spec §4.3: timestamp,
// body and hash fields are present, and (for index > 0) so is the previous
// hash.
func (b *Block) IsValid() error {
	if b.Header.Timestamp <= 0 {
		return fmt.Errorf("block: missing timestamp")
	}
	if b.Body.Events == nil {
		return fmt.Errorf("block: missing body")
	}
	if b.Hash == "" {
		return fmt.Errorf("block: missing hash")
	}
	if b.Index > 0 && b.Header.PreviousHash == "" {
		return fmt.Errorf("block: missing previous hash for non-genesis block")
	}
	return nil
}
