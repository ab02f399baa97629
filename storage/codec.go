package storage

import (
	"github.com/ethereum/go-ethereum/rlp"

	"srishti/block"
	"srishti/event"
)

// rlpEvent mirrors event.Event with pointer fields flattened to strings,
// since RLP (unlike encoding/json) has no native nil-pointer encoding for
// scalar fields — absence is represented by the empty string instead
// (grounded on consensus/store.Store, which RLP-encodes plain slices and
// byte strings rather than pointer-bearing structs).
type rlpEvent struct {
	Type      string
	Timestamp int64
	Sender    string
	Recipient string
	Payload   []byte
	Signature string
}

func toRLPEvent(e event.Event) rlpEvent {
	return rlpEvent{
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		Sender:    e.Sender,
		Recipient: e.RecipientOrEmpty(),
		Payload:   []byte(e.Payload),
		Signature: e.SignatureOrEmpty(),
	}
}

func (r rlpEvent) toEvent() event.Event {
	e := event.Event{
		Type:      event.Type(r.Type),
		Timestamp: r.Timestamp,
		Sender:    r.Sender,
		Payload:   r.Payload,
	}
	if r.Recipient != "" {
		recipient := r.Recipient
		e.Recipient = &recipient
	}
	if r.Signature != "" {
		signature := r.Signature
		e.Signature = &signature
	}
	return e
}

type rlpBlock struct {
	Index              uint64
	PreviousHash       string
	Timestamp          int64
	Nonce              uint64
	MerkleRoot         string
	Events             []rlpEvent
	Proposer           string
	ProofNodeID        string
	ProofScore         uint64 // score scaled by 1e6 to keep RLP integer-only
	ProofTimestamp     int64
	Hash               string
	Signature          string
}

// scoreScale converts the block's float64 participation score to/from a
// fixed-point RLP-safe integer representation. RLP has no float encoding.
const scoreScale = 1_000_000

func encodeBlock(b block.Block) ([]byte, error) {
	events := make([]rlpEvent, len(b.Body.Events))
	for i, e := range b.Body.Events {
		events[i] = toRLPEvent(e)
	}
	r := rlpBlock{
		Index:          b.Index,
		PreviousHash:   b.Header.PreviousHash,
		Timestamp:      b.Header.Timestamp,
		Nonce:          b.Header.Nonce,
		MerkleRoot:     b.Header.MerkleRoot,
		Events:         events,
		Proposer:       b.Proposer,
		ProofNodeID:    b.ParticipationProof.NodeID,
		ProofScore:     uint64(b.ParticipationProof.Score * scoreScale),
		ProofTimestamp: b.ParticipationProof.Timestamp,
		Hash:           b.Hash,
		Signature:      b.Signature,
	}
	return rlp.EncodeToBytes(r)
}

func decodeBlock(data []byte) (block.Block, error) {
	var r rlpBlock
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return block.Block{}, err
	}
	events := make([]event.Event, len(r.Events))
	for i, e := range r.Events {
		events[i] = e.toEvent()
	}
	return block.Block{
		Index: r.Index,
		Header: block.Header{
			PreviousHash: r.PreviousHash,
			Timestamp:    r.Timestamp,
			Nonce:        r.Nonce,
			MerkleRoot:   r.MerkleRoot,
		},
		Body:     block.Body{Events: events},
		Proposer: r.Proposer,
		ParticipationProof: block.ParticipationProof{
			NodeID:    r.ProofNodeID,
			Score:     float64(r.ProofScore) / scoreScale,
			Timestamp: r.ProofTimestamp,
		},
		Hash:      r.Hash,
		Signature: r.Signature,
	}, nil
}
