package block

import (
	"srishti/crypto"
	"srishti/event"
)

// MerkleRoot computes the Merkle root over a block body's events (spec
// §4.3): leaves are SHA-256(canonical-JSON(event)); an internal node is
// SHA-256(left || right); an odd-width level duplicates its last element;
// an empty body hashes to SHA-256("").
func MerkleRoot(events []event.Event) ([32]byte, error) {
	if len(events) == 0 {
		return crypto.HashBytes([]byte("")), nil
	}
	level := make([][32]byte, len(events))
	for i, e := range events {
		leaf, err := e.Hash()
		if err != nil {
			return [32]byte{}, err
		}
		level[i] = leaf
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := range next {
			left := level[2*i]
			right := level[2*i+1]
			buf := make([]byte, 0, 64)
			buf = append(buf, left[:]...)
			buf = append(buf, right[:]...)
			next[i] = crypto.HashBytes(buf)
		}
		level = next
	}
	return level[0], nil
}

// MerkleProof is the path of sibling hashes from a leaf to the root, with a
// left/right marker bit per level (true = sibling is on the left).
type MerkleProof struct {
	Siblings    [][32]byte
	SiblingLeft []bool
}

// ProveMerkle builds the inclusion proof for the event at index idx.
func ProveMerkle(events []event.Event, idx int) (MerkleProof, error) {
	if idx < 0 || idx >= len(events) {
		return MerkleProof{}, errIndexRange(idx, len(events))
	}
	level := make([][32]byte, len(events))
	for i, e := range events {
		leaf, err := e.Hash()
		if err != nil {
			return MerkleProof{}, err
		}
		level[i] = leaf
	}
	var proof MerkleProof
	pos := idx
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := pos ^ 1
		proof.Siblings = append(proof.Siblings, level[siblingIdx])
		proof.SiblingLeft = append(proof.SiblingLeft, siblingIdx < pos)
		next := make([][32]byte, len(level)/2)
		for i := range next {
			left := level[2*i]
			right := level[2*i+1]
			buf := make([]byte, 0, 64)
			buf = append(buf, left[:]...)
			buf = append(buf, right[:]...)
			next[i] = crypto.HashBytes(buf)
		}
		level = next
		pos /= 2
	}
	return proof, nil
}

// VerifyMerkleProof checks that leaf combines with proof to produce root.
func VerifyMerkleProof(leaf [32]byte, proof MerkleProof, root [32]byte) bool {
	current := leaf
	for i, sibling := range proof.Siblings {
		buf := make([]byte, 0, 64)
		if proof.SiblingLeft[i] {
			buf = append(buf, sibling[:]...)
			buf = append(buf, current[:]...)
		} else {
			buf = append(buf, current[:]...)
			buf = append(buf, sibling[:]...)
		}
		current = crypto.HashBytes(buf)
	}
	return current == root
}

func errIndexRange(idx, n int) error {
	return &indexRangeError{idx: idx, n: n}
}

type indexRangeError struct {
	idx, n int
}

func (e *indexRangeError) Error() string {
	return "block: merkle proof index out of range"
}
