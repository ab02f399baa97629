package chain

import "fmt"

// ErrIndexMismatch is returned when a candidate block's index does not
// equal the local chain's current length.
type ErrIndexMismatch struct {
	Want, Got uint64
}

func (e *ErrIndexMismatch) Error() string {
	return fmt.Sprintf("chain: expected index %d, got %d", e.Want, e.Got)
}

// ErrPreviousHashMismatch is returned when a candidate block does not chain
// from the local tip.
type ErrPreviousHashMismatch struct {
	Want, Got string
}

func (e *ErrPreviousHashMismatch) Error() string {
	return fmt.Sprintf("chain: previous hash mismatch: want %s, got %s", e.Want, e.Got)
}

// ErrHashMismatch is returned when a block's stored hash does not match its
// recomputed hash.
type ErrHashMismatch struct{}

func (e *ErrHashMismatch) Error() string { return "chain: block hash does not match its contents" }

// ErrMerkleMismatch is returned when a block's header Merkle root does not
// match the root recomputed from its body.
type ErrMerkleMismatch struct{}

func (e *ErrMerkleMismatch) Error() string {
	return "chain: block header merkle root does not match its body"
}

// ErrSignatureInvalid is returned when a block carries a signature that
// fails to verify against its proposer's recorded public key.
type ErrSignatureInvalid struct{}

func (e *ErrSignatureInvalid) Error() string { return "chain: block signature does not verify" }

// ErrEpochMismatch is returned when a candidate chain's genesis chainEpoch
// does not equal the local chain's.
type ErrEpochMismatch struct {
	Want, Got uint64
}

func (e *ErrEpochMismatch) Error() string {
	return fmt.Sprintf("chain: genesis epoch mismatch: want %d, got %d", e.Want, e.Got)
}

// ErrEmptyChain is returned when an operation requires at least a genesis
// block and none is present.
type ErrEmptyChain struct{}

func (e *ErrEmptyChain) Error() string { return "chain: chain is empty" }

// ErrForkChoiceLost is returned by replaceChain when the candidate chain
// does not win the fork-choice comparison against the local chain.
type ErrForkChoiceLost struct{}

func (e *ErrForkChoiceLost) Error() string { return "chain: candidate chain lost fork-choice" }
