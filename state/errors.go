package state

import "fmt"

// ErrDuplicateNode is returned when a NODE_JOIN targets a nodeId already
// present in state. The chain manager treats this as a benign, idempotent
// short-circuit rather than a consistency failure (spec §4.5).
type ErrDuplicateNode struct{ NodeID string }

func (e *ErrDuplicateNode) Error() string { return fmt.Sprintf("state: node %q already joined", e.NodeID) }

// ErrUnknownNode is returned when an event references a node id that has
// never joined.
type ErrUnknownNode struct{ NodeID string }

func (e *ErrUnknownNode) Error() string { return fmt.Sprintf("state: unknown node %q", e.NodeID) }

// ErrUnauthorized is returned when the sender lacks the role or
// relationship required to apply an event.
type ErrUnauthorized struct{ Reason string }

func (e *ErrUnauthorized) Error() string { return fmt.Sprintf("state: unauthorized: %s", e.Reason) }

// ErrInvalidSignature is returned when a present signature fails to verify.
type ErrInvalidSignature struct{ Sender string }

func (e *ErrInvalidSignature) Error() string {
	return fmt.Sprintf("state: invalid signature for sender %q", e.Sender)
}

// ErrInsufficientBalance is returned when a KARMA_TRANSFER exceeds the
// sender's balance.
type ErrInsufficientBalance struct{ NodeID string }

func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("state: insufficient karma balance for %q", e.NodeID)
}

// ErrAlreadyRegistered is returned when INSTITUTION_REGISTER targets a
// sender already pending or verified.
type ErrAlreadyRegistered struct{ NodeID string }

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("state: %q already has an institution record", e.NodeID)
}

// ErrNotPending is returned when INSTITUTION_VERIFY targets a node with no
// pending registration.
type ErrNotPending struct{ NodeID string }

func (e *ErrNotPending) Error() string {
	return fmt.Sprintf("state: %q has no pending institution registration", e.NodeID)
}

// ErrNotVerified is returned when INSTITUTION_REVOKE or SOULBOUND_MINT
// targets a node that is not a verified institution.
type ErrNotVerified struct{ NodeID string }

func (e *ErrNotVerified) Error() string {
	return fmt.Sprintf("state: %q is not a verified institution", e.NodeID)
}

// ErrNotParent is returned when SOULBOUND_MINT targets a recipient that is
// not a child of the issuing institution.
type ErrNotParent struct {
	Issuer, Recipient string
}

func (e *ErrNotParent) Error() string {
	return fmt.Sprintf("state: %q is not a parent of %q", e.Issuer, e.Recipient)
}

// ErrUnknownProposal is returned when VOTE_CAST references a proposal id
// that does not exist.
type ErrUnknownProposal struct{ ProposalID string }

func (e *ErrUnknownProposal) Error() string {
	return fmt.Sprintf("state: unknown proposal %q", e.ProposalID)
}

// ErrProposalClosed is returned when VOTE_CAST arrives after a proposal's
// voting window has ended.
type ErrProposalClosed struct{ ProposalID string }

func (e *ErrProposalClosed) Error() string {
	return fmt.Sprintf("state: proposal %q voting window has closed", e.ProposalID)
}

// ErrDuplicateVote is returned when a node votes twice on the same proposal.
type ErrDuplicateVote struct {
	ProposalID, VoterID string
}

func (e *ErrDuplicateVote) Error() string {
	return fmt.Sprintf("state: %q already voted on proposal %q", e.VoterID, e.ProposalID)
}

// ErrInvalidThreshold is returned when SOCIAL_RECOVERY_UPDATE's threshold
// falls outside [1, len(guardians)].
type ErrInvalidThreshold struct{ NodeID string }

func (e *ErrInvalidThreshold) Error() string {
	return fmt.Sprintf("state: invalid recovery threshold for %q", e.NodeID)
}

// ErrInvalidAmount is returned when a KARMA_TRANSFER carries a zero amount.
type ErrInvalidAmount struct{ NodeID string }

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("state: karma transfer from %q requires a non-zero amount", e.NodeID)
}

// ErrUnknownEventType is returned by Apply for an event type it does not
// dispatch on (should be unreachable once event.Validate has run).
type ErrUnknownEventType struct{ Type string }

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("state: unknown event type %q", e.Type)
}
