package event

// Parent-set mutation actions for NODE_PARENT_UPDATE.
const (
	ActionAdd    = "ADD"
	ActionRemove = "REMOVE"
	ActionSet    = "SET"
)

// GenesisPayload carries the network's chain epoch and a token unique to
// this network instance (spec §3 GENESIS).
type GenesisPayload struct {
	ChainEpoch uint64 `json:"chainEpoch"`
	Token      string `json:"token"`
}

// NodeJoinPayload introduces a new node.
type NodeJoinPayload struct {
	NodeID             string `json:"nodeId"`
	Name               string `json:"name"`
	ParentID           string `json:"parentId,omitempty"`
	PublicKey          string `json:"publicKey"`
	RecoveryPhraseHash string `json:"recoveryPhraseHash,omitempty"`
}

// NodeParentUpdatePayload mutates a node's parent set.
//
// ParentID is used for ADD/REMOVE. ParentIDs is used for SET; a nil or
// empty ParentIDs means the node becomes independent (see DESIGN.md open
// question on SET-with-null semantics).
type NodeParentUpdatePayload struct {
	NodeID     string   `json:"nodeId"`
	Action     string   `json:"action"`
	ParentID   string   `json:"parentId,omitempty"`
	ParentIDs  []string `json:"parentIds,omitempty"`
	ApproverID string   `json:"approverId"`
}

// InstitutionRegisterPayload requests the institution role for the sender.
type InstitutionRegisterPayload struct {
	Category string `json:"category"`
}

// InstitutionVerifyPayload approves or rejects a pending institution
// registration. Restricted to ROOT / GOVERNANCE_ADMIN senders.
type InstitutionVerifyPayload struct {
	TargetNodeID string `json:"targetNodeId"`
	Approved     bool   `json:"approved"`
	Reason       string `json:"reason,omitempty"`
}

// InstitutionRevokePayload revokes a previously-verified institution.
// Restricted to ROOT senders.
type InstitutionRevokePayload struct {
	TargetNodeID string `json:"targetNodeId"`
	Reason       string `json:"reason,omitempty"`
}

// SoulboundMintPayload issues a non-transferable credential. The recipient
// is carried in the enclosing Event.Recipient field.
type SoulboundMintPayload struct {
	AchievementID string `json:"achievementId"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	ProofRef      string `json:"proofRef,omitempty"`
	Revocable     bool   `json:"revocable"`
}

// KarmaAmountPayload is shared by KARMA_EARN and KARMA_TRANSFER; the
// recipient is carried in the enclosing Event.Recipient field.
type KarmaAmountPayload struct {
	Amount uint64 `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// GovProposalPayload creates a governance proposal.
type GovProposalPayload struct {
	ProposalID         string  `json:"proposalId"`
	Description        string  `json:"description"`
	VotingPeriodBlocks uint64  `json:"votingPeriodBlocks"`
	QuorumPct          float64 `json:"quorumPct"`
}

// VoteCastPayload records a vote against an existing proposal.
type VoteCastPayload struct {
	ProposalID string `json:"proposalId"`
	Choice     string `json:"choice"`
}

// SocialRecoveryUpdatePayload replaces a node's guardian set.
type SocialRecoveryUpdatePayload struct {
	Guardians []string `json:"guardians"`
	Threshold int      `json:"threshold"`
}

// AppEventPayload is the opaque envelope layered applications use.
type AppEventPayload struct {
	AppID  string `json:"appId"`
	Action string `json:"action"`
	Ref    string `json:"ref,omitempty"`
	Target string `json:"target,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NodeParentRequestPayload is an advisory request for a parent relationship
// change; it never auto-applies (spec §4.4).
type NodeParentRequestPayload struct {
	ChildID  string            `json:"childId"`
	ParentID string            `json:"parentId"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
