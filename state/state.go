// Package state implements the deterministic state machine that folds the
// ledger's event sequence into world state (spec §3, §4.4). Apply is a
// pure function of (state, event, blockIndex); Rebuild folds it over an
// entire chain. Nothing here reads the wall clock, generates randomness,
// or performs I/O.
package state

import (
	"encoding/json"

	"github.com/holiman/uint256"
)

// Role is a node's privilege level in the ledger.
type Role string

const (
	RoleUser             Role = "USER"
	RoleInstitution      Role = "INSTITUTION"
	RoleGovernanceAdmin   Role = "GOVERNANCE_ADMIN"
	RoleRoot              Role = "ROOT"
)

// Node is a participant's identity record.
type Node struct {
	Name               string   `json:"name"`
	ParentIDs          []string `json:"parentIds"`
	PublicKey          string   `json:"publicKey"`
	JoinedAt           int64    `json:"joinedAt"`
	RecoveryPhraseHash string   `json:"recoveryPhraseHash,omitempty"`
}

// hasParent reports whether parentID is already present in ParentIDs.
func (n *Node) hasParent(parentID string) bool {
	for _, p := range n.ParentIDs {
		if p == parentID {
			return true
		}
	}
	return false
}

// InstitutionRecord tracks an institution's registration lifecycle.
type InstitutionRecord struct {
	NodeID       string `json:"nodeId"`
	Category     string `json:"category"`
	RegisteredAt int64  `json:"registeredAt"`
	DecidedAt    int64  `json:"decidedAt,omitempty"`
	DecidedBy    string `json:"decidedBy,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Institutions partitions institution records by lifecycle stage.
type Institutions struct {
	Verified map[string]*InstitutionRecord `json:"verified"`
	Pending  map[string]*InstitutionRecord `json:"pending"`
	Revoked  map[string]*InstitutionRecord `json:"revoked"`
}

// Credential is a soulbound (non-transferable) token minted by a verified
// institution to a child node.
type Credential struct {
	Issuer        string `json:"issuer"`
	AchievementID string `json:"achievementId"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	ProofRef      string `json:"proofRef,omitempty"`
	Revocable     bool   `json:"revocable"`
	MintedAt      int64  `json:"mintedAt"`
}

// Proposal is a governance proposal and its accumulated votes.
type Proposal struct {
	ID                     string            `json:"id"`
	Creator                string            `json:"creator"`
	Description            string            `json:"description"`
	VotingEndsAtBlockIndex uint64            `json:"votingEndsAtBlockIndex"`
	QuorumPct              float64           `json:"quorumPct"`
	Votes                  map[string]string `json:"votes"`
	Status                 string            `json:"status"`
}

// Proposal statuses.
const (
	ProposalOpen   = "OPEN"
	ProposalClosed = "CLOSED"
)

// AccountState holds social-recovery configuration for a node.
type AccountState struct {
	Guardians         []string `json:"guardians"`
	RecoveryThreshold int      `json:"recoveryThreshold"`
}

// ParentRequest is an advisory, never-auto-applied request for a parent
// relationship change.
type ParentRequest struct {
	ChildID     string            `json:"childId"`
	ParentID    string            `json:"parentId"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RequestedAt int64             `json:"requestedAt"`
}

// AppEventRecord is the materialised form of an APP_EVENT, kept for
// efficient secondary-index queries (spec §3 appEventIndex).
type AppEventRecord struct {
	Seq        int             `json:"seq"`
	BlockIndex uint64          `json:"blockIndex"`
	Timestamp  int64           `json:"timestamp"`
	Sender     string          `json:"sender"`
	Recipient  string          `json:"recipient,omitempty"`
	AppID      string          `json:"appId"`
	Action     string          `json:"action"`
	Ref        string          `json:"ref,omitempty"`
	Target     string          `json:"target,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// State is the full derived world state. It is never the source of truth —
// it is always reproducible by replaying the block sequence from genesis
// (spec §3 Lifecycle).
type State struct {
	ChainEpoch   uint64 `json:"chainEpoch"`
	GenesisToken string `json:"genesisToken"`

	Nodes     map[string]*Node `json:"nodes"`
	NodeRoles map[string]Role  `json:"nodeRoles"`

	Institutions Institutions `json:"institutions"`

	SoulboundTokens map[string][]Credential `json:"soulboundTokens"`

	KarmaBalances     map[string]*uint256.Int `json:"karmaBalances"`
	TotalKarmaAwarded *uint256.Int            `json:"totalKarmaAwarded"`

	Proposals map[string]*Proposal `json:"proposals"`

	AccountStates map[string]*AccountState `json:"accountStates"`

	// PendingParentRequests is keyed parentId -> childId -> request.
	PendingParentRequests map[string]map[string]*ParentRequest `json:"pendingParentRequests"`

	AppEvents     []AppEventRecord          `json:"appEvents"`
	AppEventIndex map[string][]int          `json:"appEventIndex"`

	rootNodeID string
}

// New returns a zeroed world state, equivalent to the state immediately
// after a GENESIS event is applied (spec §4.4: "GENESIS: zeroes state").
func New() *State {
	return &State{
		Nodes:                 make(map[string]*Node),
		NodeRoles:             make(map[string]Role),
		Institutions:          Institutions{Verified: map[string]*InstitutionRecord{}, Pending: map[string]*InstitutionRecord{}, Revoked: map[string]*InstitutionRecord{}},
		SoulboundTokens:       make(map[string][]Credential),
		KarmaBalances:         make(map[string]*uint256.Int),
		TotalKarmaAwarded:     uint256.NewInt(0),
		Proposals:             make(map[string]*Proposal),
		AccountStates:         make(map[string]*AccountState),
		PendingParentRequests: make(map[string]map[string]*ParentRequest),
		AppEvents:             nil,
		AppEventIndex:         make(map[string][]int),
	}
}

// KarmaOf returns the karma balance of nodeID, or zero if unknown.
func (s *State) KarmaOf(nodeID string) *uint256.Int {
	if bal, ok := s.KarmaBalances[nodeID]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// RootNodeID returns the node id promoted to ROOT on first join, or "" if
// no node has joined yet.
func (s *State) RootNodeID() string { return s.rootNodeID }

// Clone deep-copies the state so callers (e.g. the chain manager during a
// speculative replay) can mutate a copy without affecting the original.
func (s *State) Clone() *State {
	out := New()
	out.ChainEpoch = s.ChainEpoch
	out.GenesisToken = s.GenesisToken
	out.rootNodeID = s.rootNodeID
	for k, v := range s.Nodes {
		clone := *v
		clone.ParentIDs = append([]string(nil), v.ParentIDs...)
		out.Nodes[k] = &clone
	}
	for k, v := range s.NodeRoles {
		out.NodeRoles[k] = v
	}
	for k, v := range s.Institutions.Verified {
		c := *v
		out.Institutions.Verified[k] = &c
	}
	for k, v := range s.Institutions.Pending {
		c := *v
		out.Institutions.Pending[k] = &c
	}
	for k, v := range s.Institutions.Revoked {
		c := *v
		out.Institutions.Revoked[k] = &c
	}
	for k, v := range s.SoulboundTokens {
		out.SoulboundTokens[k] = append([]Credential(nil), v...)
	}
	for k, v := range s.KarmaBalances {
		out.KarmaBalances[k] = v.Clone()
	}
	out.TotalKarmaAwarded = s.TotalKarmaAwarded.Clone()
	for k, v := range s.Proposals {
		c := *v
		c.Votes = make(map[string]string, len(v.Votes))
		for vk, vv := range v.Votes {
			c.Votes[vk] = vv
		}
		out.Proposals[k] = &c
	}
	for k, v := range s.AccountStates {
		c := *v
		c.Guardians = append([]string(nil), v.Guardians...)
		out.AccountStates[k] = &c
	}
	for parentID, children := range s.PendingParentRequests {
		out.PendingParentRequests[parentID] = make(map[string]*ParentRequest, len(children))
		for childID, req := range children {
			c := *req
			out.PendingParentRequests[parentID][childID] = &c
		}
	}
	out.AppEvents = append([]AppEventRecord(nil), s.AppEvents...)
	for k, v := range s.AppEventIndex {
		out.AppEventIndex[k] = append([]int(nil), v...)
	}
	return out
}
