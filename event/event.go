// Package event defines the closed sum type of ledger events (spec §3) and
// the constructors/validators that build and structurally check them. The
// state machine (package state) is the only consumer that interprets an
// event's effect on world state; this package only knows its shape.
package event

import (
	"encoding/json"
	"fmt"

	"srishti/crypto"
)

// Type enumerates the event kinds the ledger understands. It is a closed
// sum type: the state machine dispatches on Type and rejects anything else.
type Type string

const (
	Genesis                Type = "GENESIS"
	NodeJoin               Type = "NODE_JOIN"
	NodeParentUpdate       Type = "NODE_PARENT_UPDATE"
	InstitutionRegister    Type = "INSTITUTION_REGISTER"
	InstitutionVerify      Type = "INSTITUTION_VERIFY"
	InstitutionRevoke      Type = "INSTITUTION_REVOKE"
	SoulboundMint          Type = "SOULBOUND_MINT"
	KarmaEarn              Type = "KARMA_EARN"
	KarmaTransfer          Type = "KARMA_TRANSFER"
	GovProposal            Type = "GOV_PROPOSAL"
	VoteCast               Type = "VOTE_CAST"
	SocialRecoveryUpdate   Type = "SOCIAL_RECOVERY_UPDATE"
	AppEvent               Type = "APP_EVENT"
	NodeParentRequest      Type = "NODE_PARENT_REQUEST"
)

// SystemSender is the reserved sender identity for system-originated
// events. NewGenesis and NewKarmaEarn set it; Validate requires it only
// for KARMA_EARN.
const SystemSender = "SYSTEM"

// knownTypes backs Type.Valid.
var knownTypes = map[Type]bool{
	Genesis:              true,
	NodeJoin:             true,
	NodeParentUpdate:     true,
	InstitutionRegister:  true,
	InstitutionVerify:    true,
	InstitutionRevoke:    true,
	SoulboundMint:        true,
	KarmaEarn:            true,
	KarmaTransfer:        true,
	GovProposal:          true,
	VoteCast:             true,
	SocialRecoveryUpdate: true,
	AppEvent:             true,
	NodeParentRequest:    true,
}

// Valid reports whether t is one of the closed set of known event types.
func (t Type) Valid() bool { return knownTypes[t] }

// Event is a tagged record carried in a block's body. Payload is opaque at
// this layer (type-specific) and is decoded by the state machine once the
// tag is known.
type Event struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Recipient *string         `json:"recipient,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Signature *string         `json:"signature,omitempty"`
}

// OrderedFields implements crypto.OrderedFields, fixing the canonical-JSON
// key order the spec requires (§9): type, timestamp, sender, recipient,
// payload, signature.
func (e Event) OrderedFields() []crypto.Field {
	var recipient any
	if e.Recipient != nil {
		recipient = *e.Recipient
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	var signature any
	if e.Signature != nil {
		signature = *e.Signature
	}
	return []crypto.Field{
		{Key: "type", Value: string(e.Type)},
		{Key: "timestamp", Value: e.Timestamp},
		{Key: "sender", Value: e.Sender},
		{Key: "recipient", Value: recipient},
		{Key: "payload", Value: payload},
		{Key: "signature", Value: signature},
	}
}

// Hash returns the canonical-JSON SHA-256 digest of the event, used as a
// Merkle leaf (spec §4.3).
func (e Event) Hash() ([32]byte, error) {
	return crypto.Hash(e)
}

// RecipientOrEmpty returns the recipient or "" if unset.
func (e Event) RecipientOrEmpty() string {
	if e.Recipient == nil {
		return ""
	}
	return *e.Recipient
}

// SignatureOrEmpty returns the hex-encoded signature or "" if unset.
func (e Event) SignatureOrEmpty() string {
	if e.Signature == nil {
		return ""
	}
	return *e.Signature
}

// ErrMalformed is returned by constructors and Validate when a required
// field is missing or a payload cannot be decoded.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string { return fmt.Sprintf("event: malformed event: %s", e.Reason) }

func malformed(format string, args ...any) error {
	return &ErrMalformed{Reason: fmt.Sprintf(format, args...)}
}

// Validate performs the structural check described in spec §4.2: the type
// is known, mandatory fields are present, and the payload (if any) decodes
// against the type's schema. It does not verify signatures — that requires
// world state and is performed by the state machine during apply.
func Validate(e Event) error {
	if !e.Type.Valid() {
		return malformed("unknown event type %q", e.Type)
	}
	if e.Timestamp <= 0 {
		return malformed("%s: missing timestamp", e.Type)
	}
	if e.Sender == "" {
		return malformed("%s: missing sender", e.Type)
	}
	switch e.Type {
	case Genesis:
		var p GenesisPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.Token == "" {
			return malformed("GENESIS: missing token")
		}
	case NodeJoin:
		var p NodeJoinPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.NodeID == "" || p.Name == "" || p.PublicKey == "" {
			return malformed("NODE_JOIN: missing nodeId, name, or publicKey")
		}
	case NodeParentUpdate:
		var p NodeParentUpdatePayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.NodeID == "" || p.ApproverID == "" {
			return malformed("NODE_PARENT_UPDATE: missing nodeId or approverId")
		}
		switch p.Action {
		case ActionAdd, ActionRemove:
			if p.ParentID == "" {
				return malformed("NODE_PARENT_UPDATE: %s requires parentId", p.Action)
			}
		case ActionSet:
		default:
			return malformed("NODE_PARENT_UPDATE: unknown action %q", p.Action)
		}
	case InstitutionRegister:
		var p InstitutionRegisterPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.Category == "" {
			return malformed("INSTITUTION_REGISTER: missing category")
		}
	case InstitutionVerify:
		var p InstitutionVerifyPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.TargetNodeID == "" {
			return malformed("INSTITUTION_VERIFY: missing targetNodeId")
		}
	case InstitutionRevoke:
		var p InstitutionRevokePayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.TargetNodeID == "" {
			return malformed("INSTITUTION_REVOKE: missing targetNodeId")
		}
	case SoulboundMint:
		var p SoulboundMintPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if e.RecipientOrEmpty() == "" || p.AchievementID == "" {
			return malformed("SOULBOUND_MINT: missing recipient or achievementId")
		}
	case KarmaEarn:
		var p KarmaAmountPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if e.Sender != SystemSender {
			return malformed("KARMA_EARN: sender must be SYSTEM")
		}
		if e.RecipientOrEmpty() == "" || p.Amount == 0 {
			return malformed("KARMA_EARN: missing recipient or non-zero amount")
		}
	case KarmaTransfer:
		var p KarmaAmountPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if e.RecipientOrEmpty() == "" || p.Amount == 0 {
			return malformed("KARMA_TRANSFER: missing recipient or non-zero amount")
		}
	case GovProposal:
		var p GovProposalPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.ProposalID == "" || p.Description == "" || p.VotingPeriodBlocks == 0 {
			return malformed("GOV_PROPOSAL: missing proposalId, description, or votingPeriodBlocks")
		}
	case VoteCast:
		var p VoteCastPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.ProposalID == "" || p.Choice == "" {
			return malformed("VOTE_CAST: missing proposalId or choice")
		}
	case SocialRecoveryUpdate:
		var p SocialRecoveryUpdatePayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.Threshold < 1 || p.Threshold > len(p.Guardians) {
			return malformed("SOCIAL_RECOVERY_UPDATE: threshold must be within [1, len(guardians)]")
		}
	case AppEvent:
		var p AppEventPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.AppID == "" || p.Action == "" {
			return malformed("APP_EVENT: missing appId or action")
		}
	case NodeParentRequest:
		var p NodeParentRequestPayload
		if err := decode(e.Payload, &p); err != nil {
			return err
		}
		if p.ChildID == "" || p.ParentID == "" {
			return malformed("NODE_PARENT_REQUEST: missing childId or parentId")
		}
	}
	return nil
}

func decode(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return malformed("missing payload")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return malformed("invalid payload: %v", err)
	}
	return nil
}

func encode(payload any) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Every payload type here is a plain struct of JSON-safe fields;
		// Marshal only fails for types that cannot appear here (chan, func).
		panic(fmt.Sprintf("event: encode payload: %v", err))
	}
	return raw
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
