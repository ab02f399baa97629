package state

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"srishti/block"
	"srishti/crypto"
	"srishti/event"
)

// Apply folds a single event into state, mutating it in place. It validates
// every authorization and consistency rule before mutating anything, so a
// returned error leaves s unchanged (spec §4.4).
func Apply(s *State, e event.Event, blockIndex uint64, rewards RewardTable) error {
	if err := verifySignature(s, e); err != nil {
		return err
	}
	switch e.Type {
	case event.Genesis:
		return applyGenesis(s, e)
	case event.NodeJoin:
		return applyNodeJoin(s, e, rewards)
	case event.NodeParentUpdate:
		return applyNodeParentUpdate(s, e)
	case event.InstitutionRegister:
		return applyInstitutionRegister(s, e)
	case event.InstitutionVerify:
		return applyInstitutionVerify(s, e)
	case event.InstitutionRevoke:
		return applyInstitutionRevoke(s, e)
	case event.SoulboundMint:
		return applySoulboundMint(s, e, rewards)
	case event.KarmaEarn:
		return applyKarmaEarn(s, e)
	case event.KarmaTransfer:
		return applyKarmaTransfer(s, e)
	case event.GovProposal:
		return applyGovProposal(s, e, blockIndex, rewards)
	case event.VoteCast:
		return applyVoteCast(s, e, blockIndex, rewards)
	case event.SocialRecoveryUpdate:
		return applySocialRecoveryUpdate(s, e)
	case event.AppEvent:
		return applyAppEvent(s, e, blockIndex)
	case event.NodeParentRequest:
		return applyNodeParentRequest(s, e)
	default:
		return &ErrUnknownEventType{Type: string(e.Type)}
	}
}

// Rebuild folds every event of every block, in order, over a fresh state
// (spec §3 Lifecycle: world state is always reproducible from genesis).
func Rebuild(blocks []block.Block, rewards RewardTable) (*State, error) {
	s := New()
	for _, b := range blocks {
		for _, e := range b.Body.Events {
			if err := Apply(s, e, b.Index, rewards); err != nil {
				return nil, fmt.Errorf("state: rebuild: block %d: %w", b.Index, err)
			}
		}
	}
	return s, nil
}

// verifySignature checks e.Signature, when present, against the public key
// of record for e.Sender. NODE_JOIN is special-cased: the joining node is
// self-attesting a public key not yet in state, so it is verified against
// the key embedded in its own payload instead of a state lookup. SYSTEM
// never signs (it holds no keypair) and unsigned events are not checked
// here — callers that need mandatory signing enforce it at ingress.
func verifySignature(s *State, e event.Event) error {
	if e.Signature == nil {
		return nil
	}
	sigBytes, err := hex.DecodeString(*e.Signature)
	if err != nil {
		return &ErrInvalidSignature{Sender: e.Sender}
	}

	var pub ed25519.PublicKey
	if e.Type == event.NodeJoin {
		var p event.NodeJoinPayload
		if decErr := decodeInto(e.Payload, &p); decErr != nil {
			return decErr
		}
		pub, err = crypto.ImportPublicKey(p.PublicKey)
		if err != nil {
			return &ErrInvalidSignature{Sender: e.Sender}
		}
	} else if e.Sender == event.SystemSender {
		return nil
	} else {
		node, ok := s.Nodes[e.Sender]
		if !ok {
			return &ErrUnknownNode{NodeID: e.Sender}
		}
		pub, err = crypto.ImportPublicKey(node.PublicKey)
		if err != nil {
			return &ErrInvalidSignature{Sender: e.Sender}
		}
	}

	unsigned := e
	unsigned.Signature = nil
	ok, err := crypto.Verify(pub, unsigned, sigBytes)
	if err != nil || !ok {
		return &ErrInvalidSignature{Sender: e.Sender}
	}
	return nil
}

func applyGenesis(s *State, e event.Event) error {
	var p event.GenesisPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	fresh := New()
	*s = *fresh
	s.ChainEpoch = p.ChainEpoch
	s.GenesisToken = p.Token
	return nil
}

func hasRole(s *State, nodeID string, roles ...Role) bool {
	r, ok := s.NodeRoles[nodeID]
	if !ok {
		return false
	}
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func applyNodeJoin(s *State, e event.Event, rewards RewardTable) error {
	var p event.NodeJoinPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, exists := s.Nodes[p.NodeID]; exists {
		return &ErrDuplicateNode{NodeID: p.NodeID}
	}

	var parentIDs []string
	if p.ParentID != "" {
		if _, ok := s.Nodes[p.ParentID]; !ok {
			return &ErrUnknownNode{NodeID: p.ParentID}
		}
		parentIDs = []string{p.ParentID}
	}

	isRoot := len(s.Nodes) == 0

	node := &Node{
		Name:               p.Name,
		ParentIDs:          parentIDs,
		PublicKey:          p.PublicKey,
		JoinedAt:           e.Timestamp,
		RecoveryPhraseHash: p.RecoveryPhraseHash,
	}
	s.Nodes[p.NodeID] = node
	if isRoot {
		s.NodeRoles[p.NodeID] = RoleRoot
		s.rootNodeID = p.NodeID
	} else {
		s.NodeRoles[p.NodeID] = RoleUser
	}
	creditKarma(s, p.NodeID, rewards[event.NodeJoin])
	return nil
}

func applyNodeParentUpdate(s *State, e event.Event) error {
	var p event.NodeParentUpdatePayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	node, ok := s.Nodes[p.NodeID]
	if !ok {
		return &ErrUnknownNode{NodeID: p.NodeID}
	}
	authorized := p.ApproverID == p.NodeID || node.hasParent(p.ApproverID) || hasRole(s, p.ApproverID, RoleRoot, RoleGovernanceAdmin)
	if !authorized {
		return &ErrUnauthorized{Reason: "sender is neither the node, one of its parents, nor an admin"}
	}

	switch p.Action {
	case event.ActionAdd:
		if p.ParentID == p.NodeID {
			return &ErrUnauthorized{Reason: "a node cannot be its own parent"}
		}
		if _, ok := s.Nodes[p.ParentID]; !ok {
			return &ErrUnknownNode{NodeID: p.ParentID}
		}
		if !node.hasParent(p.ParentID) {
			node.ParentIDs = append(node.ParentIDs, p.ParentID)
		}
	case event.ActionRemove:
		node.ParentIDs = removeString(node.ParentIDs, p.ParentID)
	case event.ActionSet:
		for _, id := range p.ParentIDs {
			if id == p.NodeID {
				return &ErrUnauthorized{Reason: "a node cannot be its own parent"}
			}
			if _, ok := s.Nodes[id]; !ok {
				return &ErrUnknownNode{NodeID: id}
			}
		}
		if len(p.ParentIDs) == 0 {
			node.ParentIDs = nil
		} else {
			node.ParentIDs = dedupeStrings(p.ParentIDs)
		}
	default:
		return &ErrUnauthorized{Reason: fmt.Sprintf("unknown action %q", p.Action)}
	}
	return nil
}

func applyInstitutionRegister(s *State, e event.Event) error {
	var p event.InstitutionRegisterPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Nodes[e.Sender]; !ok {
		return &ErrUnknownNode{NodeID: e.Sender}
	}
	if _, ok := s.Institutions.Pending[e.Sender]; ok {
		return &ErrAlreadyRegistered{NodeID: e.Sender}
	}
	if _, ok := s.Institutions.Verified[e.Sender]; ok {
		return &ErrAlreadyRegistered{NodeID: e.Sender}
	}
	s.Institutions.Pending[e.Sender] = &InstitutionRecord{
		NodeID:       e.Sender,
		Category:     p.Category,
		RegisteredAt: e.Timestamp,
	}
	return nil
}

func applyInstitutionVerify(s *State, e event.Event) error {
	var p event.InstitutionVerifyPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if !hasRole(s, e.Sender, RoleRoot, RoleGovernanceAdmin) {
		return &ErrUnauthorized{Reason: "INSTITUTION_VERIFY requires ROOT or GOVERNANCE_ADMIN"}
	}
	rec, ok := s.Institutions.Pending[p.TargetNodeID]
	if !ok {
		return &ErrNotPending{NodeID: p.TargetNodeID}
	}
	delete(s.Institutions.Pending, p.TargetNodeID)
	rec.DecidedAt = e.Timestamp
	rec.DecidedBy = e.Sender
	rec.Reason = p.Reason
	if p.Approved {
		s.Institutions.Verified[p.TargetNodeID] = rec
		s.NodeRoles[p.TargetNodeID] = RoleInstitution
	} else {
		s.Institutions.Revoked[p.TargetNodeID] = rec
	}
	return nil
}

func applyInstitutionRevoke(s *State, e event.Event) error {
	var p event.InstitutionRevokePayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if !hasRole(s, e.Sender, RoleRoot) {
		return &ErrUnauthorized{Reason: "INSTITUTION_REVOKE requires ROOT"}
	}
	rec, ok := s.Institutions.Verified[p.TargetNodeID]
	if !ok {
		return &ErrNotVerified{NodeID: p.TargetNodeID}
	}
	delete(s.Institutions.Verified, p.TargetNodeID)
	rec.DecidedAt = e.Timestamp
	rec.DecidedBy = e.Sender
	rec.Reason = p.Reason
	s.Institutions.Revoked[p.TargetNodeID] = rec
	s.NodeRoles[p.TargetNodeID] = RoleUser
	return nil
}

func applySoulboundMint(s *State, e event.Event, rewards RewardTable) error {
	var p event.SoulboundMintPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Institutions.Verified[e.Sender]; !ok {
		return &ErrNotVerified{NodeID: e.Sender}
	}
	recipient := e.RecipientOrEmpty()
	node, ok := s.Nodes[recipient]
	if !ok {
		return &ErrUnknownNode{NodeID: recipient}
	}
	if !node.hasParent(e.Sender) {
		return &ErrNotParent{Issuer: e.Sender, Recipient: recipient}
	}
	s.SoulboundTokens[recipient] = append(s.SoulboundTokens[recipient], Credential{
		Issuer:        e.Sender,
		AchievementID: p.AchievementID,
		Title:         p.Title,
		Description:   p.Description,
		ProofRef:      p.ProofRef,
		Revocable:     p.Revocable,
		MintedAt:      e.Timestamp,
	})
	creditKarma(s, recipient, rewards[event.SoulboundMint])
	return nil
}

func applyKarmaEarn(s *State, e event.Event) error {
	var p event.KarmaAmountPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if e.Sender != event.SystemSender {
		return &ErrUnauthorized{Reason: "KARMA_EARN requires SYSTEM sender"}
	}
	recipient := e.RecipientOrEmpty()
	if _, ok := s.Nodes[recipient]; !ok {
		return &ErrUnknownNode{NodeID: recipient}
	}
	creditKarma(s, recipient, p.Amount)
	return nil
}

func applyKarmaTransfer(s *State, e event.Event) error {
	var p event.KarmaAmountPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Nodes[e.Sender]; !ok {
		return &ErrUnknownNode{NodeID: e.Sender}
	}
	recipient := e.RecipientOrEmpty()
	if _, ok := s.Nodes[recipient]; !ok {
		return &ErrUnknownNode{NodeID: recipient}
	}
	if p.Amount == 0 {
		return &ErrInvalidAmount{NodeID: e.Sender}
	}
	amount := uint256.NewInt(p.Amount)
	balance := s.KarmaOf(e.Sender)
	if balance.Cmp(amount) < 0 {
		return &ErrInsufficientBalance{NodeID: e.Sender}
	}
	debitKarma(s, e.Sender, p.Amount)
	creditKarma(s, recipient, p.Amount)
	return nil
}

func applyGovProposal(s *State, e event.Event, blockIndex uint64, rewards RewardTable) error {
	var p event.GovProposalPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Nodes[e.Sender]; !ok {
		return &ErrUnknownNode{NodeID: e.Sender}
	}
	if _, exists := s.Proposals[p.ProposalID]; exists {
		return fmt.Errorf("state: GOV_PROPOSAL: proposal %q already exists", p.ProposalID)
	}
	s.Proposals[p.ProposalID] = &Proposal{
		ID:                     p.ProposalID,
		Creator:                e.Sender,
		Description:            p.Description,
		VotingEndsAtBlockIndex: blockIndex + p.VotingPeriodBlocks,
		QuorumPct:              p.QuorumPct,
		Votes:                  make(map[string]string),
		Status:                 ProposalOpen,
	}
	creditKarma(s, e.Sender, rewards[event.GovProposal])
	return nil
}

func applyVoteCast(s *State, e event.Event, blockIndex uint64, rewards RewardTable) error {
	var p event.VoteCastPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Nodes[e.Sender]; !ok {
		return &ErrUnknownNode{NodeID: e.Sender}
	}
	proposal, ok := s.Proposals[p.ProposalID]
	if !ok {
		return &ErrUnknownProposal{ProposalID: p.ProposalID}
	}
	if blockIndex > proposal.VotingEndsAtBlockIndex {
		return &ErrProposalClosed{ProposalID: p.ProposalID}
	}
	if _, voted := proposal.Votes[e.Sender]; voted {
		return &ErrDuplicateVote{ProposalID: p.ProposalID, VoterID: e.Sender}
	}
	proposal.Votes[e.Sender] = p.Choice
	if blockIndex == proposal.VotingEndsAtBlockIndex {
		proposal.Status = ProposalClosed
	}
	creditKarma(s, e.Sender, rewards[event.VoteCast])
	return nil
}

func applySocialRecoveryUpdate(s *State, e event.Event) error {
	var p event.SocialRecoveryUpdatePayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if _, ok := s.Nodes[e.Sender]; !ok {
		return &ErrUnknownNode{NodeID: e.Sender}
	}
	if p.Threshold < 1 || p.Threshold > len(p.Guardians) {
		return &ErrInvalidThreshold{NodeID: e.Sender}
	}
	s.AccountStates[e.Sender] = &AccountState{
		Guardians:         dedupeStrings(p.Guardians),
		RecoveryThreshold: p.Threshold,
	}
	return nil
}

func applyAppEvent(s *State, e event.Event, blockIndex uint64) error {
	var p event.AppEventPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	data := extractDataField(e.Payload)
	rec := AppEventRecord{
		Seq:        len(s.AppEvents),
		BlockIndex: blockIndex,
		Timestamp:  e.Timestamp,
		Sender:     e.Sender,
		Recipient:  e.RecipientOrEmpty(),
		AppID:      p.AppID,
		Action:     p.Action,
		Ref:        p.Ref,
		Target:     p.Target,
		Data:       data,
	}
	s.AppEvents = append(s.AppEvents, rec)
	s.AppEventIndex[p.AppID] = append(s.AppEventIndex[p.AppID], rec.Seq)
	return nil
}

func applyNodeParentRequest(s *State, e event.Event) error {
	var p event.NodeParentRequestPayload
	if err := decodeInto(e.Payload, &p); err != nil {
		return err
	}
	if e.Sender != p.ChildID {
		return &ErrUnauthorized{Reason: "NODE_PARENT_REQUEST sender must be the requesting child"}
	}
	if _, ok := s.Nodes[p.ChildID]; !ok {
		return &ErrUnknownNode{NodeID: p.ChildID}
	}
	if _, ok := s.Nodes[p.ParentID]; !ok {
		return &ErrUnknownNode{NodeID: p.ParentID}
	}
	if s.PendingParentRequests[p.ParentID] == nil {
		s.PendingParentRequests[p.ParentID] = make(map[string]*ParentRequest)
	}
	s.PendingParentRequests[p.ParentID][p.ChildID] = &ParentRequest{
		ChildID:     p.ChildID,
		ParentID:    p.ParentID,
		Reason:      p.Reason,
		Metadata:    p.Metadata,
		RequestedAt: e.Timestamp,
	}
	return nil
}

func creditKarma(s *State, nodeID string, amount uint64) {
	if amount == 0 {
		return
	}
	bal, ok := s.KarmaBalances[nodeID]
	if !ok {
		bal = uint256.NewInt(0)
	}
	delta := uint256.NewInt(amount)
	bal = new(uint256.Int).Add(bal, delta)
	s.KarmaBalances[nodeID] = bal
	s.TotalKarmaAwarded = new(uint256.Int).Add(s.TotalKarmaAwarded, delta)
}

func debitKarma(s *State, nodeID string, amount uint64) {
	bal := s.KarmaOf(nodeID)
	delta := uint256.NewInt(amount)
	s.KarmaBalances[nodeID] = new(uint256.Int).Sub(bal, delta)
}

func removeString(in []string, target string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func decodeInto(raw []byte, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("state: decode payload: %w", err)
	}
	return nil
}

// extractDataField pulls the opaque "data" key out of an APP_EVENT payload
// without round-tripping through AppEventPayload.Data (typed any), so the
// original JSON shape is preserved verbatim in the materialised record.
func extractDataField(raw json.RawMessage) json.RawMessage {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	return wrapper.Data
}
