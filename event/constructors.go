package event

// NewGenesis constructs a GENESIS event. sender is conventionally SYSTEM.
func NewGenesis(timestamp int64, chainEpoch uint64, token string) (Event, error) {
	if token == "" {
		return Event{}, malformed("GENESIS: token is required")
	}
	e := Event{
		Type:      Genesis,
		Timestamp: timestamp,
		Sender:    SystemSender,
		Payload:   encode(GenesisPayload{ChainEpoch: chainEpoch, Token: token}),
	}
	return e, Validate(e)
}

// NewNodeJoin constructs a NODE_JOIN event.
func NewNodeJoin(timestamp int64, sender, nodeID, name, parentID, publicKey, recoveryPhraseHash string) (Event, error) {
	if nodeID == "" || name == "" || publicKey == "" {
		return Event{}, malformed("NODE_JOIN: nodeId, name, and publicKey are required")
	}
	e := Event{
		Type:      NodeJoin,
		Timestamp: timestamp,
		Sender:    sender,
		Payload: encode(NodeJoinPayload{
			NodeID:             nodeID,
			Name:               name,
			ParentID:           parentID,
			PublicKey:          publicKey,
			RecoveryPhraseHash: recoveryPhraseHash,
		}),
	}
	return e, Validate(e)
}

// NewNodeParentUpdate constructs a NODE_PARENT_UPDATE event.
func NewNodeParentUpdate(timestamp int64, sender, nodeID, action, approverID string, parentID string, parentIDs []string) (Event, error) {
	if nodeID == "" || approverID == "" {
		return Event{}, malformed("NODE_PARENT_UPDATE: nodeId and approverId are required")
	}
	e := Event{
		Type:      NodeParentUpdate,
		Timestamp: timestamp,
		Sender:    sender,
		Payload: encode(NodeParentUpdatePayload{
			NodeID:     nodeID,
			Action:     action,
			ParentID:   parentID,
			ParentIDs:  parentIDs,
			ApproverID: approverID,
		}),
	}
	return e, Validate(e)
}

// NewInstitutionRegister constructs an INSTITUTION_REGISTER event.
func NewInstitutionRegister(timestamp int64, sender, category string) (Event, error) {
	if category == "" {
		return Event{}, malformed("INSTITUTION_REGISTER: category is required")
	}
	e := Event{
		Type:      InstitutionRegister,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(InstitutionRegisterPayload{Category: category}),
	}
	return e, Validate(e)
}

// NewInstitutionVerify constructs an INSTITUTION_VERIFY event.
func NewInstitutionVerify(timestamp int64, sender, targetNodeID string, approved bool, reason string) (Event, error) {
	if targetNodeID == "" {
		return Event{}, malformed("INSTITUTION_VERIFY: targetNodeId is required")
	}
	e := Event{
		Type:      InstitutionVerify,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(InstitutionVerifyPayload{TargetNodeID: targetNodeID, Approved: approved, Reason: reason}),
	}
	return e, Validate(e)
}

// NewInstitutionRevoke constructs an INSTITUTION_REVOKE event.
func NewInstitutionRevoke(timestamp int64, sender, targetNodeID, reason string) (Event, error) {
	if targetNodeID == "" {
		return Event{}, malformed("INSTITUTION_REVOKE: targetNodeId is required")
	}
	e := Event{
		Type:      InstitutionRevoke,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(InstitutionRevokePayload{TargetNodeID: targetNodeID, Reason: reason}),
	}
	return e, Validate(e)
}

// NewSoulboundMint constructs a SOULBOUND_MINT event.
func NewSoulboundMint(timestamp int64, sender, recipient, achievementID, title, description, proofRef string, revocable bool) (Event, error) {
	if recipient == "" || achievementID == "" {
		return Event{}, malformed("SOULBOUND_MINT: recipient and achievementId are required")
	}
	e := Event{
		Type:      SoulboundMint,
		Timestamp: timestamp,
		Sender:    sender,
		Recipient: strPtr(recipient),
		Payload: encode(SoulboundMintPayload{
			AchievementID: achievementID,
			Title:         title,
			Description:   description,
			ProofRef:      proofRef,
			Revocable:     revocable,
		}),
	}
	return e, Validate(e)
}

// NewKarmaEarn constructs a KARMA_EARN event. Sender is always SYSTEM.
func NewKarmaEarn(timestamp int64, recipient string, amount uint64, reason string) (Event, error) {
	if recipient == "" || amount == 0 {
		return Event{}, malformed("KARMA_EARN: recipient and non-zero amount are required")
	}
	e := Event{
		Type:      KarmaEarn,
		Timestamp: timestamp,
		Sender:    SystemSender,
		Recipient: strPtr(recipient),
		Payload:   encode(KarmaAmountPayload{Amount: amount, Reason: reason}),
	}
	return e, Validate(e)
}

// NewKarmaTransfer constructs a KARMA_TRANSFER event.
func NewKarmaTransfer(timestamp int64, sender, recipient string, amount uint64, reason string) (Event, error) {
	if recipient == "" || amount == 0 {
		return Event{}, malformed("KARMA_TRANSFER: recipient and non-zero amount are required")
	}
	e := Event{
		Type:      KarmaTransfer,
		Timestamp: timestamp,
		Sender:    sender,
		Recipient: strPtr(recipient),
		Payload:   encode(KarmaAmountPayload{Amount: amount, Reason: reason}),
	}
	return e, Validate(e)
}

// NewGovProposal constructs a GOV_PROPOSAL event.
func NewGovProposal(timestamp int64, sender, proposalID, description string, votingPeriodBlocks uint64, quorumPct float64) (Event, error) {
	if proposalID == "" || description == "" || votingPeriodBlocks == 0 {
		return Event{}, malformed("GOV_PROPOSAL: proposalId, description, and votingPeriodBlocks are required")
	}
	e := Event{
		Type:      GovProposal,
		Timestamp: timestamp,
		Sender:    sender,
		Payload: encode(GovProposalPayload{
			ProposalID:         proposalID,
			Description:        description,
			VotingPeriodBlocks: votingPeriodBlocks,
			QuorumPct:          quorumPct,
		}),
	}
	return e, Validate(e)
}

// NewVoteCast constructs a VOTE_CAST event.
func NewVoteCast(timestamp int64, sender, proposalID, choice string) (Event, error) {
	if proposalID == "" || choice == "" {
		return Event{}, malformed("VOTE_CAST: proposalId and choice are required")
	}
	e := Event{
		Type:      VoteCast,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(VoteCastPayload{ProposalID: proposalID, Choice: choice}),
	}
	return e, Validate(e)
}

// NewSocialRecoveryUpdate constructs a SOCIAL_RECOVERY_UPDATE event.
func NewSocialRecoveryUpdate(timestamp int64, sender string, guardians []string, threshold int) (Event, error) {
	if threshold < 1 || threshold > len(guardians) {
		return Event{}, malformed("SOCIAL_RECOVERY_UPDATE: threshold must be within [1, len(guardians)]")
	}
	e := Event{
		Type:      SocialRecoveryUpdate,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(SocialRecoveryUpdatePayload{Guardians: guardians, Threshold: threshold}),
	}
	return e, Validate(e)
}

// NewAppEvent constructs an opaque APP_EVENT.
func NewAppEvent(timestamp int64, sender, recipient, appID, action, ref, target string, data any) (Event, error) {
	if appID == "" || action == "" {
		return Event{}, malformed("APP_EVENT: appId and action are required")
	}
	e := Event{
		Type:      AppEvent,
		Timestamp: timestamp,
		Sender:    sender,
		Recipient: strPtr(recipient),
		Payload:   encode(AppEventPayload{AppID: appID, Action: action, Ref: ref, Target: target, Data: data}),
	}
	return e, Validate(e)
}

// NewNodeParentRequest constructs a NODE_PARENT_REQUEST advisory event.
func NewNodeParentRequest(timestamp int64, sender, childID, parentID, reason string, metadata map[string]string) (Event, error) {
	if childID == "" || parentID == "" {
		return Event{}, malformed("NODE_PARENT_REQUEST: childId and parentId are required")
	}
	e := Event{
		Type:      NodeParentRequest,
		Timestamp: timestamp,
		Sender:    sender,
		Payload:   encode(NodeParentRequestPayload{ChildID: childID, ParentID: parentID, Reason: reason, Metadata: metadata}),
	}
	return e, Validate(e)
}
