package state

import "srishti/event"

// RewardTable maps event types to the karma amount automatically credited
// to the relevant node when that event applies successfully (spec §4.4
// "KARMA rewards table"). Apply never emits a synthetic KARMA_EARN event for
// these — it credits the balance directly as part of applying the
// triggering event, so the fold stays a single pure pass with no
// re-entrancy.
type RewardTable map[event.Type]uint64

// DefaultRewards is the reward table used when a node operator does not
// override it via configuration.
func DefaultRewards() RewardTable {
	return RewardTable{
		event.NodeJoin:      10,
		event.SoulboundMint: 25,
		event.VoteCast:      2,
		event.GovProposal:   5,
	}
}
