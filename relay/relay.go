// Package relay defines the RelayChannel abstraction the core consumes for
// peer transport (spec §6) and a websocket-backed implementation of it.
package relay

import "context"

// PeerChangeKind distinguishes a peer joining from a peer leaving.
type PeerChangeKind string

const (
	PeerJoined PeerChangeKind = "joined"
	PeerLeft   PeerChangeKind = "left"
)

// PeerChangeEvent is delivered to a Channel's OnPeerChange callback.
type PeerChangeEvent struct {
	Kind             PeerChangeKind
	NodeID           string
	AdvertisedLength uint64
	AdvertisedEpoch  uint64
}

// Channel is the opaque message-broker interface the core depends on
// (spec §6): unicast send, best-effort broadcast excluding a sender, and
// two callbacks for inbound messages and peer membership changes.
//
// Send is best-effort and unordered across peers but in-order per peer.
// Broadcast delivers to every currently-connected node except excludeNodeID.
type Channel interface {
	Send(ctx context.Context, toNodeID string, payload []byte) error
	Broadcast(ctx context.Context, excludeNodeID string, payload []byte) error
	OnMessage(handler func(fromNodeID string, payload []byte))
	OnPeerChange(handler func(event PeerChangeEvent))
	ConnectedPeers() []string
	Close() error
}
