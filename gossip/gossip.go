// Package gossip implements the bounded-fanout epidemic dissemination
// layer (spec §4.7): message-id derivation, a sliding dedup window, TTL hop
// limiting, and random fanout peer selection.
package gossip

import (
	"fmt"
	"math/rand"
)

// DefaultFanout and DefaultTTL are the spec's suggested constants
// (§4.7: "FANOUT=3", "TTL ≈ 10").
const (
	DefaultFanout = 3
	DefaultTTL    = 10
)

// MessageID derives the dedup key for a gossip message. NEW_BLOCK messages
// key on their block hash alone so the same block proposed and re-gossiped
// by different peers still dedups to one id; every other message type keys
// on type, timestamp, and a 50-byte prefix of its serialised payload (spec
// §4.7).
func MessageID(msgType string, blockHash string, timestamp int64, serialized []byte) string {
	if msgType == "NEW_BLOCK" && blockHash != "" {
		return "block_" + blockHash
	}
	prefix := serialized
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	return fmt.Sprintf("%s|%d|%s", msgType, timestamp, string(prefix))
}

// Router applies the dedup/TTL/fanout rules to an inbound gossip message
// and decides what, if anything, should be re-forwarded.
type Router struct {
	dedup  *Dedup
	fanout int
	rng    *rand.Rand
}

// NewRouter constructs a Router. A non-positive fanout falls back to
// DefaultFanout.
func NewRouter(dedup *Dedup, fanout int) *Router {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &Router{dedup: dedup, fanout: fanout, rng: rand.New(rand.NewSource(1))}
}

// Outcome describes what a node should do with an inbound gossip message.
type Outcome struct {
	// Apply is true the first time this message-id is seen; it should be
	// applied to local state (or discarded as stale/invalid by the
	// caller, which is a concern outside gossip's scope).
	Apply bool
	// Forward lists the peer ids (excluding the sender) the message
	// should be re-sent to, with TTL decremented by one. Empty when the
	// message was a duplicate or its TTL has been exhausted.
	Forward []string
	// ForwardedTTL is the TTL value to attach to forwarded copies.
	ForwardedTTL int
}

// Receive applies the dedup/TTL/fanout pipeline to an inbound message.
// peers is the full set of currently connected peer ids (excluding the
// local node), sender is who delivered the message to us (excluded from
// fanout selection).
func (r *Router) Receive(id string, ttl int, sender string, peers []string) Outcome {
	if r.dedup.Seen(id) {
		return Outcome{Apply: false}
	}
	if ttl <= 0 {
		return Outcome{Apply: true}
	}
	forwardTTL := ttl - 1
	return Outcome{
		Apply:        true,
		Forward:      r.selectFanout(peers, sender),
		ForwardedTTL: forwardTTL,
	}
}

// selectFanout picks min(fanout, len(candidates)) peers uniformly at
// random, excluding exclude (spec §4.7).
func (r *Router) selectFanout(candidates []string, exclude string) []string {
	pool := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != exclude {
			pool = append(pool, c)
		}
	}
	n := r.fanout
	if n > len(pool) {
		n = len(pool)
	}
	r.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return append([]string(nil), pool[:n]...)
}

// Close releases the router's dedup window resources.
func (r *Router) Close() {
	r.dedup.Close()
}
