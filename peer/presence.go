package peer

import (
	"sync"
	"time"
)

// PresenceEntry is one node's last-known online status.
type PresenceEntry struct {
	NodeID   string
	Online   bool
	LastSeen time.Time
	// Direct is true when LastSeen/Online came from that node's own
	// HEARTBEAT rather than being piggybacked via another peer's
	// knownOnline list.
	Direct bool
}

// Presence is the supplemented presence table (SPEC_FULL.md §5): it merges
// direct HEARTBEAT observations with piggybacked knownOnline entries,
// with a direct entry always taking precedence over a piggybacked one for
// the same node (a direct heartbeat is authoritative about that node's own
// status; a piggybacked entry is hearsay).
type Presence struct {
	mu      sync.Mutex
	entries map[string]PresenceEntry
}

// NewPresence constructs an empty presence table.
func NewPresence() *Presence {
	return &Presence{entries: make(map[string]PresenceEntry)}
}

// RecordDirect applies a HEARTBEAT received directly from nodeID.
func (p *Presence) RecordDirect(nodeID string, online bool, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[nodeID] = PresenceEntry{NodeID: nodeID, Online: online, LastSeen: now, Direct: true}
}

// RecordPiggybacked applies a knownOnline entry observed via some other
// peer's heartbeat. It never overwrites an existing direct entry.
func (p *Presence) RecordPiggybacked(nodeID string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.entries[nodeID]; ok && existing.Direct {
		return
	}
	p.entries[nodeID] = PresenceEntry{NodeID: nodeID, Online: true, LastSeen: now, Direct: false}
}

// Snapshot returns the current known-online node ids, suitable for
// piggybacking onto this node's own HEARTBEAT.
func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	online := make([]string, 0, len(p.entries))
	for id, entry := range p.entries {
		if entry.Online {
			online = append(online, id)
		}
	}
	return online
}

// Get returns the known entry for nodeID, if any.
func (p *Presence) Get(nodeID string) (PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[nodeID]
	return entry, ok
}

// Expire marks every entry not seen within staleAfter as offline. Called
// periodically from the resync tick.
func (p *Presence) Expire(now time.Time, staleAfter time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, entry := range p.entries {
		if entry.Online && now.Sub(entry.LastSeen) > staleAfter {
			entry.Online = false
			p.entries[id] = entry
		}
	}
}
