// Package ratelimit implements the sliding-window token-bucket quotas of
// spec §4.9: one bucket per (nodeId, messageKind), plus a second bucket per
// connection id so a chatty link is punished regardless of the node id it
// claims.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind enumerates the message kinds the limiter tracks separately.
type Kind string

const (
	KindBlock     Kind = "BLOCK"
	KindSync      Kind = "SYNC"
	KindHeartbeat Kind = "HEARTBEAT"
)

// Config carries the per-minute quotas for each kind (spec §4.9 defaults).
type Config struct {
	BlockPerMinute     float64
	NewNodeMultiplier  float64
	SyncPerMinute      float64
	HeartbeatPerMinute float64
	// NewNodeWindow is how long after a node is first seen it is subject
	// to NewNodeMultiplier instead of the standard BLOCK quota.
	NewNodeWindow time.Duration
}

// DefaultConfig matches spec §4.9: BLOCK 10/min (1/min for nodes younger
// than an hour), SYNC 20/min, HEARTBEAT 100/min.
func DefaultConfig() Config {
	return Config{
		BlockPerMinute:     10,
		NewNodeMultiplier:  0.1,
		SyncPerMinute:      20,
		HeartbeatPerMinute: 100,
		NewNodeWindow:      time.Hour,
	}
}

func (c Config) ratePerMinute(kind Kind) float64 {
	switch kind {
	case KindBlock:
		return c.BlockPerMinute
	case KindSync:
		return c.SyncPerMinute
	case KindHeartbeat:
		return c.HeartbeatPerMinute
	default:
		return 0
	}
}

// Limiter tracks sliding-window quotas keyed by (nodeId, kind) and,
// independently, by connection id. Grounded on p2p's ipRateLimiter (an
// LRU map of per-key buckets with idle eviction), generalised to a
// golang.org/x/time/rate.Limiter per bucket instead of a hand-rolled token
// bucket.
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	byNode      map[string]*bucketEntry
	byNodeOrder *list.List
	byConn      map[string]*bucketEntry
	byConnOrder *list.List

	idleTimeout time.Duration
	maxEntries  int
	nodeFirstSeen map[string]time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	element  *list.Element
}

const (
	defaultIdleTimeout = 15 * time.Minute
	defaultMaxEntries  = 50_000
)

// New constructs a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.NewNodeWindow <= 0 {
		cfg.NewNodeWindow = time.Hour
	}
	return &Limiter{
		cfg:           cfg,
		byNode:        make(map[string]*bucketEntry),
		byNodeOrder:   list.New(),
		byConn:        make(map[string]*bucketEntry),
		byConnOrder:   list.New(),
		idleTimeout:   defaultIdleTimeout,
		maxEntries:    defaultMaxEntries,
		nodeFirstSeen: make(map[string]time.Time),
	}
}

// Allow reports whether a message of the given kind from nodeID, arriving
// over connID, should be accepted. Both the per-(node,kind) bucket and the
// per-connection bucket must have capacity; either exhausted drops the
// message silently (spec §4.9).
func (l *Limiter) Allow(nodeID string, connID string, kind Kind, now time.Time) bool {
	nodeRate := l.effectiveNodeRate(nodeID, kind, now)
	if nodeRate <= 0 {
		return true
	}
	nodeKey := nodeID + "|" + string(kind)
	if !l.allowFrom(l.byNode, l.byNodeOrder, nodeKey, nodeRate, now) {
		return false
	}
	connRate := l.cfg.ratePerMinute(kind)
	if connRate <= 0 {
		return true
	}
	return l.allowFrom(l.byConn, l.byConnOrder, connID+"|"+string(kind), connRate, now)
}

// effectiveNodeRate applies the new-node penalty multiplier to BLOCK
// quotas for nodes first seen within NewNodeWindow.
func (l *Limiter) effectiveNodeRate(nodeID string, kind Kind, now time.Time) float64 {
	base := l.cfg.ratePerMinute(kind)
	if kind != KindBlock {
		return base
	}
	l.mu.Lock()
	first, ok := l.nodeFirstSeen[nodeID]
	if !ok {
		l.nodeFirstSeen[nodeID] = now
		first = now
	}
	l.mu.Unlock()
	if now.Sub(first) < l.cfg.NewNodeWindow {
		return base * l.cfg.NewNodeMultiplier
	}
	return base
}

func (l *Limiter) allowFrom(buckets map[string]*bucketEntry, order *list.List, key string, ratePerMinute float64, now time.Time) bool {
	l.mu.Lock()
	l.evictIdleLocked(buckets, order, now)

	entry := buckets[key]
	if entry == nil {
		l.evictLRULocked(buckets, order)
		limiter := rate.NewLimiter(rate.Limit(ratePerMinute/60.0), maxBurst(ratePerMinute))
		entry = &bucketEntry{limiter: limiter}
		entry.element = order.PushBack(key)
		buckets[key] = entry
	}
	entry.lastSeen = now
	order.MoveToBack(entry.element)
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

func maxBurst(ratePerMinute float64) int {
	burst := int(ratePerMinute)
	if burst < 1 {
		burst = 1
	}
	return burst
}

func (l *Limiter) evictIdleLocked(buckets map[string]*bucketEntry, order *list.List, now time.Time) {
	if l.idleTimeout <= 0 {
		return
	}
	cutoff := now.Add(-l.idleTimeout)
	for {
		front := order.Front()
		if front == nil {
			return
		}
		key, _ := front.Value.(string)
		entry, ok := buckets[key]
		if !ok {
			order.Remove(front)
			continue
		}
		if !entry.lastSeen.Before(cutoff) {
			return
		}
		order.Remove(front)
		delete(buckets, key)
	}
}

func (l *Limiter) evictLRULocked(buckets map[string]*bucketEntry, order *list.List) {
	if l.maxEntries <= 0 {
		return
	}
	for len(buckets) >= l.maxEntries {
		front := order.Front()
		if front == nil {
			return
		}
		key, _ := front.Value.(string)
		order.Remove(front)
		delete(buckets, key)
	}
}
