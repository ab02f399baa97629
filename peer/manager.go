package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"srishti/block"
	"srishti/chain"
	"srishti/gossip"
	"srishti/ratelimit"
	"srishti/relay"
)

// Default timing constants (spec §6 "Configuration (enumerated)").
const (
	DefaultSyncTimeoutOverall = 30 * time.Second
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultResyncTick         = 15 * time.Second
	presenceStaleAfter        = 3 * DefaultHeartbeatInterval
)

// Dependencies wires a Manager to the rest of the node.
type Dependencies struct {
	NodeID     string
	ChainEpoch uint64
	Chain      *chain.Manager
	Channel    relay.Channel
	Dedup      *gossip.Dedup
	Router     *gossip.Router
	RateLimit  *ratelimit.Limiter
	Presence   *Presence
	Requests   *ParentRequestPool
	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// Manager drives the HELLO/SYNC/NEW_BLOCK/HEARTBEAT/PARENT_* protocol over
// a relay.Channel, owning the per-peer connection lifecycle state machine
// and the synchronisation policy (spec §4.8).
type Manager struct {
	deps Dependencies

	mu    sync.Mutex
	conns map[string]*connection

	syncMu       sync.Mutex
	syncing      bool
	syncDeadline time.Time
}

// NewManager constructs a Manager and registers its handlers with
// deps.Channel. The caller must not register competing OnMessage/
// OnPeerChange handlers on the same channel.
func NewManager(deps Dependencies) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	m := &Manager{deps: deps, conns: make(map[string]*connection)}
	deps.Channel.OnMessage(m.handleMessage)
	deps.Channel.OnPeerChange(m.handlePeerChange)
	return m
}

func (m *Manager) now() time.Time { return m.deps.Now() }

// Start triggers an initial sync against every already-connected peer and
// begins the heartbeat/resync background loops. It returns once ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, id := range m.deps.Channel.ConnectedPeers() {
		m.triggerSync(ctx, id)
	}

	heartbeat := time.NewTicker(DefaultHeartbeatInterval)
	resync := time.NewTicker(DefaultResyncTick)
	defer heartbeat.Stop()
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.sendHeartbeat(ctx)
		case <-resync.C:
			m.deps.Presence.Expire(m.now(), presenceStaleAfter)
		}
	}
}

func (m *Manager) handlePeerChange(event relay.PeerChangeEvent) {
	switch event.Kind {
	case relay.PeerJoined:
		m.mu.Lock()
		if _, exists := m.conns[event.NodeID]; !exists {
			m.conns[event.NodeID] = newConnection(event.NodeID)
		}
		m.mu.Unlock()
		m.sendHello(context.Background(), event.NodeID)
	case relay.PeerLeft:
		m.mu.Lock()
		delete(m.conns, event.NodeID)
		m.mu.Unlock()
	}
}

func (m *Manager) connFor(nodeID string) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[nodeID]
	if !ok {
		conn = newConnection(nodeID)
		m.conns[nodeID] = conn
	}
	return conn
}

func (m *Manager) sendHello(ctx context.Context, toNodeID string) {
	tip, _ := m.deps.Chain.Tip()
	payload := HelloPayload{
		NodeID:          m.deps.NodeID,
		ChainLength:     m.deps.Chain.Length(),
		LatestHash:      tip.Hash,
		ProtocolVersion: ProtocolVersion,
		ChainEpoch:      m.deps.ChainEpoch,
	}
	data, err := encode(TypeHello, m.now().Unix(), payload)
	if err != nil {
		return
	}
	conn := m.connFor(toNodeID)
	if conn.state != StateCompatible && conn.state != StateRejected {
		conn.state = StateHelloSent
	}
	_ = m.deps.Channel.Send(ctx, toNodeID, data)
}

func kindForType(t Type) ratelimit.Kind {
	switch t {
	case TypeNewBlock:
		return ratelimit.KindBlock
	case TypeHeartbeat:
		return ratelimit.KindHeartbeat
	default:
		return ratelimit.KindSync
	}
}

// handleMessage is registered as the relay.Channel's OnMessage handler. It
// rate-limits, decodes the envelope, and dispatches by message type.
// Per-connection quotas use fromNodeID as the connection id as well,
// since the relay.Channel abstraction does not expose a transport-level
// connection identifier distinct from the peer's claimed node id.
func (m *Manager) handleMessage(fromNodeID string, payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return
	}
	if !m.deps.RateLimit.Allow(fromNodeID, fromNodeID, kindForType(env.Type), m.now()) {
		return
	}

	ctx := context.Background()
	switch env.Type {
	case TypeHello:
		var hello HelloPayload
		if json.Unmarshal(env.Payload, &hello) == nil {
			m.handleHello(ctx, fromNodeID, hello)
		}
	case TypeSyncRequest:
		var req SyncRequestPayload
		if json.Unmarshal(env.Payload, &req) == nil {
			m.handleSyncRequest(ctx, fromNodeID, req)
		}
	case TypeSyncResponse:
		var resp SyncResponsePayload
		if json.Unmarshal(env.Payload, &resp) == nil {
			m.handleSyncResponse(fromNodeID, resp)
		}
	case TypeNewBlock:
		var nb NewBlockPayload
		if json.Unmarshal(env.Payload, &nb) == nil {
			m.handleNewBlock(ctx, fromNodeID, env, nb, payload)
		}
	case TypeHeartbeat:
		var hb HeartbeatPayload
		if json.Unmarshal(env.Payload, &hb) == nil {
			m.handleHeartbeat(fromNodeID, hb)
		}
	case TypeParentRequest:
		var req ParentRequestPayload
		if json.Unmarshal(env.Payload, &req) == nil {
			m.deps.Requests.Add(PendingParentRequest{
				NodeID: req.NodeID, ParentID: req.ParentID, Reason: req.Reason,
				Metadata: req.Metadata, Requested: m.now(),
			})
		}
	case TypeParentResponse:
		var resp ParentResponsePayload
		if json.Unmarshal(env.Payload, &resp) == nil {
			m.deps.Requests.Resolve(resp.RequestNodeID)
		}
	}
}

func (m *Manager) handleHello(ctx context.Context, fromNodeID string, hello HelloPayload) {
	conn := m.connFor(fromNodeID)
	if hello.ChainEpoch != m.deps.ChainEpoch {
		conn.state = StateRejected
		return
	}

	firstHello := conn.state != StateHelloSent && conn.state != StateCompatible
	conn.state = StateCompatible
	conn.advertisedLength = hello.ChainLength
	conn.advertisedHash = hello.LatestHash
	conn.advertisedEpoch = hello.ChainEpoch
	conn.protocolVersion = hello.ProtocolVersion

	if firstHello {
		m.sendHello(ctx, fromNodeID)
	}
	if hello.ChainLength > m.deps.Chain.Length() {
		m.triggerSync(ctx, fromNodeID)
	}
}

// triggerSync sends a SYNC_REQUEST to toNodeID, serialised by a single
// boolean guard with a 30s overall timeout (spec §4.8).
func (m *Manager) triggerSync(ctx context.Context, toNodeID string) {
	m.syncMu.Lock()
	now := m.now()
	if m.syncing && now.Before(m.syncDeadline) {
		m.syncMu.Unlock()
		return
	}
	m.syncing = true
	m.syncDeadline = now.Add(DefaultSyncTimeoutOverall)
	m.syncMu.Unlock()

	tip, _ := m.deps.Chain.Tip()
	payload := SyncRequestPayload{FromIndex: 0, ChainLength: m.deps.Chain.Length(), LatestHash: tip.Hash}
	data, err := encode(TypeSyncRequest, m.now().Unix(), payload)
	if err != nil {
		m.releaseSyncGuard()
		return
	}
	if err := m.deps.Channel.Send(ctx, toNodeID, data); err != nil {
		m.releaseSyncGuard()
	}
}

func (m *Manager) releaseSyncGuard() {
	m.syncMu.Lock()
	m.syncing = false
	m.syncMu.Unlock()
}

func (m *Manager) handleSyncRequest(ctx context.Context, fromNodeID string, req SyncRequestPayload) {
	blocks := m.deps.Chain.Blocks()
	if req.FromIndex > uint64(len(blocks)) {
		return
	}
	slice := blocks[req.FromIndex:]
	raw := make([]json.RawMessage, 0, len(slice))
	for _, b := range slice {
		data, err := json.Marshal(b)
		if err != nil {
			return
		}
		raw = append(raw, data)
	}
	payload := SyncResponsePayload{Blocks: raw, ChainLength: uint64(len(blocks))}
	data, err := encode(TypeSyncResponse, m.now().Unix(), payload)
	if err != nil {
		return
	}
	_ = m.deps.Channel.Send(ctx, fromNodeID, data)
}

// handleSyncResponse feeds received blocks to replaceChain and then always
// runs mergeUniqueNodes against both the received and discarded chains
// (spec §4.8).
func (m *Manager) handleSyncResponse(fromNodeID string, resp SyncResponsePayload) {
	defer m.releaseSyncGuard()

	candidate := make([]block.Block, 0, len(resp.Blocks))
	for _, raw := range resp.Blocks {
		var b block.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return
		}
		candidate = append(candidate, b)
	}
	if len(candidate) == 0 {
		return
	}

	discarded := m.deps.Chain.Blocks()
	_ = m.deps.Chain.ReplaceChain(candidate)

	now := m.now().Unix()
	_, _, _ = m.deps.Chain.MergeUniqueNodes(candidate, fromNodeID, now)
	_, _, _ = m.deps.Chain.MergeUniqueNodes(discarded, fromNodeID, now)
}

func (m *Manager) handleNewBlock(ctx context.Context, fromNodeID string, env Envelope, nb NewBlockPayload, raw []byte) {
	var b block.Block
	if err := json.Unmarshal(nb.Block, &b); err != nil {
		return
	}

	id := gossip.MessageID(string(TypeNewBlock), b.Hash, env.Timestamp, raw)
	peers := m.deps.Channel.ConnectedPeers()
	outcome := m.deps.Router.Receive(id, env.TTL, fromNodeID, peers)
	if !outcome.Apply {
		return
	}

	expected := m.deps.Chain.Length()
	switch {
	case b.Index < expected:
		return
	case b.Index > expected:
		m.triggerSync(ctx, fromNodeID)
		return
	}
	if tip, ok := m.deps.Chain.Tip(); ok && b.Header.PreviousHash != tip.Hash {
		m.triggerSync(ctx, fromNodeID)
		return
	}

	applied, err := m.deps.Chain.AddBlock(b)
	if err != nil || !applied {
		return
	}
	for _, peerID := range outcome.Forward {
		m.sendNewBlock(ctx, peerID, b, outcome.ForwardedTTL)
	}
}

func (m *Manager) sendNewBlock(ctx context.Context, toNodeID string, b block.Block, ttl int) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	data, err := encodeWithTTL(TypeNewBlock, m.now().Unix(), ttl, NewBlockPayload{Block: raw})
	if err != nil {
		return
	}
	_ = m.deps.Channel.Send(ctx, toNodeID, data)
}

// BroadcastNewBlock announces a freshly proposed local block to every
// connected peer. The originator marks the message seen in its own dedup
// window so an echoed re-gossip copy does not loop back.
func (m *Manager) BroadcastNewBlock(ctx context.Context, b block.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("peer: marshal new block: %w", err)
	}
	ts := m.now().Unix()
	data, err := encodeWithTTL(TypeNewBlock, ts, gossip.DefaultTTL, NewBlockPayload{Block: raw})
	if err != nil {
		return err
	}
	id := gossip.MessageID(string(TypeNewBlock), b.Hash, ts, data)
	m.deps.Dedup.Seen(id)
	return m.deps.Channel.Broadcast(ctx, m.deps.NodeID, data)
}

func (m *Manager) sendHeartbeat(ctx context.Context) {
	m.deps.Presence.RecordDirect(m.deps.NodeID, true, m.now())
	payload := HeartbeatPayload{
		NodeID:      m.deps.NodeID,
		IsOnline:    true,
		KnownOnline: m.deps.Presence.Snapshot(),
	}
	data, err := encode(TypeHeartbeat, m.now().Unix(), payload)
	if err != nil {
		return
	}
	_ = m.deps.Channel.Broadcast(ctx, m.deps.NodeID, data)
}

func (m *Manager) handleHeartbeat(fromNodeID string, hb HeartbeatPayload) {
	now := m.now()
	m.deps.Presence.RecordDirect(fromNodeID, hb.IsOnline, now)
	for _, id := range hb.KnownOnline {
		if id == m.deps.NodeID || id == fromNodeID {
			continue
		}
		m.deps.Presence.RecordPiggybacked(id, now)
	}
}

// SendParentRequest submits an advisory PARENT_REQUEST to toNodeID.
func (m *Manager) SendParentRequest(ctx context.Context, toNodeID string, req ParentRequestPayload) error {
	data, err := encode(TypeParentRequest, m.now().Unix(), req)
	if err != nil {
		return err
	}
	return m.deps.Channel.Send(ctx, toNodeID, data)
}

// SendParentResponse replies to a PARENT_REQUEST. It never applies the
// hierarchy change itself; the caller decides separately whether to submit
// a NODE_PARENT_UPDATE event.
func (m *Manager) SendParentResponse(ctx context.Context, toNodeID string, resp ParentResponsePayload) error {
	data, err := encode(TypeParentResponse, m.now().Unix(), resp)
	if err != nil {
		return err
	}
	return m.deps.Channel.Send(ctx, toNodeID, data)
}

// ConnState returns the current lifecycle state for a peer, for
// diagnostics/admin surfaces.
func (m *Manager) ConnState(nodeID string) (ConnState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[nodeID]
	if !ok {
		return StateDisconnected, false
	}
	return conn.state, true
}
