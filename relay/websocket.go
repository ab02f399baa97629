package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// writeTimeout bounds a single outbound frame write, mirroring
// rpc/ws.go's wsWriteTimeout.
const writeTimeout = 10 * time.Second

// WebSocketChannel implements Channel over nhooyr.io/websocket. A node
// both accepts inbound connections (via its HTTP handler) and dials
// outbound connections to bootstrap seeds; in both cases the resulting
// *websocket.Conn is tracked the same way once a HELLO has identified the
// remote node id.
type WebSocketChannel struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn

	onMessage    func(fromNodeID string, payload []byte)
	onPeerChange func(event PeerChangeEvent)
}

// NewWebSocketChannel constructs an empty channel. Callers register
// OnMessage/OnPeerChange handlers before accepting or dialing connections.
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{conns: make(map[string]*websocket.Conn)}
}

func (c *WebSocketChannel) OnMessage(handler func(fromNodeID string, payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *WebSocketChannel) OnPeerChange(handler func(event PeerChangeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPeerChange = handler
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// returns it without reading from it. The caller performs the HELLO
// handshake on the returned connection and then hands it to Register,
// which starts the read loop (package node does this).
func (c *WebSocketChannel) Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return nil, fmt.Errorf("relay: accept: %w", err)
	}
	return conn, nil
}

// Dial opens an outbound websocket connection to a peer's address.
func (c *WebSocketChannel) Dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Register tracks conn under nodeID, starts its read loop, and fires
// OnPeerChange(joined).
func (c *WebSocketChannel) Register(ctx context.Context, nodeID string, conn *websocket.Conn, advertisedLength, advertisedEpoch uint64) {
	c.mu.Lock()
	c.conns[nodeID] = conn
	handler := c.onPeerChange
	c.mu.Unlock()

	if handler != nil {
		handler(PeerChangeEvent{Kind: PeerJoined, NodeID: nodeID, AdvertisedLength: advertisedLength, AdvertisedEpoch: advertisedEpoch})
	}
	go c.readLoop(ctx, nodeID, conn)
}

func (c *WebSocketChannel) readLoop(ctx context.Context, nodeID string, conn *websocket.Conn) {
	defer c.unregister(nodeID)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()
		if handler != nil {
			handler(nodeID, data)
		}
	}
}

func (c *WebSocketChannel) unregister(nodeID string) {
	c.mu.Lock()
	_, ok := c.conns[nodeID]
	delete(c.conns, nodeID)
	handler := c.onPeerChange
	c.mu.Unlock()
	if ok && handler != nil {
		handler(PeerChangeEvent{Kind: PeerLeft, NodeID: nodeID})
	}
}

// Send writes payload to a single connected peer. Per-peer writes are
// serialised by nhooyr.io/websocket's own internal lock, preserving
// in-order delivery to that peer.
func (c *WebSocketChannel) Send(ctx context.Context, toNodeID string, payload []byte) error {
	c.mu.RLock()
	conn, ok := c.conns[toNodeID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("relay: unknown peer %q", toNodeID)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// Broadcast writes payload to every connected peer except excludeNodeID.
// Best-effort: a single peer's write failure does not abort the others.
func (c *WebSocketChannel) Broadcast(ctx context.Context, excludeNodeID string, payload []byte) error {
	c.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(c.conns))
	for id, conn := range c.conns {
		if id == excludeNodeID {
			continue
		}
		targets[id] = conn
	}
	c.mu.RUnlock()

	var firstErr error
	for id, conn := range targets {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("relay: broadcast to %s: %w", id, err)
		}
	}
	return firstErr
}

// ConnectedPeers returns the node ids currently registered.
func (c *WebSocketChannel) ConnectedPeers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peers := make([]string, 0, len(c.conns))
	for id := range c.conns {
		peers = append(peers, id)
	}
	return peers
}

// Close closes every tracked connection.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, conn := range c.conns {
		if err := conn.Close(websocket.StatusNormalClosure, "channel closed"); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, id)
	}
	return firstErr
}
