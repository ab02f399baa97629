package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"srishti/peer"
)

// handshakeTimeout bounds the raw HELLO exchange performed before a
// connection is registered with relay.Channel (mirrors p2p's
// handshakeSkewAllowance-adjacent read/write deadlines).
const handshakeTimeout = 10 * time.Second

// acceptHandler upgrades inbound HTTP requests to websocket connections and
// performs the pre-registration HELLO exchange, grounded on p2p's
// performHandshake (read one frame off the raw socket before considering a
// connection joined) — adapted to nhooyr.io/websocket's message framing in
// place of handshake.go's bufio/newline-delimited raw TCP frames.
func (n *Node) acceptHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := n.channel.Accept(w, r)
		if err != nil {
			n.logger.Warn("inbound websocket accept failed", "err", err)
			return
		}
		go n.handshakeAndRegister(ctx, conn)
	}
}

// dialSeeds connects to every directly-addressed bootstrap seed and, for
// any bare DNS names configured, resolves them via peer.SeedDiscovery
// before dialing the resolved addresses. Best-effort: a single seed's
// failure is logged and does not abort the others.
func (n *Node) dialSeeds(ctx context.Context) {
	for _, addr := range n.seedAddrs {
		go n.dialOne(ctx, addr)
	}
	if len(n.seedNames) == 0 {
		return
	}
	if n.cfg.Relay.Endpoint == "" {
		n.logger.Warn("DNS seed names configured without a resolver endpoint", "names", n.seedNames)
		return
	}
	resolver := peer.NewDNSResolver(n.cfg.Relay.Endpoint)
	discovery := peer.NewSeedDiscovery(resolver, n.seedNames)
	seeds, err := discovery.Discover(ctx)
	if err != nil {
		n.logger.Warn("seed discovery failed", "err", err)
	}
	for _, seed := range seeds {
		go n.dialOne(ctx, seed.Address)
	}
}

func (n *Node) dialOne(ctx context.Context, addr string) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, err := n.channel.Dial(dialCtx, addr)
	if err != nil {
		n.logger.Warn("dial seed failed", "addr", addr, "err", err)
		return
	}
	n.handshakeAndRegister(ctx, conn)
}

// handshakeAndRegister exchanges HELLO with a freshly accepted or dialed
// connection and, on success, registers it with the relay channel (which
// fires peer.Manager's OnPeerChange and its own application-level HELLO
// exchange — redundant with the raw exchange performed here but harmless,
// since Manager's handleHello is idempotent on a repeat HELLO).
func (n *Node) handshakeAndRegister(ctx context.Context, conn *websocket.Conn) {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	remote, err := n.performHandshake(hsCtx, conn)
	if err != nil {
		n.logger.Warn("peer handshake failed", "err", err)
		_ = conn.Close(websocket.StatusProtocolError, "handshake failed")
		return
	}
	if remote.ChainEpoch != n.cfg.ChainEpoch {
		n.logger.Warn("peer rejected: chain epoch mismatch", "nodeId", remote.NodeID, "remoteEpoch", remote.ChainEpoch)
		_ = conn.Close(websocket.StatusPolicyViolation, "chain epoch mismatch")
		return
	}
	n.channel.Register(ctx, remote.NodeID, conn, remote.ChainLength, remote.ChainEpoch)
	n.logger.Info("peer connected", "nodeId", remote.NodeID, "chainLength", remote.ChainLength)
}

func (n *Node) performHandshake(ctx context.Context, conn *websocket.Conn) (peer.HelloPayload, error) {
	tip, _ := n.chain.Tip()
	local := peer.HelloPayload{
		NodeID:          n.nodeID,
		ChainLength:     n.chain.Length(),
		LatestHash:      tip.Hash,
		ProtocolVersion: peer.ProtocolVersion,
		ChainEpoch:      n.cfg.ChainEpoch,
	}
	data, err := peer.EncodeHello(n.now().Unix(), local)
	if err != nil {
		return peer.HelloPayload{}, fmt.Errorf("node: encode handshake hello: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return peer.HelloPayload{}, fmt.Errorf("node: write handshake hello: %w", err)
	}

	_, raw, err := conn.Read(ctx)
	if err != nil {
		return peer.HelloPayload{}, fmt.Errorf("node: read handshake hello: %w", err)
	}
	remote, err := peer.DecodeHello(raw)
	if err != nil {
		return peer.HelloPayload{}, fmt.Errorf("node: decode handshake hello: %w", err)
	}
	return remote, nil
}
