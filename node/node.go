// Package node wires the chain, storage, gossip, relay, peer, and
// rate-limit layers together into a running process: genesis-or-join
// bootstrap, inbound/outbound websocket connection handling, and the
// heartbeat/resync/presence background loops (spec §4.10/§6, SPEC_FULL.md
// §4 "node/"). Grounded on core.NewNode's central-controller shape,
// generalised from NHB's single-genesis validator model to a chain where
// every node bootstraps its own genesis and reconciles via fork-choice.
package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"srishti/appindex"
	"srishti/chain"
	"srishti/config"
	"srishti/crypto"
	"srishti/event"
	"srishti/export"
	"srishti/gossip"
	"srishti/observability/logging"
	"srishti/observability/metrics"
	"srishti/peer"
	"srishti/ratelimit"
	"srishti/relay"
	"srishti/rpc"
	"srishti/state"
	"srishti/storage"
)

// Node is the central controller wiring a single srishti process together.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	identity *crypto.KeyPair
	nodeID   string

	store   *storage.Store
	chain   *chain.Manager
	channel *relay.WebSocketChannel
	apps    *appindex.Store

	dedup    *gossip.Dedup
	router   *gossip.Router
	limiter  *ratelimit.Limiter
	presence *peer.Presence
	requests *peer.ParentRequestPool
	peers    *peer.Manager

	seedNames []string
	seedAddrs []string
	exporter  *export.Scheduler

	httpServer  *http.Server
	adminServer *http.Server
	now         func() time.Time
}

// New opens storage, loads or mints the node's identity, reconciles local
// chain state (genesis bootstrap if empty, replay if not), and wires every
// dependency a Manager needs. It does not yet listen or dial; call Start
// for that.
func New(cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	nodeID := identity.NodeID()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}
	store, err := storage.Open(filepath.Join(cfg.DataDir, "chain.db"), cfg.ChainEpoch)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	if err := ensureIdentityPersisted(store, identity, cfg.NodeName); err != nil {
		_ = store.Close()
		return nil, err
	}

	appIndexDSN := cfg.AppIndex.DriverDSN
	if appIndexDSN == "" {
		appIndexDSN = filepath.Join(cfg.DataDir, "appindex.db")
	}
	apps, err := appindex.Open(appIndexDSN)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("node: open app index: %w", err)
	}

	rewards := state.RewardTable{
		event.NodeJoin:      cfg.Karma.NodeJoin,
		event.SoulboundMint: cfg.Karma.SoulboundMint,
		event.VoteCast:      cfg.Karma.VoteCast,
	}

	chainMgr := chain.NewManager(rewards, store)

	n := &Node{
		cfg:      cfg,
		logger:   logger,
		identity: identity,
		nodeID:   nodeID,
		store:    store,
		chain:    chainMgr,
		channel:  relay.NewWebSocketChannel(),
		apps:     apps,
		dedup:    gossip.NewDedup(time.Duration(cfg.Gossip.DedupWindowMS) * time.Millisecond),
		presence: peer.NewPresence(),
		requests: peer.NewParentRequestPool(),
		now:      time.Now,
	}
	n.router = gossip.NewRouter(n.dedup, cfg.Gossip.Fanout)
	n.limiter = ratelimit.New(ratelimit.Config{
		BlockPerMinute:     cfg.RateLimit.BlocksPerMinute,
		NewNodeMultiplier:  cfg.RateLimit.NewNodeMultiplier,
		SyncPerMinute:      cfg.RateLimit.SyncPerMinute,
		HeartbeatPerMinute: cfg.RateLimit.HeartbeatPerMinute,
		NewNodeWindow:      time.Hour,
	})

	if err := n.restoreOrBootstrapChain(); err != nil {
		_ = apps.Close()
		_ = store.Close()
		return nil, err
	}

	n.peers = peer.NewManager(peer.Dependencies{
		NodeID:     nodeID,
		ChainEpoch: cfg.ChainEpoch,
		Chain:      chainMgr,
		Channel:    n.channel,
		Dedup:      n.dedup,
		Router:     n.router,
		RateLimit:  n.limiter,
		Presence:   n.presence,
		Requests:   n.requests,
		Now:        n.now,
	})

	n.seedNames, n.seedAddrs = splitSeeds(cfg.BootstrapSeeds)

	if cfg.Export.Enabled {
		interval := time.Duration(cfg.Export.IntervalMS) * time.Millisecond
		n.exporter = export.NewScheduler(chainMgr, cfg.Export.OutputDir, interval, logger, n.now)
	}

	if cfg.AdminAPI.Enabled {
		router := rpc.NewRouter(rpc.Dependencies{
			Chain:    chainMgr,
			AppIndex: apps,
			Auth:     rpc.AuthConfig{Enabled: cfg.AdminAPI.JWTSecret != "", Secret: cfg.AdminAPI.JWTSecret},
		})
		n.adminServer = &http.Server{Addr: cfg.AdminAPI.ListenAddress, Handler: router}
	}

	logger.Info("node initialised",
		"nodeId", nodeID,
		"chainLength", chainMgr.Length(),
		"identityKeyHex", logging.MaskValue(cfg.IdentityKeyHex),
		logging.MaskField("adminApiJwtSecret", cfg.AdminAPI.JWTSecret),
	)
	return n, nil
}

// NodeID returns the locally derived node identifier.
func (n *Node) NodeID() string { return n.nodeID }

// Chain exposes the chain manager for rpc/appindex/export to read from.
func (n *Node) Chain() *chain.Manager { return n.chain }

// Peers exposes the peer manager for admin diagnostics.
func (n *Node) Peers() *peer.Manager { return n.peers }

// AppIndex exposes the APP_EVENT secondary index for rpc to query.
func (n *Node) AppIndex() *appindex.Store { return n.apps }

// splitSeeds partitions BootstrapSeeds into direct dial addresses
// ("host:port" entries) and bare DNS names to resolve via SeedDiscovery.
func splitSeeds(seeds []string) (names []string, addrs []string) {
	for _, s := range seeds {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, ":") {
			addrs = append(addrs, s)
		} else {
			names = append(names, s)
		}
	}
	return names, addrs
}

// Start listens for inbound connections on cfg.ListenAddress, dials every
// configured seed (direct addresses and DNS-discovered ones), and runs the
// peer manager's heartbeat/resync loops until ctx is cancelled.
func (n *Node) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", n.acceptHandler(ctx))
	n.httpServer = &http.Server{Addr: n.cfg.ListenAddress, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		if err := n.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	go n.dialSeeds(ctx)

	go func() {
		if err := n.apps.Run(ctx, n.chain, appindex.DefaultPollInterval); err != nil {
			n.logger.Warn("app index poller stopped", "err", err)
		}
	}()

	if n.exporter != nil {
		go n.exporter.Run(ctx)
	}

	if n.adminServer != nil {
		go func() {
			if err := n.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.logger.Warn("admin API listener stopped", "err", err)
			}
		}()
	}

	go n.reportMetrics(ctx)

	done := make(chan struct{})
	go func() {
		n.peers.Start(ctx)
		close(done)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("node: listen %s: %w", n.cfg.ListenAddress, err)
	case <-done:
		return nil
	}
}

// Close shuts down the HTTP listener, every tracked connection, and the
// underlying storage handle.
func (n *Node) Close() error {
	if n.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.httpServer.Shutdown(ctx)
	}
	if n.adminServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.adminServer.Shutdown(ctx)
	}
	_ = n.channel.Close()
	_ = n.apps.Close()
	return n.store.Close()
}

const metricsReportInterval = 5 * time.Second

// reportMetrics periodically publishes chain length, connected-peer count,
// and app-index replay lag to the process-level metrics ledger.
func (n *Node) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()
	l := metrics.Instance()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			length := n.chain.Length()
			l.SetChainLength(length)
			l.SetPeersConnected(len(n.presence.Snapshot()))
			if last, ok, err := n.apps.LastIndexedBlock(ctx); err == nil {
				switch {
				case !ok:
					l.SetAppIndexLag(length)
				case length > last+1:
					l.SetAppIndexLag(length - last - 1)
				default:
					l.SetAppIndexLag(0)
				}
			}
		}
	}
}

func loadIdentity(cfg *config.Config) (*crypto.KeyPair, error) {
	raw, err := hex.DecodeString(cfg.IdentityKeyHex)
	if err != nil {
		return nil, fmt.Errorf("node: decode identity key: %w", err)
	}
	kp, err := crypto.ImportPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("node: import identity key: %w", err)
	}
	return kp, nil
}

func ensureIdentityPersisted(store *storage.Store, identity *crypto.KeyPair, name string) error {
	_, ok, err := store.LoadIdentity()
	if err != nil {
		return fmt.Errorf("node: load identity record: %w", err)
	}
	if ok {
		return nil
	}
	pub, err := crypto.ExportPublicKey(identity.Public)
	if err != nil {
		return fmt.Errorf("node: export public key: %w", err)
	}
	rec := storage.IdentityRecord{
		NodeID:     identity.NodeID(),
		Name:       name,
		PublicKey:  pub,
		PrivateKey: append([]byte(nil), identity.Private...),
	}
	if err := store.SaveIdentity(rec); err != nil {
		return fmt.Errorf("node: save identity record: %w", err)
	}
	return nil
}

// uniqueGenesisToken mints a collision-free token for a locally created
// genesis block (spec §4.5: "the genesis block is unique per chain epoch").
func uniqueGenesisToken() string {
	return uuid.New().String()
}
