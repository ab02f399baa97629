// Command srishti-node runs a single srishti peer: it loads (or creates) a
// TOML configuration file, wires up storage/chain/gossip/peer/appindex/rpc
// via node.New, and serves until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"srishti/config"
	"srishti/node"
	"srishti/observability/logging"
	srishtiotel "srishti/observability/otel"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "srishti.toml", "path to the node configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SRISHTI_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("srishti-node: load config: %v", err)
	}

	logger := logging.Setup("srishti-node", env, cfg.DataDir)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := srishtiotel.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := srishtiotel.Init(context.Background(), srishtiotel.Config{
		ServiceName: "srishti-node",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     otlpEndpoint != "",
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		log.Fatalf("srishti-node: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	n, err := node.New(cfg, logger)
	if err != nil {
		log.Fatalf("srishti-node: init: %v", err)
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("srishti-node: close", "err", err)
		}
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("srishti-node: starting", "nodeId", n.NodeID(), "listen", cfg.ListenAddress)
	if err := n.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("srishti-node: exited", "err", err)
		os.Exit(1)
	}
}
