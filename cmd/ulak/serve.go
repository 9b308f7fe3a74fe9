// Package main provides the serve command for the ulak messaging server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ulak-chat/ulak/internal/chat"
	"github.com/ulak-chat/ulak/internal/config"
	"github.com/ulak-chat/ulak/internal/logging"
	"github.com/ulak-chat/ulak/internal/raft"
	"github.com/ulak-chat/ulak/internal/server"
	"github.com/ulak-chat/ulak/internal/store"
)

// serveCmd handles the serve command.
func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	nodeID := fs.String("id", "", "Node ID (overrides config)")
	nodeAddr := fs.String("addr", "", "Cluster listen address (overrides config)")
	peerList := fs.String("peers", "", "Comma-separated peers as id:host:port (overrides config)")
	dataDir := fs.String("data-dir", "", "Data directory path (overrides config)")
	httpAddr := fs.String("http-address", "", "HTTP API listen address (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printServeUsage(os.Stdout)
		return 0
	}

	// Load configuration
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply command-line overrides (higher priority than config file)
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}
	if *nodeAddr != "" {
		cfg.Node.Addr = *nodeAddr
	}
	if *peerList != "" {
		peers, err := parsePeers(*peerList)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -peers: %v\n", err)
			return 1
		}
		cfg.Cluster.Peers = peers
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *httpAddr != "" {
		cfg.HTTP.Address = *httpAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Apply environment variable overrides (highest priority)
	applyEnvOverrides(cfg)

	// Validate configuration
	errs := config.ValidateConfig(cfg)
	if len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "Configuration errors:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		return 1
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	// Durable state
	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer st.Close()

	sm := chat.NewStateMachine()

	// Cluster transport
	peerAddrs := make(map[string]string, len(cfg.Cluster.Peers))
	raftPeers := make([]raft.Peer, 0, len(cfg.Cluster.Peers))
	for _, p := range cfg.Cluster.Peers {
		peerAddrs[p.ID] = p.Addr
		raftPeers = append(raftPeers, raft.Peer{ID: p.ID, Addr: p.Addr})
	}
	transport := raft.NewTCPTransport(cfg.Node.Addr, peerAddrs)

	raftCfg := &raft.Config{
		ID:                 cfg.Node.ID,
		Addr:               cfg.Node.Addr,
		Peers:              raftPeers,
		ElectionTimeoutMin: cfg.Cluster.ElectionTimeoutMin.Std(),
		ElectionTimeoutMax: cfg.Cluster.ElectionTimeoutMax.Std(),
		HeartbeatInterval:  cfg.Cluster.HeartbeatInterval.Std(),
	}

	node, err := raft.NewNode(raftCfg, st, sm, transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create node: %v\n", err)
		return 1
	}
	node.SetLogger(logger.WithFields("node_id", cfg.Node.ID))

	if err := node.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start node: %v\n", err)
		return 1
	}

	httpCfg := server.DefaultServerConfig()
	httpCfg.Address = cfg.HTTP.Address
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout.Std()
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout.Std()

	srv := server.NewServer(httpCfg, node, sm, logger)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start HTTP server: %v\n", err)
		node.Stop()
		return 1
	}

	logger.Info("ulak started",
		"node_id", cfg.Node.ID,
		"cluster_addr", transport.LocalAddr(),
		"http_addr", srv.Addr(),
		"peers", len(cfg.Cluster.Peers),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", "signal", sig.String())

	// HTTP first so no new proposals arrive, then the node
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	node.Stop()

	return 0
}

// parsePeers parses a comma-separated peer list in id:host:port form.
func parsePeers(s string) ([]config.PeerConfig, error) {
	var peers []config.PeerConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("peer %q must be id:host:port", part)
		}
		peers = append(peers, config.PeerConfig{ID: fields[0], Addr: fields[1]})
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("no peers given")
	}
	return peers, nil
}

// applyEnvOverrides applies ULAK_* environment variables over the
// loaded configuration.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("ULAK_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("ULAK_NODE_ADDR"); v != "" {
		cfg.Node.Addr = v
	}
	if v := os.Getenv("ULAK_HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("ULAK_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("ULAK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
