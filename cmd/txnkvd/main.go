// Command txnkvd runs the transactional key-value daemon: it loads
// configuration, wires the engine and command-surface server, and serves
// client connections until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"txnkv/compression"
	"txnkv/config"
	"txnkv/engine"
	"txnkv/logging"
	"txnkv/server"
	"txnkv/shutdown"
)

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	network := flag.String("network", "", "override server.network (unix or tcp)")
	address := flag.String("address", "", "override server.address")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("txnkvd", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("txnkvd: configuration error: %v", err)
	}
	if *network != "" {
		cfg.Server.Network = *network
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("txnkvd: invalid configuration: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		log.Fatalf("txnkvd: logger setup failed: %v", err)
	}
	mainLog := logger.With("main")

	codec, err := buildCodec(cfg.Compression)
	if err != nil {
		log.Fatalf("txnkvd: compression codec setup failed: %v", err)
	}

	eng := engine.New(engine.Config{
		NSlots:           cfg.Engine.NSlots,
		MaxTxns:          cfg.Engine.MaxTxns,
		MaxWrites:        cfg.Engine.MaxWrites,
		KeyLen:           cfg.Engine.KeyLen,
		WaitPollInterval: cfg.Engine.WaitPollInterval,
	}, codec)

	srv := server.New(eng, logger)
	if err := srv.Listen(cfg.Server.Network, cfg.Server.Address); err != nil {
		log.Fatalf("txnkvd: failed to start server: %v", err)
	}

	shutdownMgr := shutdown.NewManager(10*time.Second, logger)
	shutdownMgr.Register("server", 0, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	shutdownMgr.Listen()

	mainLog.Info("txnkvd started", map[string]any{
		"network": cfg.Server.Network,
		"address": cfg.Server.Address,
		"version": Version,
	})

	shutdownMgr.Wait()
	mainLog.Info("txnkvd shutdown complete", nil)
}

func buildCodec(cfg config.CompressionConfig) (*compression.Codec, error) {
	if cfg.Algorithm == "none" {
		return nil, nil
	}
	return compression.NewCodec(cfg.Algorithm, cfg.MinSize)
}
