// rin-arb — a triangular arbitrage bot for a decentralized exchange.
//
// Architecture:
//
//	main.go                      — entry point: loads config, starts the orchestrator, waits for SIGINT/SIGTERM
//	internal/orchestrator        — cycle loop: reload blacklist, fan out one ChainExecutor per candidate chain
//	internal/executor            — per-chain INIT/POLL/EXECUTE/TEARDOWN lifecycle
//	internal/kernel               — pure profitability/volume-reconciliation math (Steps A/B/C)
//	internal/exchange            — JSON-RPC-over-WebSocket client, connection pool, rate limiting
//	internal/fees                 — fee/limit tables, chain file parsing, ChainContext construction
//	internal/blacklist            — append-only persisted set of assets excluded from trading
//	internal/gate                 — single-flight lock so only one chain places orders at a time
//	internal/metrics               — optional prometheus /metrics endpoint
//
// How it makes money:
//
//	A chain is three pairs that close on themselves: A->B->C->A. When the
//	product of the three exchange rates clears the combined trading/gateway/
//	network fees, selling through all three legs returns more of asset A than
//	it started with. The kernel finds the deepest profitable volume across
//	the polled order book levels; the executor places the three market orders
//	back to back.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rin-arb/internal/blacklist"
	"rin-arb/internal/config"
	"rin-arb/internal/exchange"
	"rin-arb/internal/fees"
	"rin-arb/internal/logging"
	"rin-arb/internal/metrics"
	"rin-arb/internal/orchestrator"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("RIN_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	streams, err := logging.New(cfg.Logging, cfg.LogDir)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	logger := streams.General

	bl, err := blacklist.Open(cfg.Strategy.BlacklistFile)
	if err != nil {
		logger.Error("failed to open blacklist", "error", err)
		os.Exit(1)
	}

	pool := exchange.NewConnPool(cfg.Exchange.PoolSize, cfg.Exchange.RequestTimeout, logger)
	defer pool.Close()

	feesProv := fees.NewProvider(cfg.Fees)

	coll := metrics.New()
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(coll, cfg.Metrics.Port)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server started", "url", fmt.Sprintf("http://localhost:%d/metrics", cfg.Metrics.Port))
	}

	source := fees.NewFileChainSource(cfg.Strategy.ChainFile)
	orch := orchestrator.New(*cfg, source, pool, feesProv, bl, coll, logger, streams.Profit)

	ctx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- orch.Run(ctx)
	}()

	logger.Info("rin-arb started",
		"account", cfg.Account.Name,
		"node_uri", cfg.Exchange.NodeURI,
		"orders_depth", cfg.Strategy.OrdersDepth,
		"chain_file", cfg.Strategy.ChainFile,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-runErrCh

	case err := <-runErrCh:
		if err != nil {
			logger.Error("orchestrator stopped unexpectedly", "error", err)
			cancel()
			os.Exit(1)
		}
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Exchange.RequestTimeout)
		defer shutdownCancel()
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}
}
