// Package orchestrator runs the top-level cycle loop: load the candidate
// chain list, spawn one executor.ChainExecutor per chain, and keep respawning
// them until told to stop. Grounded on the teacher's internal/engine/engine.go
// (New/Start/Stop, one goroutine per unit of work) generalized from a
// sync.WaitGroup fan-out to an errgroup.Group fan-out, since a cycle needs to
// propagate the first unexpected chain failure rather than just wait for all
// of them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rin-arb/internal/blacklist"
	"rin-arb/internal/config"
	"rin-arb/internal/exchange"
	"rin-arb/internal/executor"
	"rin-arb/internal/fees"
	"rin-arb/internal/gate"
	"rin-arb/internal/metrics"
	"rin-arb/pkg/types"
)

// Orchestrator owns the shared collaborators every ChainExecutor needs and
// drives the outer cycle loop: reload the blacklist, fan out one executor
// per non-blacklisted chain, wait, react to whatever stopped them.
type Orchestrator struct {
	cfg    config.Config
	source fees.ChainSource

	pool      *exchange.ConnPool
	feesProv  *fees.Provider
	blacklist *blacklist.List
	gate      *gate.ExecutionGate
	placer    *executor.OrderPlacer
	metrics   *metrics.Collector

	logger       *slog.Logger
	profitLogger *slog.Logger
}

// New constructs an Orchestrator from its shared collaborators. The caller
// owns pool/blacklist/metrics lifecycle (Close/Rebuild, etc.) — Orchestrator
// only reads and drives them. source is usually fees.NewFileChainSource(cfg.
// Strategy.ChainFile); tests may substitute their own ChainSource.
func New(cfg config.Config, source fees.ChainSource, pool *exchange.ConnPool, feesProv *fees.Provider, bl *blacklist.List, m *metrics.Collector, generalLogger, profitLogger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		source:       source,
		pool:         pool,
		feesProv:     feesProv,
		blacklist:    bl,
		gate:         gate.New(),
		placer:       executor.NewPlacer(bl, cfg.CoreAssets, m, generalLogger),
		metrics:      m,
		logger:       generalLogger.With("component", "orchestrator"),
		profitLogger: profitLogger,
	}
}

// Run loads the chain file once and then runs cycles back to back until ctx
// is canceled. A connection error anywhere in a cycle pauses for
// time_to_reconnect and rebuilds the pool before the next cycle; every other
// cycle-ending error is logged and the loop continues immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	chains, err := o.source.Chains()
	if err != nil {
		return fmt.Errorf("orchestrator: load chain source: %w", err)
	}
	o.logger.Info("loaded candidate chains", "count", len(chains))

	for cycle := 0; ; cycle++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := o.blacklist.Reload(); err != nil {
			o.logger.Error("reload blacklist", "error", err)
		}
		if o.metrics != nil {
			o.metrics.BlacklistSize.Set(float64(o.blacklist.Len()))
		}

		err := o.runCycle(ctx, chains)
		switch {
		case err == nil:
			if o.metrics != nil {
				o.metrics.CyclesCompleted.Inc()
			}
			o.logger.Info("cycle complete", "cycle", cycle)

		case errors.Is(err, context.Canceled):
			return nil

		case errors.Is(err, exchange.ErrClientConnectionError):
			o.logger.Warn("connection error, rebuilding pool", "cycle", cycle, "error", err)
			if o.metrics != nil {
				o.metrics.ConnectionErrors.Inc()
			}
			o.pool.Rebuild()
			select {
			case <-time.After(o.cfg.Exchange.TimeToReconnect):
			case <-ctx.Done():
				return nil
			}

		default:
			o.logger.Error("cycle ended with an unexpected error", "cycle", cycle, "error", err)
		}
	}
}

// runCycle spawns one goroutine per non-blacklisted chain and waits for all
// of them to stop, returning the first unexpected error (if any). This
// deliberately uses a plain errgroup.Group rather than errgroup.WithContext:
// per spec.md §5, a ChainExecutor's poll loop self-terminates on its own
// terminal conditions and is not cancelled by a sibling chain's failure — an
// errgroup-derived context would cancel every other still-running chain the
// instant one of them returned an error, which the spec explicitly rules
// out. Each executor instead runs against the outer ctx directly, so only an
// outer cancellation (shutdown) or its own error stops it.
func (o *Orchestrator) runCycle(ctx context.Context, chains []types.Chain) error {
	var g errgroup.Group

	spawned := 0
	for _, chain := range chains {
		if o.blacklist.ContainsAny(chainSymbols(chain)...) {
			continue
		}
		spawned++

		exec := executor.New(executor.Config{
			Chain:        chain,
			Account:      o.cfg.Account.ID,
			NodeURI:      o.cfg.Exchange.NodeURI,
			Pool:         o.pool,
			Fees:         o.feesProv,
			Blacklist:    o.blacklist,
			Gate:         o.gate,
			Placer:       o.placer,
			Metrics:      o.metrics,
			OrdersDepth:  o.cfg.Strategy.OrdersDepth,
			Horizon:      o.cfg.Strategy.DataUpdateTime,
			Logger:       o.logger,
			ProfitLogger: o.profitLogger,
		})

		g.Go(func() error {
			for {
				err := exec.Run(ctx)
				if errors.Is(err, executor.ErrHorizonExpired) {
					continue
				}
				return err
			}
		})
	}

	if spawned == 0 {
		o.logger.Warn("every candidate chain is blacklisted this cycle")
		return nil
	}

	return g.Wait()
}

// chainSymbols returns the symbols at a chain's four asset positions (leg 0
// base, leg 0 quote, leg 1 quote, leg 2 quote; the last repeats the first in
// a closed chain), for a blacklist membership check before spawning its
// executor.
func chainSymbols(c types.Chain) []string {
	return []string{c[0].Base.Symbol, c[0].Quote.Symbol, c[1].Quote.Symbol, c[2].Quote.Symbol}
}
