// Package executor runs one chain's INIT -> POLL -> EXECUTE -> POLL loop,
// tearing down on a wall-clock horizon or a fatal connection error so the
// orchestrator can respawn it with refreshed fee/limit context. Grounded on
// the teacher's marketSlot/Engine lifecycle (internal/engine/engine.go): one
// goroutine per unit of work, a context.CancelFunc for teardown, state
// transitions driven by an explicit loop rather than a generic scheduler.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rin-arb/internal/blacklist"
	"rin-arb/internal/exchange"
	"rin-arb/internal/fees"
	"rin-arb/internal/gate"
	"rin-arb/internal/kernel"
	"rin-arb/internal/metrics"
	"rin-arb/pkg/types"
)

// ErrHorizonExpired is returned by Run when a chain's data_update_time
// horizon lapses. It is not a failure: the orchestrator respawns the chain
// immediately with a freshly built ChainContext, picking up any fee/limit
// config changes since the last INIT.
var ErrHorizonExpired = errors.New("executor: data update horizon expired")

// state is the executor's position in the INIT -> POLL -> EXECUTE ->
// POLL/TEARDOWN state machine.
type state int

const (
	stateInit state = iota
	statePoll
	stateExecute
	stateTeardown
)

// ChainExecutor owns the lifecycle of one candidate chain: resolving its
// assets, building its ChainContext, polling depth, evaluating the kernel,
// and placing orders when the ExecutionGate is free.
type ChainExecutor struct {
	chain   types.Chain
	account string
	nodeURI string

	pool      *exchange.ConnPool
	feesProv  *fees.Provider
	blacklist *blacklist.List
	gate      *gate.ExecutionGate
	placer    *OrderPlacer
	metrics   *metrics.Collector

	depth    int
	horizon  time.Duration
	deadline time.Time

	logger       *slog.Logger
	profitLogger *slog.Logger

	clients  [3]*exchange.Client
	resolved types.Chain
	cc       types.ChainContext
	pending  *types.Opportunity
}

// Config bundles ChainExecutor's collaborators, avoiding a ten-argument
// constructor.
type Config struct {
	Chain        types.Chain
	Account      string
	NodeURI      string
	Pool         *exchange.ConnPool
	Fees         *fees.Provider
	Blacklist    *blacklist.List
	Gate         *gate.ExecutionGate
	Placer       *OrderPlacer
	Metrics      *metrics.Collector
	OrdersDepth  int
	Horizon      time.Duration
	Logger       *slog.Logger
	ProfitLogger *slog.Logger
}

// New constructs a ChainExecutor. Run must be called to actually drive it.
func New(cfg Config) *ChainExecutor {
	return &ChainExecutor{
		chain:        cfg.Chain,
		account:      cfg.Account,
		nodeURI:      cfg.NodeURI,
		pool:         cfg.Pool,
		feesProv:     cfg.Fees,
		blacklist:    cfg.Blacklist,
		gate:         cfg.Gate,
		placer:       cfg.Placer,
		metrics:      cfg.Metrics,
		depth:        cfg.OrdersDepth,
		horizon:      cfg.Horizon,
		logger:       cfg.Logger.With("chain", cfg.Chain.String()),
		profitLogger: cfg.ProfitLogger.With("chain", cfg.Chain.String()),
	}
}

// Run drives the state machine until ctx is canceled, the horizon expires
// (ErrHorizonExpired), or a fatal error occurs (an empty order book, a
// blacklisted asset, or an init/poll/execute failure, often wrapping
// exchange.ErrClientConnectionError). Run never returns nil: on ctx
// cancellation it returns ctx.Err(), so the orchestrator always knows why
// this chain stopped.
func (e *ChainExecutor) Run(ctx context.Context) error {
	st := stateInit
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch st {
		case stateInit:
			if e.blacklist.ContainsAny(e.chainSymbols()...) {
				return fmt.Errorf("executor: chain %s contains a blacklisted asset", e.chain)
			}
			if err := e.init(ctx); err != nil {
				return fmt.Errorf("executor: init chain %s: %w", e.chain, err)
			}
			e.deadline = time.Now().Add(e.horizon)
			st = statePoll

		case statePoll:
			if time.Now().After(e.deadline) {
				st = stateTeardown
				continue
			}
			if e.blacklist.ContainsAny(e.chainSymbols()...) {
				return fmt.Errorf("executor: chain %s blacklisted mid-run", e.chain)
			}

			opp, err := e.poll(ctx)
			if err != nil {
				if errors.Is(err, exchange.ErrEmptyOrdersList) {
					e.logger.Warn("empty order book, tearing down chain", "error", err)
				}
				return fmt.Errorf("executor: poll chain %s: %w", e.chain, err)
			}
			if opp == nil {
				continue
			}
			if !e.gate.TryAcquire() {
				e.logger.Debug("opportunity found but gate held elsewhere, skipping")
				continue
			}
			e.pending = opp
			st = stateExecute

		case stateExecute:
			err := e.execute(ctx, e.pending)
			e.gate.Release()
			e.pending = nil
			if err != nil {
				return fmt.Errorf("executor: execute chain %s: %w", e.chain, err)
			}
			st = statePoll

		case stateTeardown:
			e.logger.Info("chain horizon expired, tearing down for respawn")
			return ErrHorizonExpired
		}
	}
}

func (e *ChainExecutor) chainSymbols() []string {
	return []string{
		e.chain[0].Base.Symbol, e.chain[0].Quote.Symbol,
		e.chain[1].Quote.Symbol, e.chain[2].Quote.Symbol,
	}
}

// init opens one connection per leg and resolves each leg's assets
// concurrently, per spec.md §4.1 ("Open one ExchangeClient per leg
// (parallel)"): a single pooled connection would serialize the three legs'
// lookups, defeating the point of checking one out per leg. Each leg's
// Checkout/GetAssetInfo pair runs in its own goroutine; an error on any one
// of them cancels the other two via gctx and fails init as a whole, since a
// chain can't proceed with only some of its legs resolved. Builds the
// immutable ChainContext the kernel will evaluate against.
func (e *ChainExecutor) init(ctx context.Context) error {
	var clients [3]*exchange.Client
	var resolved types.Chain

	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range e.chain {
		g.Go(func() error {
			conn, err := e.pool.Checkout(gctx, e.nodeURI)
			if err != nil {
				return err
			}
			client := exchange.NewClient(conn)

			base, err := client.GetAssetInfo(gctx, pair.Base.Symbol)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", pair.Base.Symbol, err)
			}
			quote, err := client.GetAssetInfo(gctx, pair.Quote.Symbol)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", pair.Quote.Symbol, err)
			}

			clients[i] = client
			resolved[i] = types.Pair{Base: base, Quote: quote}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.clients = clients
	e.resolved = resolved

	cc, err := e.feesProv.BuildContext(resolved)
	if err != nil {
		return fmt.Errorf("build chain context: %w", err)
	}
	e.cc = cc
	return nil
}

// poll fetches all three legs' depth, each over its own leg's connection, in
// parallel per spec.md §4.4 ("Fetch the three depth slices in parallel"),
// then evaluates the kernel.
func (e *ChainExecutor) poll(ctx context.Context) (*types.Opportunity, error) {
	var depths [3]types.DepthSlice

	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range e.resolved {
		g.Go(func() error {
			d, err := e.clients[i].GetOrderBook(gctx, pair.Base.ID, pair.Quote.ID, e.depth)
			if err != nil {
				return err
			}
			depths[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opp, err := kernel.Evaluate(depths, e.cc)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	if opp != nil && e.metrics != nil {
		e.metrics.OpportunitiesFound.WithLabelValues(e.chain.String()).Inc()
	}
	return opp, nil
}

// execute hands the verdict to the OrderPlacer and logs the outcome on the
// profit stream, matching the original's dedicated profit logger. A
// non-nil return means the placer hit something fatal to this connection
// (authorization or an unclassified order error) and Run should tear down.
func (e *ChainExecutor) execute(ctx context.Context, opp *types.Opportunity) error {
	if err := e.placer.Place(ctx, e.clients, e.resolved, e.account, opp); err != nil {
		e.logger.Error("order placement failed", "error", err)
		return err
	}
	e.profitLogger.Info("chain executed",
		"profit", opp.Profit.String(),
		"legs", fmt.Sprintf("%v", opp.Legs),
	)
	return nil
}
