package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"rin-arb/internal/blacklist"
	"rin-arb/internal/exchange"
	"rin-arb/internal/metrics"
	"rin-arb/pkg/types"
)

// OrderPlacer submits a chain's three legs sequentially. Grounded on the
// original's _orders_setter: leg 0 uses the kernel's volumes exactly, but
// legs 1 and 2 re-measure the account's actual balance in that leg's base
// asset after the previous leg's fill and sell that measured amount instead
// of blindly resubmitting the kernel's estimate — a fill can differ
// slightly from the order book snapshot the kernel priced against. When the
// asset a leg receives is one of the configured core assets, the account
// may already be holding a balance unrelated to this cycle, so only the
// delta since the cycle began is sold on the following leg.
type OrderPlacer struct {
	blacklist  *blacklist.List
	coreAssets map[string]struct{}
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewPlacer builds an OrderPlacer. coreAssets is normalized to uppercase once
// at construction, matching the symbol casing everywhere else in the bot.
func NewPlacer(bl *blacklist.List, coreAssets []string, m *metrics.Collector, logger *slog.Logger) *OrderPlacer {
	set := make(map[string]struct{}, len(coreAssets))
	for _, a := range coreAssets {
		set[strings.ToUpper(a)] = struct{}{}
	}
	return &OrderPlacer{blacklist: bl, coreAssets: set, metrics: m, logger: logger}
}

func (p *OrderPlacer) isCoreAsset(symbol string) bool {
	_, ok := p.coreAssets[strings.ToUpper(symbol)]
	return ok
}

// Place submits opp's three legs against account, in chain order, each leg
// over its own connection (clients[i] — ChainExecutor owns one per leg, see
// spec.md §4.1/§4.4). A nil return means either every leg filled, or a
// fill-or-kill rejection cleanly ended the cycle partway through
// (OrderNotFilledError is not treated as fatal — the remaining legs are
// simply never submitted). A non-nil return means something requires the
// caller to tear the connections down: an authorization requirement (the
// asset is blacklisted before returning) or any other order-placement
// failure.
func (p *OrderPlacer) Place(ctx context.Context, clients [3]*exchange.Client, chain types.Chain, account string, opp *types.Opportunity) error {
	var priorQuoteBalance int64
	var trackingCoreAsset bool

	for i, pair := range chain {
		client := clients[i]
		leg := opp.Legs[i]
		sellVolume := leg.SellVolume

		if i > 0 {
			rawBalance, err := client.GetAccountBalance(ctx, account, pair.Base.Symbol)
			if err != nil {
				return fmt.Errorf("placer: leg %d balance check for %s: %w", i, pair.Base.Symbol, err)
			}
			measured := rawBalance
			if trackingCoreAsset {
				measured = rawBalance - priorQuoteBalance
			}
			sellVolume = decimal.New(measured, -int32(pair.Base.Precision)).Truncate(int32(pair.Base.Precision))
		}

		trackingCoreAsset = p.isCoreAsset(pair.Quote.Symbol)
		if trackingCoreAsset {
			bal, err := client.GetAccountBalance(ctx, account, pair.Quote.Symbol)
			if err != nil {
				return fmt.Errorf("placer: leg %d pre-fill balance for %s: %w", i, pair.Quote.Symbol, err)
			}
			priorQuoteBalance = bal
		}

		err := client.CreateMarketOrder(ctx, account, sellVolume, pair.Base.Symbol, leg.ReceiveVolume, pair.Quote.Symbol, 0, true, true)
		if err != nil {
			return p.classifyFailure(i, pair, err)
		}
		if p.metrics != nil {
			p.metrics.OrdersPlaced.WithLabelValues(pair.String()).Inc()
		}
	}
	return nil
}

// classifyFailure maps a CreateMarketOrder error onto the taxonomy and
// decides whether the chain ends quietly (OrderNotFilledError) or the
// caller should tear the connection down and propagate (everything else).
func (p *OrderPlacer) classifyFailure(leg int, pair types.Pair, err error) error {
	var notFilled *exchange.OrderNotFilledError
	if errors.As(err, &notFilled) {
		p.logger.Warn("order not filled, chain ends without completing", "leg", leg, "pair", pair.String(), "error", err)
		if p.metrics != nil {
			p.metrics.OrdersFailed.WithLabelValues(pair.String(), "not_filled").Inc()
		}
		return nil
	}

	var authErr *exchange.AuthorizedAssetError
	if errors.As(err, &authErr) {
		if blErr := p.blacklist.Add(authErr.Asset); blErr != nil {
			p.logger.Error("failed to blacklist asset after authorization error", "asset", authErr.Asset, "error", blErr)
		}
		if p.metrics != nil {
			p.metrics.OrdersFailed.WithLabelValues(pair.String(), "authorized_asset").Inc()
		}
		return fmt.Errorf("placer: leg %d (%s) requires asset authorization, blacklisted %s: %w", leg, pair, authErr.Asset, err)
	}

	if p.metrics != nil {
		p.metrics.OrdersFailed.WithLabelValues(pair.String(), "unknown").Inc()
	}
	return fmt.Errorf("placer: leg %d (%s): %w", leg, pair, err)
}
