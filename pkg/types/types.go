// Package types defines shared data structures used across all packages.
//
// This is the common vocabulary for the arbitrage bot — assets, pairs,
// chains, order-book depth, and the fee/limit context the kernel consumes.
// It has no dependencies on internal packages, so it can be imported by any
// layer. All price and volume fields use decimal.Decimal rather than
// float64: depth is ingested directly from wire strings into decimal form,
// and every downstream computation (kernel, order placement) stays in that
// representation so truncation and rounding happen exactly once, at the
// point the spec says they should.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Assets and pairs
// ————————————————————————————————————————————————————————————————————————

// Asset is a tradable token on the exchange. Symbol is always uppercase;
// ID is an opaque handle resolved once per session by the exchange client
// (ResolveAssetID / GetAssetInfo) and cached there.
type Asset struct {
	Symbol    string // uppercase ticker, e.g. "BTS"
	ID        string // exchange-assigned opaque handle, e.g. "1.3.0"
	Precision int    // decimal places the exchange truncates volumes to
}

// Pair is a directed market: sell Base, receive Quote.
type Pair struct {
	Base  Asset
	Quote Asset
}

// String renders the pair in BASE:QUOTE form, matching the chain input file
// format (§6).
func (p Pair) String() string {
	return fmt.Sprintf("%s:%s", p.Base.Symbol, p.Quote.Symbol)
}

// Chain is an ordered triple of pairs forming a cycle: P0.base -> P0.quote
// (== P1.base) -> P1.quote (== P2.base) -> P2.quote (== P0.base).
type Chain [3]Pair

// Valid reports whether the three pairs actually close on themselves.
func (c Chain) Valid() bool {
	return c[0].Quote.Symbol == c[1].Base.Symbol &&
		c[1].Quote.Symbol == c[2].Base.Symbol &&
		c[2].Quote.Symbol == c[0].Base.Symbol
}

// String renders the chain as it appears in the chain input file:
// "BASE0:QUOTE0,BASE1:QUOTE1,BASE2:QUOTE2".
func (c Chain) String() string {
	return fmt.Sprintf("%s,%s,%s", c[0], c[1], c[2])
}

// ————————————————————————————————————————————————————————————————————————
// Order book depth
// ————————————————————————————————————————————————————————————————————————

// OrderLevel is one price level on one side of an order book.
type OrderLevel struct {
	Price    decimal.Decimal
	BaseVol  decimal.Decimal
	QuoteVol decimal.Decimal
}

// DepthSlice is up to D top ask levels for one pair, ordered by
// non-decreasing price.
type DepthSlice []OrderLevel

// CumulativeBase returns the cumulative base volume across levels [0, k].
func (d DepthSlice) CumulativeBase(k int) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i <= k && i < len(d); i++ {
		sum = sum.Add(d[i].BaseVol)
	}
	return sum
}

// CumulativeQuote returns the cumulative quote volume across levels [0, k].
func (d DepthSlice) CumulativeQuote(k int) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i <= k && i < len(d); i++ {
		sum = sum.Add(d[i].QuoteVol)
	}
	return sum
}

// ————————————————————————————————————————————————————————————————————————
// Chain economics
// ————————————————————————————————————————————————————————————————————————

// ChainContext is the immutable, per-chain economic configuration the
// kernel needs: fee schedule, volume floor, and profit threshold, all
// denominated per spec.md §3/§4.2.
type ChainContext struct {
	Chain Chain

	// AssetVolLimit is the minimum notional in the first leg's base asset
	// below which an opportunity is ignored.
	AssetVolLimit decimal.Decimal

	// NetworkFee is a flat per-order protocol fee, pre-converted into the
	// first leg's base asset units.
	NetworkFee decimal.Decimal

	// GatewayFees[i] is the fractional gateway fee rate applied to the
	// received side of leg i (e.g. 0.001 = 10bp).
	GatewayFees [3]decimal.Decimal

	// MinProfit is the profit floor in the first leg's base asset.
	MinProfit decimal.Decimal

	// Precisions carries, in order: leg0-base, leg0-quote, leg1-quote,
	// leg2-quote, leg0-base (again — the volume truncated at the very end
	// of the cycle is denominated in the same asset as the volume fed in,
	// so the same precision applies at both ends).
	Precisions [5]int
}

// ————————————————————————————————————————————————————————————————————————
// Kernel verdict
// ————————————————————————————————————————————————————————————————————————

// LegVolumes is the sell/receive pair submitted for one leg of a chain.
type LegVolumes struct {
	SellVolume    decimal.Decimal
	ReceiveVolume decimal.Decimal
}

// Opportunity is the kernel's verdict when a chain is profitable: the three
// leg volumes to submit and the realized profit (in the first leg's base
// asset) after truncation. A nil *Opportunity means "no opportunity" — the
// kernel never returns an error for that case, only for malformed inputs it
// cannot evaluate at all.
type Opportunity struct {
	Legs   [3]LegVolumes
	Profit decimal.Decimal
}
