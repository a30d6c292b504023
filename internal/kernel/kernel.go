// Package kernel implements the arbitrage evaluation itself: a pure,
// deterministic function over three order-book depth slices and a
// ChainContext. It performs no I/O, holds no state, and never errors for
// "no opportunity" — that is total by construction (see Evaluate's doc).
package kernel

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rin-arb/pkg/types"
)

var one = decimal.NewFromInt(1)

// Evaluate implements Steps A (profitability per level), B (volume
// reconciliation at the deepest profitable level) and C (final truncated
// profit check) against three equal-length (after alignment) depth slices.
//
// Evaluate returns (nil, nil) when no level of the chain clears
// cc.MinProfit after fees — that is the expected, common case, not an
// error. A non-nil error means the inputs themselves are malformed (empty
// depth, a zero price or volume) and no verdict could be computed at all.
func Evaluate(depths [3]types.DepthSlice, cc types.ChainContext) (*types.Opportunity, error) {
	d := alignDepths(depths)
	if len(d[0]) == 0 {
		return nil, fmt.Errorf("kernel: empty depth slice after alignment")
	}

	for _, slice := range d {
		for _, lvl := range slice {
			if lvl.Price.IsZero() || lvl.BaseVol.IsZero() || lvl.QuoteVol.IsZero() {
				return nil, fmt.Errorf("kernel: zero price or volume at a depth level")
			}
		}
	}

	level := deepestProfitableLevel(d, cc)
	if level < 0 {
		return nil, nil
	}

	cumB0 := d[0].CumulativeBase(level)
	if cumB0.LessThan(cc.AssetVolLimit) {
		return nil, nil
	}

	opp := reconcileVolumes(d, cc, level)
	if opp == nil {
		return nil, nil
	}
	return opp, nil
}

// alignDepths truncates all three slices to the shortest length, per the
// "depth-slice length mismatch" edge case.
func alignDepths(depths [3]types.DepthSlice) [3]types.DepthSlice {
	minLen := len(depths[0])
	for _, d := range depths[1:] {
		if len(d) < minLen {
			minLen = len(d)
		}
	}
	var out [3]types.DepthSlice
	for i, d := range depths {
		if len(d) > minLen {
			out[i] = d[:minLen]
		} else {
			out[i] = d
		}
	}
	return out
}

// deepestProfitableLevel implements Step A across all levels and returns
// the deepest k for which the cycle clears cc.MinProfit after fees and
// network_fee, or -1 if none does.
func deepestProfitableLevel(d [3]types.DepthSlice, cc types.ChainContext) int {
	best := -1
	for k := 0; k < len(d[0]); k++ {
		if levelProfitable(d, cc, k) {
			best = k
		}
	}
	return best
}

// levelProfitable computes R_k = p0*p1*p2, the first-leg-base multiplier
// implied by cycling a unit of base through all three legs at this depth
// level (each leg's quote volume equals price times base volume, so the
// quote obtained from one leg becomes the base fed into the next), compounds
// the gateway fees, and checks the implied notional profit ((R_k - 1) times
// leg 0's cumulative base volume through level k) exceeds network_fee +
// min_profit. This is a coarse, level-by-level
// screen — the authoritative profit figure is recomputed on truncated
// volumes in Step C.
func levelProfitable(d [3]types.DepthSlice, cc types.ChainContext, k int) bool {
	rate := one
	for i := 0; i < 3; i++ {
		rate = rate.Mul(d[i][k].Price)
	}
	for i := 0; i < 3; i++ {
		rate = rate.Mul(one.Sub(cc.GatewayFees[i]))
	}
	if rate.LessThanOrEqual(one) {
		return false
	}

	cumB0 := d[0].CumulativeBase(k)
	profit := rate.Sub(one).Mul(cumB0).Sub(cc.NetworkFee)
	return profit.GreaterThan(cc.MinProfit)
}

// reconcileVolumes implements Step B: starting from the cumulative volumes
// available through level, clamp each leg's deliverable against the next
// leg's required input, back-propagating the reduced volume (a quote amount
// converts back to the base amount that produced it by dividing by price,
// the inverse of quote = price * base), then truncate to each asset's
// declared precision (Step C's truncation), and finally recompute realized
// profit from the truncated figures.
func reconcileVolumes(d [3]types.DepthSlice, cc types.ChainContext, level int) *types.Opportunity {
	p0, p1 := d[0][level].Price, d[1][level].Price

	cumB0 := d[0].CumulativeBase(level)
	cumQ0 := d[0].CumulativeQuote(level)
	cumB1 := d[1].CumulativeBase(level)
	cumQ1 := d[1].CumulativeQuote(level)
	cumB2 := d[2].CumulativeBase(level)
	cumQ2 := d[2].CumulativeQuote(level)

	// Leg 0: receive after gateway fee cannot exceed what leg 1 can consume.
	v0OutGross := decimal.Min(cumQ0, cumB1.Div(one.Sub(cc.GatewayFees[0])))
	v0In := cumB0
	if v0OutGross.LessThan(cumQ0) {
		v0In = v0OutGross.Div(p0)
	}
	v0Out := v0OutGross.Mul(one.Sub(cc.GatewayFees[0]))

	// Leg 1: receive after gateway fee cannot exceed what leg 2 can consume.
	v1OutGross := decimal.Min(cumQ1, cumB2.Div(one.Sub(cc.GatewayFees[1])))
	v1In := v0Out
	if v1OutGross.LessThan(cumQ1) {
		v1In = v1OutGross.Div(p1)
	}
	v1Out := v1OutGross.Mul(one.Sub(cc.GatewayFees[1]))

	// Leg 2: final receive, after its own gateway fee. No further leg
	// downstream to clamp against.
	v2In := v1Out
	v2Out := cumQ2.Mul(one.Sub(cc.GatewayFees[2]))

	prec := cc.Precisions
	v0InT := v0In.Truncate(int32(prec[0]))
	v0OutT := v0Out.Truncate(int32(prec[1]))
	v1InT := v1In.Truncate(int32(prec[1]))
	v1OutT := v1Out.Truncate(int32(prec[2]))
	v2InT := v2In.Truncate(int32(prec[2]))
	v2OutT := v2Out.Truncate(int32(prec[3]))
	v0InFinal := v0InT.Truncate(int32(prec[4]))

	profit := v2OutT.Sub(v0InFinal).Sub(cc.NetworkFee)
	if profit.LessThan(cc.MinProfit) {
		return nil
	}

	return &types.Opportunity{
		Legs: [3]types.LegVolumes{
			{SellVolume: v0InFinal, ReceiveVolume: v0OutT},
			{SellVolume: v1InT, ReceiveVolume: v1OutT},
			{SellVolume: v2InT, ReceiveVolume: v2OutT},
		},
		Profit: profit,
	}
}
