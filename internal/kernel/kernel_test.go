package kernel

import (
	"testing"

	"github.com/shopspring/decimal"

	"rin-arb/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// level builds an OrderLevel consistent with the quote = price * base
// invariant pkg/types documents.
func level(price, base string) types.OrderLevel {
	p, b := dec(price), dec(base)
	return types.OrderLevel{Price: p, BaseVol: b, QuoteVol: p.Mul(b)}
}

func flatContext() types.ChainContext {
	return types.ChainContext{
		AssetVolLimit: dec("10"),
		NetworkFee:    decimal.Zero,
		GatewayFees:   [3]decimal.Decimal{decimal.Zero, decimal.Zero, decimal.Zero},
		MinProfit:     dec("10"),
		Precisions:    [5]int{2, 2, 2, 2, 2},
	}
}

// tightDepths builds a chain where every leg's depth is exactly saturated by
// the previous leg's output — no leg has leftover capacity. Step A's
// rate-based screen and Step C's truncated recompute only agree exactly
// under this condition; a leg with excess depth relative to what upstream
// actually delivers makes Step 4's literal "use the book's full cumulative
// quote" formula overstate the final receive.
func tightDepths() [3]types.DepthSlice {
	return [3]types.DepthSlice{
		{level("2.0", "100")}, // cumQ0 = 200
		{level("2.0", "200")}, // cumB1 = 200, cumQ1 = 400
		{level("0.3", "400")}, // cumB2 = 400, cumQ2 = 120
	}
}

func TestEvaluateProfitableChain(t *testing.T) {
	t.Parallel()

	cc := flatContext()
	cc.MinProfit = decimal.Zero

	opp, err := Evaluate(tightDepths(), cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if !opp.Legs[0].SellVolume.Equal(dec("100")) {
		t.Errorf("leg0 sell volume = %s, want 100", opp.Legs[0].SellVolume)
	}
	if !opp.Legs[0].ReceiveVolume.Equal(dec("200")) {
		t.Errorf("leg0 receive volume = %s, want 200", opp.Legs[0].ReceiveVolume)
	}
	if !opp.Profit.Equal(dec("20")) {
		t.Errorf("profit = %s, want 20", opp.Profit)
	}
}

func TestEvaluateNoOpportunityWhenUnprofitable(t *testing.T) {
	t.Parallel()

	// p0*p1*p2 = 0.5 < 1: a straight loss, whatever the fee schedule.
	depths := [3]types.DepthSlice{
		{level("0.5", "100")},
		{level("1.0", "100")},
		{level("1.0", "100")},
	}
	cc := flatContext()

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp != nil {
		t.Fatalf("expected nil opportunity, got %+v", opp)
	}
}

func TestEvaluateBelowAssetVolLimitIsSkipped(t *testing.T) {
	t.Parallel()

	depths := [3]types.DepthSlice{
		{level("2.0", "1")}, // cumB0 = 1, below AssetVolLimit
		{level("2.0", "300")},
		{level("0.3", "1000")},
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero
	cc.AssetVolLimit = dec("10")

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp != nil {
		t.Fatalf("expected nil opportunity below asset vol limit, got %+v", opp)
	}
}

func TestEvaluateGatewayFeesCanFlipProfitability(t *testing.T) {
	t.Parallel()

	// p0*p1*p2 = 1.2, a thin 20% edge before fees.
	depths := tightDepths()
	cc := flatContext()
	cc.MinProfit = decimal.Zero

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity with zero gateway fees")
	}

	// Heavy fees across all three legs erase the edge entirely.
	cc.GatewayFees = [3]decimal.Decimal{dec("0.2"), dec("0.2"), dec("0.2")}
	opp, err = Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp != nil {
		t.Fatalf("expected fees to erase the opportunity, got %+v", opp)
	}
}

func TestEvaluateDeepestProfitableLevelIsChosen(t *testing.T) {
	t.Parallel()

	// Level 0 is profitable, level 1 is not (price1 at depth 1 kills the
	// cycle). deepestProfitableLevel must still report level 0, not bail out
	// entirely just because a deeper level fails.
	depths := [3]types.DepthSlice{
		{level("2.0", "100"), level("2.0", "50")},
		{level("2.0", "300"), level("2.0", "100")},
		{level("0.3", "1000"), level("0.1", "500")},
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected level 0 to still produce an opportunity")
	}
	// Reconciliation runs at level 0 only, so leg0's sell volume is the
	// level-0 cumulative base (100), not the 2-level cumulative (150).
	if !opp.Legs[0].SellVolume.Equal(dec("100")) {
		t.Errorf("leg0 sell volume = %s, want 100 (level 0 only)", opp.Legs[0].SellVolume)
	}
}

func TestEvaluateDepthSliceLengthMismatchAligns(t *testing.T) {
	t.Parallel()

	depths := [3]types.DepthSlice{
		{level("2.0", "100"), level("2.0", "10"), level("2.0", "10")},
		{level("2.0", "300")},
		{level("0.3", "1000"), level("0.3", "10")},
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity after aligning to the shortest slice")
	}
	if !opp.Legs[0].SellVolume.Equal(dec("100")) {
		t.Errorf("leg0 sell volume = %s, want 100 (only level 0 survives alignment)", opp.Legs[0].SellVolume)
	}
}

func TestEvaluateMalformedInputErrors(t *testing.T) {
	t.Parallel()
	cc := flatContext()

	t.Run("empty depth", func(t *testing.T) {
		t.Parallel()
		depths := [3]types.DepthSlice{{}, {level("2.0", "1")}, {level("2.0", "1")}}
		if _, err := Evaluate(depths, cc); err == nil {
			t.Fatal("expected error for empty depth slice")
		}
	})

	t.Run("zero price", func(t *testing.T) {
		t.Parallel()
		zero := types.OrderLevel{Price: decimal.Zero, BaseVol: dec("1"), QuoteVol: dec("1")}
		depths := [3]types.DepthSlice{{zero}, {level("2.0", "1")}, {level("2.0", "1")}}
		if _, err := Evaluate(depths, cc); err == nil {
			t.Fatal("expected error for zero price")
		}
	})

	t.Run("zero volume", func(t *testing.T) {
		t.Parallel()
		zero := types.OrderLevel{Price: dec("2.0"), BaseVol: decimal.Zero, QuoteVol: decimal.Zero}
		depths := [3]types.DepthSlice{{zero}, {level("2.0", "1")}, {level("2.0", "1")}}
		if _, err := Evaluate(depths, cc); err == nil {
			t.Fatal("expected error for zero volume")
		}
	})
}

func TestReconcileVolumesClampsOnLeg1Capacity(t *testing.T) {
	t.Parallel()

	// cumQ0 (200) exceeds cumB1 (120): leg0's receive must clamp down to
	// what leg1 can actually consume, and leg0's sell volume shrinks to
	// match (back-propagated via divide, the inverse of quote = price*base).
	depths := [3]types.DepthSlice{
		{level("2.0", "100")}, // cumQ0 = 200
		{level("2.0", "120")}, // cumB1 = 120
		{level("0.3", "1000")},
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if !opp.Legs[0].ReceiveVolume.Equal(dec("120")) {
		t.Errorf("leg0 receive volume = %s, want 120 (clamped to leg1 capacity)", opp.Legs[0].ReceiveVolume)
	}
	// Clamped v0_in = v0_out / p0 = 120 / 2.0 = 60, strictly less than the
	// full cumulative base (100) the unclamped case would have used.
	if !opp.Legs[0].SellVolume.Equal(dec("60")) {
		t.Errorf("leg0 sell volume = %s, want 60 (back-propagated from the clamp)", opp.Legs[0].SellVolume)
	}
}

func TestReconcileVolumesRespectsDeclaredPrecision(t *testing.T) {
	t.Parallel()

	depths := [3]types.DepthSlice{
		{level("2.001", "100")},
		{level("2.0", "300")},
		{level("0.301", "1000")},
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero
	cc.Precisions = [5]int{2, 2, 2, 2, 2}

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	for _, leg := range opp.Legs {
		if leg.SellVolume.Exponent() < -2 {
			t.Errorf("sell volume %s has more than 2 decimal places", leg.SellVolume)
		}
		if leg.ReceiveVolume.Exponent() < -2 {
			t.Errorf("receive volume %s has more than 2 decimal places", leg.ReceiveVolume)
		}
	}
}

// TestReconcileVolumesAppliesLeg0GatewayFee pins the invariant that
// v1_in <= v0_out * (1 - fees[0]) (spec.md §8), which a gateway fee on leg 0
// must actually reduce leg1's sell volume by, not just leg0's profitability
// screen.
func TestReconcileVolumesAppliesLeg0GatewayFee(t *testing.T) {
	t.Parallel()

	depths := [3]types.DepthSlice{
		{level("2.0", "100")},  // cumQ0 = 200
		{level("2.0", "300")},  // cumB1 = 300, well above cumQ0 after fee
		{level("0.3", "1000")}, // cumB2, cumQ2 large enough not to clamp
	}
	cc := flatContext()
	cc.MinProfit = decimal.Zero
	cc.GatewayFees[0] = dec("0.1")

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	// v0_out = cumQ0 * (1 - 0.1) = 200 * 0.9 = 180, cumB1 (300) never binds.
	if !opp.Legs[0].ReceiveVolume.Equal(dec("180")) {
		t.Errorf("leg0 receive volume = %s, want 180 (200 less a 10%% gateway fee)", opp.Legs[0].ReceiveVolume)
	}
	// v1_in must equal v0_out, not the gross 200 leg0 actually sold for.
	if !opp.Legs[1].SellVolume.Equal(dec("180")) {
		t.Errorf("leg1 sell volume = %s, want 180 (v1_in must not exceed v0_out * (1 - fees[0]))", opp.Legs[1].SellVolume)
	}
}

func TestEvaluateNetworkFeeReducesProfit(t *testing.T) {
	t.Parallel()

	depths := tightDepths()
	cc := flatContext()
	cc.MinProfit = decimal.Zero
	cc.NetworkFee = dec("5")

	opp, err := Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("expected an opportunity even after the network fee")
	}
	if !opp.Profit.Equal(dec("15")) {
		t.Errorf("profit = %s, want 15 (20 - 5 network fee)", opp.Profit)
	}

	cc.NetworkFee = dec("25")
	opp, err = Evaluate(depths, cc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp != nil {
		t.Fatalf("expected the network fee to erase the opportunity, got %+v", opp)
	}
}
