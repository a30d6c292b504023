// Package fees loads per-chain fee schedules, volume floors and
// minimum-profit thresholds, and turns a candidate Chain into the immutable
// ChainContext the kernel consumes.
package fees

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"rin-arb/internal/config"
	"rin-arb/pkg/types"
)

// Provider exposes ChainsWithGatewayPairFees / VolLimits / DefaultBTSFee as a
// single BuildContext call, keyed off the symbol-based config tables loaded
// at startup. It performs no RPC of its own — the chain's assets must already
// carry resolved IDs and precisions (ChainExecutor.INIT does that via
// ExchangeClient before calling here).
type Provider struct {
	cfg config.FeesConfig
}

// NewProvider wraps the fee/limit config tables loaded from the YAML file.
func NewProvider(cfg config.FeesConfig) *Provider {
	return &Provider{cfg: cfg}
}

// BuildContext produces the ChainContext for chain: gateway fee rate per
// leg, the first-leg-base asset's volume floor and network fee, the
// first-leg-base asset's minimum profit, and the five-slot precision array
// (leg0-base, leg0-quote, leg1-quote, leg2-quote, leg0-base again).
func (p *Provider) BuildContext(chain types.Chain) (types.ChainContext, error) {
	firstBase := chain[0].Base.Symbol

	assetVolLimit, err := p.lookupDecimal(p.cfg.VolsLimits, firstBase, decimal.Zero)
	if err != nil {
		return types.ChainContext{}, fmt.Errorf("vols_limits[%s]: %w", firstBase, err)
	}
	networkFee, err := p.lookupDecimal(p.cfg.NetworkFees, firstBase, decimal.Zero)
	if err != nil {
		return types.ChainContext{}, fmt.Errorf("network_fees[%s]: %w", firstBase, err)
	}
	minProfit, err := p.lookupDecimal(p.cfg.MinProfitLimits, firstBase, decimal.Zero)
	if err != nil {
		return types.ChainContext{}, fmt.Errorf("min_profit_limits[%s]: %w", firstBase, err)
	}

	var gatewayFees [3]decimal.Decimal
	for i, pair := range chain {
		fee, err := p.lookupDecimal(p.cfg.GatewayFees, pair.String(), decimal.Zero)
		if err != nil {
			return types.ChainContext{}, fmt.Errorf("gateway_fees[%s]: %w", pair, err)
		}
		gatewayFees[i] = fee
	}

	return types.ChainContext{
		Chain:         chain,
		AssetVolLimit: assetVolLimit,
		NetworkFee:    networkFee,
		GatewayFees:   gatewayFees,
		MinProfit:     minProfit,
		Precisions: [5]int{
			chain[0].Base.Precision,
			chain[0].Quote.Precision,
			chain[1].Quote.Precision,
			chain[2].Quote.Precision,
			chain[0].Base.Precision,
		},
	}, nil
}

func (p *Provider) lookupDecimal(table map[string]string, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw, ok := table[key]
	if !ok {
		return fallback, nil
	}
	return decimal.NewFromString(raw)
}

// ChainSource supplies the orchestrator's candidate chain list once per
// process lifetime. The file-backed implementation is the only one this
// module ships: ranking pairs by spread/volume and proposing new candidate
// chains (pair discovery) is out of scope, but any such mechanism plugs in
// behind this same narrow interface instead of the orchestrator depending on
// a concrete file format.
type ChainSource interface {
	Chains() ([]types.Chain, error)
}

// fileChainSource reads the chain file afresh on every Chains() call; the
// orchestrator calls it once per Run, and callers that want to pick up file
// edits without a restart can re-invoke Chains() directly.
type fileChainSource struct {
	path string
}

// NewFileChainSource builds a ChainSource backed by the chain input file at
// path.
func NewFileChainSource(path string) ChainSource {
	return fileChainSource{path: path}
}

func (f fileChainSource) Chains() ([]types.Chain, error) {
	return ParseChainFile(f.path)
}

// ParseChainFile reads the chain input file: one chain per line, pairs
// comma-separated, each pair BASE:QUOTE with uppercase symbols. Returned
// chains carry only Symbol fields — ID and Precision are resolved later by
// the ChainExecutor via ExchangeClient.
func ParseChainFile(path string) ([]types.Chain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	var chains []types.Chain
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		chain, err := parseChainLine(line)
		if err != nil {
			return nil, fmt.Errorf("chain file line %d: %w", lineNo, err)
		}
		if !chain.Valid() {
			return nil, fmt.Errorf("chain file line %d: pairs do not form a closed cycle: %s", lineNo, line)
		}
		chains = append(chains, chain)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return chains, nil
}

func parseChainLine(line string) (types.Chain, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return types.Chain{}, fmt.Errorf("expected 3 comma-separated pairs, got %d", len(parts))
	}

	var chain types.Chain
	for i, part := range parts {
		symbols := strings.Split(strings.TrimSpace(part), ":")
		if len(symbols) != 2 {
			return types.Chain{}, fmt.Errorf("pair %q: expected BASE:QUOTE", part)
		}
		base := strings.ToUpper(strings.TrimSpace(symbols[0]))
		quote := strings.ToUpper(strings.TrimSpace(symbols[1]))
		if base == "" || quote == "" || base == quote {
			return types.Chain{}, fmt.Errorf("pair %q: base and quote must be distinct non-empty symbols", part)
		}
		chain[i] = types.Pair{
			Base:  types.Asset{Symbol: base},
			Quote: types.Asset{Symbol: quote},
		}
	}
	return chain, nil
}
