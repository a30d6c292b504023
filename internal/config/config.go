// Package config defines all configuration for the arbitrage bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via RIN_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	WorkDir    string         `mapstructure:"work_dir"`
	LogDir     string         `mapstructure:"log_dir"`
	Exchange   ExchangeConfig `mapstructure:"exchange"`
	Account    AccountConfig  `mapstructure:"account"`
	Strategy   StrategyConfig `mapstructure:"strategy"`
	Fees       FeesConfig     `mapstructure:"fees"`
	CoreAssets []string       `mapstructure:"core_assets"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

// ExchangeConfig holds the WebSocket endpoints and connection pool sizing.
type ExchangeConfig struct {
	NodeURI         string        `mapstructure:"node_uri"`
	WalletURI       string        `mapstructure:"wallet_uri"`
	TimeToReconnect time.Duration `mapstructure:"time_to_reconnect"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PoolSize        int           `mapstructure:"pool_size"`
}

// AccountConfig identifies the account orders are submitted under.
type AccountConfig struct {
	Name string `mapstructure:"name"`
	ID   string `mapstructure:"id"`
}

// StrategyConfig tunes the per-chain poll/execute cadence.
//
//   - DataUpdateTime: wall-clock horizon after which a ChainExecutor tears
//     down and the orchestrator respawns it with refreshed fee/limit context.
//   - OrdersDepth: D, the number of ask-side depth levels requested per pair.
//   - ChainFile: path to the line-delimited candidate-chain input file.
type StrategyConfig struct {
	DataUpdateTime time.Duration `mapstructure:"data_update_time"`
	OrdersDepth    int           `mapstructure:"orders_depth"`
	ChainFile      string        `mapstructure:"chain_file"`
	BlacklistFile  string        `mapstructure:"blacklist_file"`
}

// FeesConfig carries the fee/limit tables FeeAndLimitProvider builds
// ChainContexts from.
//
//   - MinProfitLimits: first-leg-base asset symbol -> minimum profit.
//   - VolsLimits: asset symbol -> minimum tradeable notional.
//   - NetworkFees: asset symbol -> flat per-order network fee, denominated in
//     that asset's units.
//   - GatewayFees: pair string ("BASE:QUOTE") -> gateway fee rate charged on
//     that leg's receive side.
//   - OverallMinDailyVolume / PairMinDailyVolume: thresholds consumed only by
//     the pair-discovery collaborator, carried here so the config surface
//     matches deployments that still run it out of process.
type FeesConfig struct {
	MinProfitLimits       map[string]string `mapstructure:"min_profit_limits"`
	VolsLimits            map[string]string `mapstructure:"vols_limits"`
	NetworkFees           map[string]string `mapstructure:"network_fees"`
	GatewayFees           map[string]string `mapstructure:"gateway_fees"`
	OverallMinDailyVolume float64           `mapstructure:"overall_min_daily_volume"`
	PairMinDailyVolume    float64           `mapstructure:"pair_min_daily_volume"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the optional prometheus /metrics server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// defaultCoreAssets is the original bot's hardcoded four-asset set, kept as
// the default here rather than guessed away (spec §9, "flag, do not guess").
var defaultCoreAssets = []string{"BTS", "CNY", "USD", "BRIDGE.BTC"}

// Load reads config from a YAML file with env var overrides.
// Sensitive/environment-specific fields use env vars: RIN_NODE_URI,
// RIN_WALLET_URI, RIN_ACCOUNT_NAME, RIN_ACCOUNT_ID.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("strategy.orders_depth", 5)
	v.SetDefault("exchange.pool_size", 3)
	v.SetDefault("exchange.request_timeout", 30*time.Second)
	v.SetDefault("core_assets", defaultCoreAssets)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CoreAssets) == 0 {
		cfg.CoreAssets = defaultCoreAssets
	}

	if uri := os.Getenv("RIN_NODE_URI"); uri != "" {
		cfg.Exchange.NodeURI = uri
	}
	if uri := os.Getenv("RIN_WALLET_URI"); uri != "" {
		cfg.Exchange.WalletURI = uri
	}
	if name := os.Getenv("RIN_ACCOUNT_NAME"); name != "" {
		cfg.Account.Name = name
	}
	if id := os.Getenv("RIN_ACCOUNT_ID"); id != "" {
		cfg.Account.ID = id
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.Exchange.NodeURI == "" {
		return fmt.Errorf("exchange.node_uri is required (set RIN_NODE_URI)")
	}
	if c.Exchange.WalletURI == "" {
		return fmt.Errorf("exchange.wallet_uri is required (set RIN_WALLET_URI)")
	}
	if c.Exchange.PoolSize <= 0 {
		return fmt.Errorf("exchange.pool_size must be > 0")
	}
	if c.Account.Name == "" {
		return fmt.Errorf("account.name is required (set RIN_ACCOUNT_NAME)")
	}
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required (set RIN_ACCOUNT_ID)")
	}
	if c.Strategy.DataUpdateTime <= 0 {
		return fmt.Errorf("strategy.data_update_time must be > 0")
	}
	if c.Strategy.OrdersDepth <= 0 {
		return fmt.Errorf("strategy.orders_depth must be > 0")
	}
	if c.Strategy.ChainFile == "" {
		return fmt.Errorf("strategy.chain_file is required")
	}
	if c.Strategy.BlacklistFile == "" {
		return fmt.Errorf("strategy.blacklist_file is required")
	}
	if c.Exchange.TimeToReconnect <= 0 {
		return fmt.Errorf("exchange.time_to_reconnect must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics.enabled is true")
	}
	return nil
}
