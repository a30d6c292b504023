package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

const minimalYAML = `
work_dir: /tmp/rin
log_dir: /tmp/rin/logs
exchange:
  node_uri: ws://node.example:8090
  wallet_uri: ws://wallet.example:8091
  time_to_reconnect: 10s
account:
  name: tester
  id: "1.2.3"
strategy:
  data_update_time: 3h
  chain_file: /tmp/rin/chains.txt
  blacklist_file: /tmp/rin/blacklist.txt
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, minimalYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Strategy.OrdersDepth != 5 {
		t.Errorf("OrdersDepth default = %d, want 5", cfg.Strategy.OrdersDepth)
	}
	if cfg.Exchange.PoolSize != 3 {
		t.Errorf("PoolSize default = %d, want 3", cfg.Exchange.PoolSize)
	}
	if cfg.Exchange.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout default = %v, want 30s", cfg.Exchange.RequestTimeout)
	}
	if len(cfg.CoreAssets) != 4 || cfg.CoreAssets[0] != "BTS" {
		t.Errorf("CoreAssets default = %v, want [BTS CNY USD BRIDGE.BTC]", cfg.CoreAssets)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on minimal valid config: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)

	t.Setenv("RIN_NODE_URI", "ws://override-node:9999")
	t.Setenv("RIN_ACCOUNT_ID", "9.9.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Exchange.NodeURI != "ws://override-node:9999" {
		t.Errorf("NodeURI = %q, want env override", cfg.Exchange.NodeURI)
	}
	if cfg.Account.ID != "9.9.9" {
		t.Errorf("Account.ID = %q, want env override", cfg.Account.ID)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			WorkDir: "/tmp/rin",
			Exchange: ExchangeConfig{
				NodeURI:         "ws://node",
				WalletURI:       "ws://wallet",
				TimeToReconnect: 10 * time.Second,
				PoolSize:        3,
			},
			Account: AccountConfig{Name: "tester", ID: "1.2.3"},
			Strategy: StrategyConfig{
				DataUpdateTime: 3 * time.Hour,
				OrdersDepth:    5,
				ChainFile:      "chains.txt",
				BlacklistFile:  "blacklist.txt",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing work dir", func(c *Config) { c.WorkDir = "" }, true},
		{"missing node uri", func(c *Config) { c.Exchange.NodeURI = "" }, true},
		{"zero pool size", func(c *Config) { c.Exchange.PoolSize = 0 }, true},
		{"missing account id", func(c *Config) { c.Account.ID = "" }, true},
		{"zero data update time", func(c *Config) { c.Strategy.DataUpdateTime = 0 }, true},
		{"zero orders depth", func(c *Config) { c.Strategy.OrdersDepth = 0 }, true},
		{"missing chain file", func(c *Config) { c.Strategy.ChainFile = "" }, true},
		{"metrics enabled without port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 0
		}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
