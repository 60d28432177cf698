package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Asset describes one pegged asset handled by the protocol: the lending pool
// contract that emits its events, the oracle feed for its price, and the
// minimum collateralization ratio enforced on-chain.
type Asset struct {
	Symbol          string `yaml:"symbol"`
	PoolContract    string `yaml:"pool_contract"`
	StakeContract   string `yaml:"stake_contract"`
	OracleFeed      string `yaml:"oracle_feed"`
	Decimals        int32  `yaml:"decimals"`
	MinRatioBps     int64  `yaml:"min_ratio_bps"`
	SafeRatioMargin int64  `yaml:"safe_ratio_margin_bps"`
}

// Config is the static configuration of the daemon: the asset registry plus
// tuning knobs for the timer-driven tasks. Infra endpoints (Postgres, RPC)
// stay in env vars.
type Config struct {
	// Collateral is the common collateral asset backing every position.
	Collateral struct {
		Symbol     string `yaml:"symbol"`
		OracleFeed string `yaml:"oracle_feed"`
		Decimals   int32  `yaml:"decimals"`
	} `yaml:"collateral"`

	Assets []Asset `yaml:"assets"`

	Indexer struct {
		CatchupWindow   uint32        `yaml:"catchup_window"`
		RetentionMargin uint32        `yaml:"retention_margin"`
		StartLedger     uint32        `yaml:"start_ledger"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		RangeRetryDelay time.Duration `yaml:"range_retry_delay"`
	} `yaml:"indexer"`

	Monitor struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"monitor"`

	Reconciler struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"reconciler"`

	Risk struct {
		MetricsInterval  time.Duration `yaml:"metrics_interval"`
		ProfilesInterval time.Duration `yaml:"profiles_interval"`
		HistogramMinPct  int64         `yaml:"histogram_min_pct"`
		HistogramMaxPct  int64         `yaml:"histogram_max_pct"`
		HistogramWidth   int64         `yaml:"histogram_width_pct"`
	} `yaml:"risk"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Indexer.CatchupWindow == 0 {
		c.Indexer.CatchupWindow = 5000
	}
	if c.Indexer.RetentionMargin == 0 {
		c.Indexer.RetentionMargin = 10
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = 10 * time.Second
	}
	if c.Indexer.RangeRetryDelay == 0 {
		c.Indexer.RangeRetryDelay = 15 * time.Second
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = 30 * time.Second
	}
	if c.Reconciler.PollInterval == 0 {
		c.Reconciler.PollInterval = time.Minute
	}
	if c.Risk.MetricsInterval == 0 {
		c.Risk.MetricsInterval = 5 * time.Minute
	}
	if c.Risk.ProfilesInterval == 0 {
		c.Risk.ProfilesInterval = 24 * time.Hour
	}
	if c.Risk.HistogramMinPct == 0 {
		c.Risk.HistogramMinPct = 0
	}
	if c.Risk.HistogramMaxPct == 0 {
		c.Risk.HistogramMaxPct = 100
	}
	if c.Risk.HistogramWidth == 0 {
		c.Risk.HistogramWidth = 10
	}
	for i := range c.Assets {
		if c.Assets[i].SafeRatioMargin == 0 {
			c.Assets[i].SafeRatioMargin = 5000
		}
	}
}

func (c *Config) validate() error {
	if c.Collateral.Symbol == "" {
		return fmt.Errorf("config: collateral.symbol is required")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset is required")
	}
	seen := map[string]bool{}
	for _, a := range c.Assets {
		switch {
		case a.Symbol == "":
			return fmt.Errorf("config: asset with empty symbol")
		case a.PoolContract == "":
			return fmt.Errorf("config: asset %s: pool_contract is required", a.Symbol)
		case a.OracleFeed == "":
			return fmt.Errorf("config: asset %s: oracle_feed is required", a.Symbol)
		case a.MinRatioBps <= 0:
			return fmt.Errorf("config: asset %s: min_ratio_bps must be positive", a.Symbol)
		case seen[a.Symbol]:
			return fmt.Errorf("config: duplicate asset %s", a.Symbol)
		}
		seen[a.Symbol] = true
	}
	if c.Risk.HistogramMaxPct <= c.Risk.HistogramMinPct {
		return fmt.Errorf("config: risk.histogram_max_pct must exceed histogram_min_pct")
	}
	if c.Risk.HistogramWidth <= 0 {
		return fmt.Errorf("config: risk.histogram_width_pct must be positive")
	}
	return nil
}
