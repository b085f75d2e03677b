package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type VenueCfg struct {
	Name    string `yaml:"name"`
	Factory string `yaml:"factory"`
	Quoter  string `yaml:"quoter"`
	Router  string `yaml:"router"`
}

type PairCfg struct {
	Base  string `yaml:"base"`  // token0 address
	Quote string `yaml:"quote"` // token1 address
}

type Config struct {
	Deployed bool `yaml:"deployed"` // false = dry-run, no on-chain call

	Chain struct {
		RPCHTTP  string `yaml:"rpc_http"`
		RPCWS    string `yaml:"rpc_ws"`
		WalletPK string `yaml:"-"` // env only, never from file
		GasLimit uint64 `yaml:"gas_limit"`
	} `yaml:"chain"`

	Arbitrage struct {
		Contract string `yaml:"contract"` // settlement contract address
	} `yaml:"arbitrage"`

	Venues []VenueCfg `yaml:"venues"`
	Pairs  []PairCfg  `yaml:"pairs"`

	FeeTier   uint32 `yaml:"fee_tier"`
	Multicall string `yaml:"multicall"` // optional batch-call contract

	Pricing struct {
		Units           int32   `yaml:"units"`             // decimal places for price samples
		GapThresholdPct float64 `yaml:"gap_threshold_pct"` // minimum divergence to act on
		SmallGapPct     float64 `yaml:"small_gap_pct"`     // below this the profit floor triples
	} `yaml:"pricing"`

	Optimizer struct {
		Fractions       []float64 `yaml:"fractions"`
		MaxFailedTrades int       `yaml:"max_failed_trades"`
		VolatilityBound float64   `yaml:"volatility_bound"`
	} `yaml:"optimizer"`

	Timeouts struct {
		RPCMs   int `yaml:"rpc_ms"`
		CycleMs int `yaml:"cycle_ms"`
	} `yaml:"timeouts"`

	Stream struct {
		ReconnectBaseMs int `yaml:"reconnect_base_ms"`
		ReconnectMaxMs  int `yaml:"reconnect_max_ms"`
	} `yaml:"stream"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`
}

func Load(path string) (*Config, error) {
	// Secrets come from the environment; a .env next to the binary is
	// honored the way the original deployment expects.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Wallet tooling exports keys both with and without the 0x prefix;
	// accept either.
	c.Chain.WalletPK = strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x")
	if v := os.Getenv("RPC_WS"); v != "" {
		c.Chain.RPCWS = v
	}
	if v := os.Getenv("RPC_HTTP"); v != "" {
		c.Chain.RPCHTTP = v
	}

	applyDefaults(&c)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 400000
	}
	if c.FeeTier == 0 {
		c.FeeTier = 500
	}
	if c.Pricing.Units == 0 {
		c.Pricing.Units = 8
	}
	if c.Pricing.GapThresholdPct == 0 {
		c.Pricing.GapThresholdPct = 0.5
	}
	if c.Pricing.SmallGapPct == 0 {
		c.Pricing.SmallGapPct = 1.0
	}
	if len(c.Optimizer.Fractions) == 0 {
		c.Optimizer.Fractions = []float64{
			0.0001, 0.0003, 0.001, 0.003, 0.01,
			0.02, 0.03, 0.05, 0.075, 0.1,
		}
	}
	if c.Optimizer.MaxFailedTrades == 0 {
		c.Optimizer.MaxFailedTrades = 3
	}
	if c.Optimizer.VolatilityBound == 0 {
		c.Optimizer.VolatilityBound = 2.5
	}
	if c.Timeouts.RPCMs == 0 {
		c.Timeouts.RPCMs = 10000
	}
	if c.Timeouts.CycleMs == 0 {
		c.Timeouts.CycleMs = 45000
	}
	if c.Stream.ReconnectBaseMs == 0 {
		c.Stream.ReconnectBaseMs = 2000
	}
	if c.Stream.ReconnectMaxMs == 0 {
		c.Stream.ReconnectMaxMs = 60000
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "arb:events"
	}
}

func (c *Config) validate() error {
	if c.Chain.RPCWS == "" {
		return fmt.Errorf("chain.rpc_ws is required")
	}
	if c.Chain.RPCHTTP == "" {
		return fmt.Errorf("chain.rpc_http is required")
	}
	if len(c.Venues) < 2 {
		return fmt.Errorf("at least two venues required, got %d", len(c.Venues))
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("no trading pairs configured")
	}
	if c.Deployed {
		if c.Chain.WalletPK == "" {
			return fmt.Errorf("PRIVATE_KEY is not set but deployed=true")
		}
		if c.Arbitrage.Contract == "" {
			return fmt.Errorf("arbitrage.contract is required when deployed=true")
		}
	}
	return nil
}

func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Timeouts.RPCMs) * time.Millisecond
}

func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.Timeouts.CycleMs) * time.Millisecond
}

func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.Stream.ReconnectBaseMs) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Stream.ReconnectMaxMs) * time.Millisecond
}
