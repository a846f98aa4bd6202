package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config enumerates every tunable of the execution core. Loaded once at
// startup and validated before any component is constructed.
type Config struct {
	Broker struct {
		APIKey    string   `yaml:"api_key"`
		APISecret string   `yaml:"api_secret"`
		BaseURL   string   `yaml:"base_url"`
		DataURL   string   `yaml:"data_url"`
		StreamURL string   `yaml:"stream_url"`
		Watchlist []string `yaml:"watchlist"`
	} `yaml:"broker"`

	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	} `yaml:"breaker"`

	Cache struct {
		MaxSize    int           `yaml:"max_size"`
		DefaultTTL time.Duration `yaml:"default_ttl"`
		SweepEvery time.Duration `yaml:"sweep_every"`
	} `yaml:"cache"`

	Storage struct {
		Path           string        `yaml:"path"`
		MaxConnections int           `yaml:"max_connections"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"storage"`

	Risk struct {
		MaxPositions       int     `yaml:"max_positions"`
		MaxPositionSizePct float64 `yaml:"max_position_size_pct"`
		MaxPortfolioRisk   float64 `yaml:"max_portfolio_risk_pct"`
		StopLossPct        float64 `yaml:"stop_loss_pct"`
		RewardRatio        float64 `yaml:"reward_ratio"`
	} `yaml:"risk"`

	Signals struct {
		MinStrength         float64       `yaml:"min_strength"`
		MinSignalGap        time.Duration `yaml:"min_signal_gap"`
		RequireConfirmation bool          `yaml:"require_confirmation"`
	} `yaml:"signals"`

	Gateway struct {
		QuoteTTL      time.Duration `yaml:"quote_ttl"`
		BarTTL        time.Duration `yaml:"bar_ttl"`
		StalePriceMax time.Duration `yaml:"stale_price_max"`
	} `yaml:"gateway"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.RecoveryTimeout == 0 {
		c.Breaker.RecoveryTimeout = 60 * time.Second
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 5 * time.Minute
	}
	if c.Cache.SweepEvery == 0 {
		c.Cache.SweepEvery = time.Minute
	}
	if c.Storage.MaxConnections == 0 {
		c.Storage.MaxConnections = 5
	}
	if c.Storage.AcquireTimeout == 0 {
		c.Storage.AcquireTimeout = 5 * time.Second
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "tradecore.db"
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 10
	}
	if c.Risk.MaxPositionSizePct == 0 {
		c.Risk.MaxPositionSizePct = 0.10
	}
	if c.Risk.MaxPortfolioRisk == 0 {
		c.Risk.MaxPortfolioRisk = 0.05
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.02
	}
	if c.Risk.RewardRatio == 0 {
		c.Risk.RewardRatio = 2.0
	}
	if c.Signals.MinStrength == 0 {
		c.Signals.MinStrength = 30
	}
	if c.Signals.MinSignalGap == 0 {
		c.Signals.MinSignalGap = 5 * time.Minute
	}
	if c.Gateway.QuoteTTL == 0 {
		c.Gateway.QuoteTTL = 5 * time.Second
	}
	if c.Gateway.BarTTL == 0 {
		c.Gateway.BarTTL = time.Minute
	}
	if c.Gateway.StalePriceMax == 0 {
		c.Gateway.StalePriceMax = 15 * time.Minute
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations that would make risk limits meaningless.
func (c *Config) Validate() error {
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("breaker.recovery_timeout must be positive")
	}
	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("cache.max_size must be >= 1, got %d", c.Cache.MaxSize)
	}
	if c.Storage.MaxConnections < 1 {
		return fmt.Errorf("storage.max_connections must be >= 1, got %d", c.Storage.MaxConnections)
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 1 {
		return fmt.Errorf("risk.max_position_size_pct must be in (0,1], got %f", c.Risk.MaxPositionSizePct)
	}
	if c.Risk.MaxPortfolioRisk <= 0 || c.Risk.MaxPortfolioRisk > 1 {
		return fmt.Errorf("risk.max_portfolio_risk_pct must be in (0,1], got %f", c.Risk.MaxPortfolioRisk)
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0,1), got %f", c.Risk.StopLossPct)
	}
	if c.Risk.RewardRatio <= 0 {
		return fmt.Errorf("risk.reward_ratio must be positive, got %f", c.Risk.RewardRatio)
	}
	if c.Signals.MinStrength < 0 || c.Signals.MinStrength > 100 {
		return fmt.Errorf("signals.min_strength must be in [0,100], got %f", c.Signals.MinStrength)
	}
	return nil
}
