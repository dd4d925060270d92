package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rangePilot/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	RPCRateLimit float64

	OwnerAddress   string
	PoolAddress    string
	FeedAddress    string
	ManagerAddress string
	Token0Address  string
	Token1Address  string
	FeeTier        uint32
	Decimals0      int
	Decimals1      int

	PrivateKey string

	Interval time.Duration
	CronSpec string

	MaxPriceAge    time.Duration
	SampleWindow   int
	TickSpacing    int
	ConfirmTimeout time.Duration
	StepGasLimit   uint64
	MaxRetries     int
	RetryBackoff   time.Duration

	SnapshotPath string
	AuditPath    string
	PGDSN        string

	LogLevel string
	LogFile  string

	Automation model.AutomationConfig
}

// Load merges config file, environment variables, and flags into Config. The
// private key is read from the environment only, never from flags or file.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := model.DefaultAutomationConfig()
	v.SetDefault("rpc-rate-limit", 10.0)
	v.SetDefault("interval", time.Minute)
	v.SetDefault("max-price-age", time.Hour)
	v.SetDefault("sample-window", 24)
	v.SetDefault("tick-spacing", 60)
	v.SetDefault("fee-tier", 3000)
	v.SetDefault("decimals0", 18)
	v.SetDefault("decimals1", 18)
	v.SetDefault("confirm-timeout", 3*time.Minute)
	v.SetDefault("step-gas-limit", uint64(500000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("snapshot", "./data/position.json")
	v.SetDefault("audit", "./data/audit.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("rebalance-trigger", defaults.RebalanceTriggerPercent)
	v.SetDefault("compound-threshold", defaults.CompoundThresholdAmount)
	v.SetDefault("max-gas-budget", defaults.MaxGasBudget)
	v.SetDefault("slippage-tolerance", defaults.SlippageTolerancePercent)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		RPCRateLimit:   v.GetFloat64("rpc-rate-limit"),
		OwnerAddress:   v.GetString("owner"),
		PoolAddress:    v.GetString("pool"),
		FeedAddress:    v.GetString("feed"),
		ManagerAddress: v.GetString("manager"),
		Token0Address:  v.GetString("token0"),
		Token1Address:  v.GetString("token1"),
		FeeTier:        v.GetUint32("fee-tier"),
		Decimals0:      v.GetInt("decimals0"),
		Decimals1:      v.GetInt("decimals1"),
		PrivateKey:     v.GetString("private-key"),
		Interval:       v.GetDuration("interval"),
		CronSpec:       v.GetString("cron"),
		MaxPriceAge:    v.GetDuration("max-price-age"),
		SampleWindow:   v.GetInt("sample-window"),
		TickSpacing:    v.GetInt("tick-spacing"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		StepGasLimit:   v.GetUint64("step-gas-limit"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		SnapshotPath:   v.GetString("snapshot"),
		AuditPath:      v.GetString("audit"),
		PGDSN:          v.GetString("pg-dsn"),
		LogLevel:       v.GetString("log-level"),
		LogFile:        v.GetString("log-file"),
		Automation: model.AutomationConfig{
			RebalanceTriggerPercent:  v.GetFloat64("rebalance-trigger"),
			CompoundThresholdAmount:  v.GetFloat64("compound-threshold"),
			MaxGasBudget:             v.GetUint64("max-gas-budget"),
			SlippageTolerancePercent: v.GetFloat64("slippage-tolerance"),
		},
	}

	// A cron spec set anywhere overrides the interval default so the two
	// cadences stay mutually exclusive.
	if cfg.CronSpec != "" && !v.IsSet("interval") {
		cfg.Interval = 0
	}

	return cfg, nil
}

// Validate checks automation tuning bounds and cross-field consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c.Automation); err != nil {
		return fmt.Errorf("%w: automation config: %v", model.ErrInvalidInput, err)
	}
	if (c.Interval > 0) == (c.CronSpec != "") {
		return fmt.Errorf("%w: exactly one of interval and cron must be set", model.ErrInvalidInput)
	}
	if c.SampleWindow < 2 {
		return fmt.Errorf("%w: sample window must hold at least 2 samples", model.ErrInvalidInput)
	}
	if c.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing must be positive", model.ErrInvalidInput)
	}
	return nil
}
