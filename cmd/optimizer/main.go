package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"rangePilot/internal/chain"
	"rangePilot/internal/config"
	"rangePilot/internal/dex"
	"rangePilot/internal/ledger"
	"rangePilot/internal/oracle"
	"rangePilot/internal/rangecalc"
	"rangePilot/internal/scheduler"
	"rangePilot/internal/storage"
	"rangePilot/internal/storage/postgres"
	"rangePilot/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "optimizer",
		Short:        "Concentrated liquidity range optimizer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the automation scheduler",
		RunE:  runScheduler,
	}
	addEngineFlags(runCmd)
	runCmd.Flags().Duration("interval", time.Minute, "evaluation interval")
	runCmd.Flags().String("cron", "", "cron spec, overrides interval")

	root.AddCommand(runCmd)
	root.AddCommand(newOpenCmd())
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newStatusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addEngineFlags registers the flags shared by every command that drives
// on-chain workflows.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().Float64("rpc-rate-limit", 10, "max RPC calls per second, 0 disables")
	cmd.Flags().String("owner", "", "position owner address")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("feed", "", "price feed aggregator address")
	cmd.Flags().String("manager", "", "position manager address")
	cmd.Flags().String("token0", "", "token0 address")
	cmd.Flags().String("token1", "", "token1 address")
	cmd.Flags().Uint32("fee-tier", 3000, "pool fee tier")
	cmd.Flags().Int("decimals0", 18, "token0 decimals")
	cmd.Flags().Int("decimals1", 18, "token1 decimals")
	cmd.Flags().Duration("max-price-age", time.Hour, "reject oracle samples older than this")
	cmd.Flags().Int("sample-window", 24, "price samples retained for volatility")
	cmd.Flags().Int("tick-spacing", 60, "pool tick spacing")
	cmd.Flags().Duration("confirm-timeout", 3*time.Minute, "per-transaction confirmation timeout")
	cmd.Flags().Uint64("step-gas-limit", 500000, "gas limit per workflow step")
	cmd.Flags().Int("max-retries", 5, "maximum withdraw retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Float64("rebalance-trigger", 5, "boundary distance percent that triggers a rebalance")
	cmd.Flags().Float64("compound-threshold", 10, "fee value that triggers compounding")
	cmd.Flags().Uint64("max-gas-budget", 1000000, "gas budget for a whole workflow")
	cmd.Flags().Float64("slippage-tolerance", 0.5, "max mint deviation percent")
	cmd.Flags().String("snapshot", "./data/position.json", "position snapshot path")
	cmd.Flags().String("audit", "./data/audit.jsonl", "audit log path")
	cmd.Flags().String("workflow-file", "./data/workflow.json", "workflow status path (file mode)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, enables DB persistence")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "rotate logs to this file instead of stderr")
}

// services holds the wired engine shared by the run and open commands.
type services struct {
	cfg         config.Config
	logger      *zap.Logger
	client      *chain.Client
	prices      *oracle.Adapter
	ledger      *ledger.Ledger
	executor    *dex.Executor
	coordinator *workflow.Coordinator
	close       func()
}

func buildServices(ctx context.Context, cmd *cobra.Command) (*services, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	for name, value := range map[string]string{
		"owner":   cfg.OwnerAddress,
		"pool":    cfg.PoolAddress,
		"feed":    cfg.FeedAddress,
		"manager": cfg.ManagerAddress,
		"token0":  cfg.Token0Address,
		"token1":  cfg.Token1Address,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s address is required", name)
		}
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("OPTIMIZER_PRIVATE_KEY is required to submit transactions")
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RPCRateLimit)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	if err := chainClient.WithSigner(cfg.PrivateKey); err != nil {
		chainClient.Close()
		return nil, err
	}

	prices := oracle.NewAdapter(chainClient, common.HexToAddress(cfg.FeedAddress), cfg.MaxPriceAge, cfg.SampleWindow, logger)

	var (
		posStore storage.PositionStore
		audit    storage.AuditSink
		wfStore  storage.WorkflowStore
		closePG  func()
	)
	if cfg.PGDSN != "" {
		pg, pgErr := postgres.NewStore(ctx, cfg.PGDSN)
		if pgErr != nil {
			chainClient.Close()
			return nil, fmt.Errorf("connect postgres: %w", pgErr)
		}
		posStore, audit, wfStore = pg, pg, pg
		closePG = pg.Close
	} else {
		posStore = storage.NewFileStore(cfg.SnapshotPath)
		audit = storage.NewJsonlAuditSink(cfg.AuditPath)
		workflowPath, _ := cmd.Flags().GetString("workflow-file")
		wfStore = storage.NewWorkflowFile(workflowPath)
	}

	led := ledger.New(cfg.OwnerAddress, cfg.PoolAddress, posStore, audit, logger)
	if err := led.Restore(ctx); err != nil {
		if closePG != nil {
			closePG()
		}
		chainClient.Close()
		return nil, err
	}

	executor := dex.NewExecutor(chainClient, dex.Config{
		Manager:        common.HexToAddress(cfg.ManagerAddress),
		Token0:         common.HexToAddress(cfg.Token0Address),
		Token1:         common.HexToAddress(cfg.Token1Address),
		FeeTier:        cfg.FeeTier,
		Decimals0:      uint8(cfg.Decimals0),
		Decimals1:      uint8(cfg.Decimals1),
		ConfirmTimeout: cfg.ConfirmTimeout,
		StepGasLimit:   cfg.StepGasLimit,
	}, logger)

	policy := rangecalc.DefaultPolicy()
	policy.TickSpacing = cfg.TickSpacing

	coordinator := workflow.NewCoordinator(workflow.Config{
		Automation:   cfg.Automation,
		Policy:       policy,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, led, executor, prices, wfStore, logger)

	return &services{
		cfg:         cfg,
		logger:      logger,
		client:      chainClient,
		prices:      prices,
		ledger:      led,
		executor:    executor,
		coordinator: coordinator,
		close: func() {
			if closePG != nil {
				closePG()
			}
			chainClient.Close()
			logger.Sync()
		},
	}, nil
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.cfg.Validate(); err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:   svc.cfg.Interval,
		CronSpec:   svc.cfg.CronSpec,
		Automation: svc.cfg.Automation,
	}, svc.prices, svc.executor, svc.ledger, svc.coordinator, svc.logger)
	if err != nil {
		return err
	}

	svc.logger.Info("optimizer start",
		zap.String("rpc", svc.cfg.RPCURL),
		zap.String("owner", svc.cfg.OwnerAddress),
		zap.String("pool", svc.cfg.PoolAddress),
		zap.Duration("interval", svc.cfg.Interval),
		zap.String("cron", svc.cfg.CronSpec),
		zap.Bool("postgres", svc.cfg.PGDSN != ""),
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(level, logFile string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	if logFile == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, lvl)
	return zap.New(core), nil
}
