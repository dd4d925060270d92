package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"rangePilot/internal/chain"
	"rangePilot/internal/config"
	"rangePilot/internal/oracle"
	"rangePilot/internal/rangecalc"
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute the optimal range for the current price",
		RunE:  runOptimize,
	}

	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().Float64("rpc-rate-limit", 10, "max RPC calls per second, 0 disables")
	cmd.Flags().String("feed", "", "price feed aggregator address")
	cmd.Flags().Duration("max-price-age", time.Hour, "reject oracle samples older than this")
	cmd.Flags().Int("tick-spacing", 60, "pool tick spacing")
	cmd.Flags().Float64("volatility", 0.05, "volatility estimate used for band selection")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.FeedAddress == "" {
		return fmt.Errorf("feed address is required")
	}

	volatility, _ := cmd.Flags().GetFloat64("volatility")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RPCRateLimit)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	prices := oracle.NewAdapter(chainClient, common.HexToAddress(cfg.FeedAddress), cfg.MaxPriceAge, 2, nil)
	price, err := prices.LatestPrice(ctx)
	if err != nil {
		return err
	}

	policy := rangecalc.DefaultPolicy()
	policy.TickSpacing = cfg.TickSpacing

	r, err := rangecalc.ComputeOptimalRange(price.Value, volatility, policy)
	if err != nil {
		return err
	}
	multiplier := rangecalc.BandMultiplier(volatility, policy)

	fmt.Printf("price:        %.6f (observed %s)\n", price.Value, price.ObservedAt.Format(time.RFC3339))
	fmt.Printf("volatility:   %.4f\n", volatility)
	fmt.Printf("band:         +/- %.1f%%\n", multiplier*100)
	fmt.Printf("range:        [%.6f, %.6f]\n", r.Lower, r.Upper)
	fmt.Printf("ticks:        [%d, %d] (spacing %d)\n", r.TickLower, r.TickUpper, policy.TickSpacing)
	fmt.Printf("expected APR: %.2f%%\n", float64(rangecalc.ExpectedAPRBps(multiplier))/100)

	return nil
}
