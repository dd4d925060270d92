package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Mint the initial position around the current price",
		RunE:  runOpen,
	}

	addEngineFlags(cmd)
	cmd.Flags().Float64("amount0", 0, "token0 amount to deposit")
	cmd.Flags().Float64("amount1", 0, "token1 amount to deposit")

	return cmd
}

func runOpen(cmd *cobra.Command, _ []string) error {
	amount0, _ := cmd.Flags().GetFloat64("amount0")
	amount1, _ := cmd.Flags().GetFloat64("amount1")
	if amount0 <= 0 && amount1 <= 0 {
		return fmt.Errorf("at least one of amount0 and amount1 must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.coordinator.ExecuteOpen(ctx, amount0, amount1); err != nil {
		return err
	}

	pos := svc.ledger.Position()
	svc.logger.Info("position opened",
		zap.String("token_id", pos.ID),
		zap.Float64("lower", pos.RangeLower),
		zap.Float64("upper", pos.RangeUpper),
		zap.String("liquidity", pos.LiquidityAmount),
	)
	fmt.Printf("opened position %s: range [%.6f, %.6f], liquidity %s\n",
		pos.ID, pos.RangeLower, pos.RangeUpper, pos.LiquidityAmount)
	return nil
}
