package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rangePilot/internal/config"
	"rangePilot/internal/storage"
	"rangePilot/internal/storage/postgres"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the stored position and workflow state",
		RunE:  runStatus,
	}

	cmd.Flags().String("owner", "", "position owner address")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("snapshot", "./data/position.json", "position snapshot path")
	cmd.Flags().String("workflow-file", "./data/workflow.json", "workflow status path (file mode)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, read from DB instead of files")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	if cfg.OwnerAddress == "" || cfg.PoolAddress == "" {
		return fmt.Errorf("owner and pool addresses are required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		positions storage.PositionStore
		workflows storage.WorkflowStore
	)
	if cfg.PGDSN != "" {
		pg, pgErr := postgres.NewStore(ctx, cfg.PGDSN)
		if pgErr != nil {
			return fmt.Errorf("connect postgres: %w", pgErr)
		}
		defer pg.Close()
		positions, workflows = pg, pg
	} else {
		positions = storage.NewFileStore(cfg.SnapshotPath)
		workflowPath, _ := cmd.Flags().GetString("workflow-file")
		workflows = storage.NewWorkflowFile(workflowPath)
	}

	pos, ok, err := positions.LoadPosition(ctx, cfg.OwnerAddress, cfg.PoolAddress)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("no position stored for %s on %s\n", cfg.OwnerAddress, cfg.PoolAddress)
		return nil
	}

	fmt.Printf("position:  %s (%s)\n", pos.ID, pos.Status)
	fmt.Printf("range:     [%.6f, %.6f]\n", pos.RangeLower, pos.RangeUpper)
	fmt.Printf("liquidity: %s\n", pos.LiquidityAmount)
	fmt.Printf("fees:      %.6f / %.6f\n", pos.AccruedFees0, pos.AccruedFees1)
	fmt.Printf("updated:   %s\n", pos.UpdatedAt.Format(time.RFC3339))

	status, ok, err := workflows.LoadWorkflowStatus(ctx, cfg.OwnerAddress, cfg.PoolAddress)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("workflow:  no runs recorded")
		return nil
	}

	fmt.Printf("workflow:  %s (run %s)\n", status.State, status.RunID)
	if status.RequiresRecovery {
		fmt.Printf("RECOVERY REQUIRED: %s\n", status.Detail)
	} else if status.Detail != "" {
		fmt.Printf("detail:    %s\n", status.Detail)
	}

	return nil
}
