package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankicapture/backend/internal/config"
	"github.com/ankicapture/backend/internal/db"
	"github.com/ankicapture/backend/internal/jobs"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reap timed-out jobs once and exit",
	Long:  "Run a single sweeper pass: every phrase stuck in processing longer than JOB_TIMEOUT is marked failed and its job slot cleared. Intended for cron-style scheduling next to a running server.",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	count, err := jobs.NewSweeper(database, cfg.JobTimeout, cfg.SweepInterval).Sweep(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("reaped %d timed-out job(s)\n", count)
	return nil
}
