package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/config"
	"github.com/ankicapture/backend/internal/db"
	"github.com/ankicapture/backend/internal/enrich"
	"github.com/ankicapture/backend/internal/jobs"
	"github.com/ankicapture/backend/internal/server"
	"github.com/ankicapture/backend/internal/sign"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and the timeout sweeper",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	blobs, err := blob.NewS3Store(ctx, cfg.BlobBucket)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	signer := sign.New(cfg.FileSigningKey)
	dispatcher := jobs.NewDispatcher(database, enrich.NewClient(cfg.EnrichTriggerURL), signer, cfg.PublicBaseURL, cfg.CallbackSecret)
	sweeper := jobs.NewSweeper(database, cfg.JobTimeout, cfg.SweepInterval)

	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		Store:          database,
		Blobs:          blobs,
		Signer:         signer,
		Dispatcher:     dispatcher,
		JWT:            jwtCfg,
		CallbackSecret: cfg.CallbackSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}
