package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/api"
	"github.com/teodevgroup/teo-sub005/internal/seed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the write API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := setup(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		app := api.NewApp(api.NewHandler(rt.engine), rt.log)
		addr := fmt.Sprintf(":%d", rt.cfg.Server.Port)

		errc := make(chan error, 1)
		go func() {
			rt.log.Info("starting server", zap.String("addr", addr))
			errc <- app.Listen(addr)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		rt.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables, collections and indexes, then exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		rt.log.Info("migration complete", zap.String("driver", rt.conn.Name()))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load fixture records in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(args[0])
		if err != nil {
			return err
		}
		rt, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		runner := seed.NewRunner(rt.engine, rt.graph, rt.cfg.Engine.SeedConcurrency, rt.log)
		result, err := runner.Run(cmd.Context(), f)
		for model, n := range result {
			rt.log.Info("seeded", zap.String("model", model), zap.Int("records", n))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	},
}
