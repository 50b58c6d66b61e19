package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"docwebapi/api"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
		if cfg.SlogLevel() > slog.LevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}

		taskManager, err := newManager(cfg)
		if err != nil {
			return err
		}

		router := api.SetupRouter(taskManager, cfg)
		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: router,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		taskManager.Start(ctx)

		errCh := make(chan error, 1)
		go func() {
			slog.Info("server starting", "port", cfg.Port, "output_dir", cfg.OutputDir)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("listen: %w", err)
		case <-ctx.Done():
		}

		// Restore default behavior so a second Ctrl+C kills the process.
		stop()
		slog.Info("shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		slog.Info("server exiting")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}
