package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/panoview/internal/config"
	"github.com/cwbudde/panoview/internal/server"
)

var (
	serveConfig string
	serveAddr   string
	serveRoot   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP panorama viewer",
	Long: `Serves the panoramas found under the configured root directory:
an HTML viewer on /, thumbnails, per-client viewing sessions rendering
frames on demand, and saved viewpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "YAML config file (default: built-in defaults)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "Panorama directory (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfig != "" {
		loaded, err := config.Load(serveConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveRoot != "" {
		cfg.Server.PanoramaRoot = serveRoot
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
