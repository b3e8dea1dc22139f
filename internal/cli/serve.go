package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/internal/server"
	"github.com/starlink-awaken/omo-quota/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve quota status over HTTP",
	Long: `Start a read-only JSON API for dashboards:
  GET /healthz
  GET /api/v1/providers
  GET /api/v1/strategy
  GET /api/v1/history?period=daily|weekly|monthly
  GET /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("watch", false, "Also run the quota monitor in the background")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}
	watch, _ := cmd.Flags().GetBool("watch")

	logger := newLogger(cfg)

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}
	db := initStorage(cfg, logger)
	defer closeStorage(db)

	var history storage.Storage
	if db != nil {
		history = db
	}
	apiServer := server.NewServer(initTracker(cfg, logger), catalog, history, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var background func(context.Context) error
	if watch {
		m, err := newMonitor(cfg, logger, db, true)
		if err != nil {
			return err
		}
		background = m.Run
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "omo-quota status API listening on %s\n", cfg.Server.Listen)
	return serveUntil(ctx, srv, background, logger)
}

// serveUntil runs srv, and background when set, until ctx is done or either
// fails. It returns only after background has returned, so a tracker save in
// progress completes before the process exits.
func serveUntil(ctx context.Context, srv *http.Server, background func(context.Context) error, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("status server started", "listen", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	backgroundDone := make(chan struct{})
	if background != nil {
		go func() {
			defer close(backgroundDone)
			if err := background(ctx); err != nil {
				errCh <- fmt.Errorf("monitor: %w", err)
			}
		}()
	} else {
		close(backgroundDone)
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	cancel()
	<-backgroundDone

	if runErr == nil && shutdownErr != nil {
		runErr = fmt.Errorf("shutdown error: %w", shutdownErr)
	}
	logger.Info("status server stopped")
	return runErr
}
