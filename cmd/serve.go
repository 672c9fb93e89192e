package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mspro-labs/coffee-finder/internal/api"
	"mspro-labs/coffee-finder/internal/state"
	"mspro-labs/coffee-finder/internal/tasks"
	"mspro-labs/coffee-finder/internal/telemetry"
	"mspro-labs/coffee-finder/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long:  `Serves the landing and detail pages, the JSON API under /api, /healthz and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Setup
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewPrometheusCollector(registry)
	if err != nil {
		return fmt.Errorf("metrics setup: %w", err)
	}

	// 2. Domain services
	svc, err := a.shopService(ctx, metrics)
	if err != nil {
		return err
	}
	dir, err := a.directory(metrics)
	if err != nil {
		return err
	}
	queue := tasks.NewQueue(a.cfg.Tasks.Workers, a.cfg.Tasks.Buffer, a.cfg.Server.WriteTimeout.Duration, metrics, logger)
	defer queue.Close()

	pages, err := web.NewPages(dir, svc, queue, web.Options{
		Limit:            a.cfg.Search.Limit,
		FallbackImageURL: a.cfg.Search.FallbackImageURL,
		WaitForShops:     a.cfg.Detail.WaitForShops.Duration,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	prerenderCtx, cancel := context.WithTimeout(ctx, a.cfg.Search.HTTPTimeout.Duration)
	if err := pages.Prerender(prerenderCtx); err != nil {
		logger.Warn().Err(err).Msg("could not prerender featured stores; retrying on first visit")
	}
	cancel()

	sessions := state.NewRegistry(a.cfg.Sessions.IdleTTL.Duration, a.cfg.Sessions.Max)
	go sessions.Run(ctx, a.cfg.Sessions.SweepInterval.Duration, metrics.SetActiveSessions)

	// 3. Routes
	router := api.NewRouter(api.RouterOptions{
		Logger:   logger,
		Sessions: sessions,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Timeout:  a.cfg.Server.WriteTimeout.Duration,
	}, api.NewHandler(svc, dir, a.cfg.Search.Limit, logger), pages)

	// 4. Start Server
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout.Duration,
		ReadTimeout:       a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      a.cfg.Server.WriteTimeout.Duration,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("backend", a.cfg.Storage.Backend).Msg("web server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
