package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/transitclock/refresher/internal/adapters/httpapi"
	"github.com/transitclock/refresher/internal/adapters/memory/viewstore"
	"github.com/transitclock/refresher/internal/adapters/timer"
	"github.com/transitclock/refresher/internal/app/refresh"
	platformclock "github.com/transitclock/refresher/internal/platform/clock"
	"github.com/transitclock/refresher/internal/platform/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API, dispatcher and wake-up scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logger.Info().Str("env", cfg.Environment).Msg("transitclock starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("close storage")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clk := platformclock.NewSystemClock()
	wake := timer.NewScheduler(clk, logger)
	defer wake.Close()

	svc := newService(st, wake, clk, m)
	views := viewstore.NewStore(clk)
	d := refresh.NewDispatcher(svc, views, logger)
	d.Workers = cfg.Refresh.Workers
	d.SweepInterval = cfg.Refresh.SweepInterval

	api := httpapi.NewServer(svc, d, views, logger)
	api.Wakeups = wake
	opts := httpapi.RouterOptions{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	if cfg.HTTP.Username != "" {
		opts.AuthMiddleware = httpapi.NewBasicAuthMiddleware(cfg.HTTP.Username, cfg.HTTP.Password)
	} else {
		logger.Warn().Msg("control API has no authentication; set CONTROL_USERNAME")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(api, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- d.Run(ctx, wake.C()) }()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server error")
		stop()
	}

	logger.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := <-dispatcherDone; err != nil {
		logger.Error().Err(err).Msg("dispatcher stopped")
	}

	logger.Info().Msg("transitclock stopped")
	return nil
}
