package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"fraudscore/internal/api"
	"fraudscore/internal/config"
	"fraudscore/internal/scoring"
	"fraudscore/pkg/metrics"
	"fraudscore/pkg/validator"
)

var (
	httpAddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "API listen address (default from HTTP_ADDR)",
	}

	serveCmd = &cli.Command{
		Name:   "serve",
		Usage:  "Start the scoring HTTP server",
		Flags:  []cli.Flag{httpAddrFlag},
		Action: cmdServe,
	}
)

func cmdServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet(httpAddrFlag.Name) {
		cfg.HTTPAddr = cmd.String(httpAddrFlag.Name)
	}

	logger := setupLogger(cfg, os.Stdout)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("version", version))

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	metricsCollector.SetModelLoaded(engine.State() == scoring.StateLoaded)

	apiHandler := api.NewAPIHandler(engine, validator.NewFeatureValidator(), metricsCollector, logger)

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsServer = metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := newHTTPServer(cfg, apiHandler.Handler())
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			shutdown(logger, cfg, httpServer, metricsServer, metricsCollector)
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdown(logger, cfg, httpServer, metricsServer, metricsCollector)
	logger.Info("Application shutdown complete")
	return nil
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func shutdown(
	logger *slog.Logger,
	cfg *config.Config,
	httpServer *http.Server,
	metricsServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx, metricsServer); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
