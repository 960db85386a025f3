package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/wa-relay/internal/api/router"
	appconfig "github.com/wolfman30/wa-relay/internal/config"
	"github.com/wolfman30/wa-relay/internal/eventlog"
	"github.com/wolfman30/wa-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-relay/internal/http/middleware"
	"github.com/wolfman30/wa-relay/internal/media"
	observemetrics "github.com/wolfman30/wa-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-relay/internal/realtime"
	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/internal/webui"
	"github.com/wolfman30/wa-relay/internal/whatsapp"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wa-relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_store", cfg.SessionStoreDialect,
	)

	events := eventlog.New(cfg.EventLogPath, logging.NewWithWriter(cfg.LogLevel, os.Stderr))
	metricsHandler, gatewayMetrics := setupMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver := whatsapp.NewDriver(whatsapp.Config{
		Dialect: cfg.SessionStoreDialect,
		DSN:     cfg.SessionStoreDSN,
	}, logger)
	adapter := session.NewAdapter(driver, session.NewBus(0, logger), session.Options{
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
		BaseDelay:            cfg.ReconnectBaseDelay,
		MaxDelay:             cfg.ReconnectMaxDelay,
		Observer:             gatewayMetrics,
	}, logger)

	// Subscribe before Initialize so the first QR code is not missed.
	hub := realtime.NewHub(logger, gatewayMetrics)
	pushEvents, cancelPush := adapter.Subscribe()
	defer cancelPush()
	go hub.Relay(ctx, pushEvents)

	if cfg.QRTerminal {
		qrEvents, cancelQR := adapter.Subscribe()
		defer cancelQR()
		go realtime.TerminalQR(ctx, qrEvents, os.Stdout, logger)
	}

	if err := adapter.Initialize(ctx); err != nil {
		logger.Error("failed to initialize whatsapp session", "error", err)
		os.Exit(1)
	}

	fetcher := media.NewFetcher(
		media.WithTimeout(cfg.MediaFetchTimeout),
		media.WithMaxBytes(cfg.MediaMaxBytes),
		media.WithLogger(logger),
	)
	gateway := handlers.NewGatewayHandler(handlers.GatewayConfig{
		Session:                   adapter,
		Media:                     fetcher,
		EventLog:                  events,
		Logger:                    logger,
		Metrics:                   gatewayMetrics,
		RequireRegisteredForMedia: cfg.MediaRequireRegistered,
	})

	limiter := setupRateLimiter(cfg)
	if limiter != nil {
		defer limiter.Close()
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Gateway:        gateway,
		UI:             webui.Handler(),
		PushChannel:    http.HandlerFunc(hub.ServeWS),
		MetricsHandler: metricsHandler,
		CORS: httpmiddleware.CORSOptions{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedHeaders: cfg.CORSAllowedHeaders,
			AllowedMethods: cfg.CORSAllowedMethods,
		},
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Media sends include a remote download.
		WriteTimeout: cfg.MediaFetchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		message := startupMessage(cfg.Port)
		logger.Info(message)
		events.Info(message, nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	hub.Close()
	adapter.Close()
	if err := driver.Close(); err != nil {
		logger.Warn("failed to close device store", "error", err)
	}

	logger.Info("server stopped")
}

// setupMetrics registers the gateway collectors on a private registry.
func setupMetrics() (http.Handler, *observemetrics.GatewayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), observemetrics.NewGatewayMetrics(reg)
}

func setupRateLimiter(cfg *appconfig.Config) *httpmiddleware.RateLimiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
}

func startupMessage(port string) string {
	return fmt.Sprintf("Server running at http://localhost:%s", port)
}
