package app

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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekuality/posti-delivery-dates/internal/api"
	"github.com/geekuality/posti-delivery-dates/internal/config"
	"github.com/geekuality/posti-delivery-dates/internal/logging"
	"github.com/geekuality/posti-delivery-dates/internal/notify"
	"github.com/geekuality/posti-delivery-dates/internal/poll/coordinator"
	"github.com/geekuality/posti-delivery-dates/internal/poll/state"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/service"
	"github.com/geekuality/posti-delivery-dates/internal/snapshot"
	"github.com/geekuality/posti-delivery-dates/internal/telemetry"
	"github.com/geekuality/posti-delivery-dates/internal/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the delivery date server",
	Long: `Start the server that polls the Posti delivery schedule for the
configured postal codes and serves the results over a REST API.

The server requires a configuration file (--config) that specifies:
- Preconfigured postal codes
- Source endpoint, polling intervals and state directory
- Notification and telemetry settings

See examples/ directory for a sample configuration.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // API reads from the in-memory cache and should respond quickly
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	serveCmd.Flags().String("log-format", "text", "Log format (text or json)")
	serveCmd.Flags().String("log-file", "", "Additionally write logs to this file")

	for _, flag := range []string{"address", "config", "log-format", "log-file"} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			slog.Error("Failed to bind flag", "flag", flag, "error", err)
			os.Exit(1)
		}
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	logOpts := []logging.Option{logging.WithFormat(viper.GetString("log-format"))}
	if viper.GetBool("debug") {
		logOpts = append(logOpts, logging.WithDebug())
	}
	if logFile := viper.GetString("log-file"); logFile != "" {
		logOpts = append(logOpts, logging.WithLogFile(logFile))
	}
	_, closeLog, err := logging.Setup(logOpts...)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() {
		_ = closeLog()
	}()

	slog.Info("Starting delivery date server", "address", address)

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"preconfigured_codes", len(cfg.Codes),
		"state_dir", cfg.GetStateDir(),
	)

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// The file store takes an exclusive lock on the state directory so two
	// processes never poll and persist the same codes.
	store, err := snapshot.NewFileStore(cfg.GetStateDir())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close state store", "error", err)
		}
	}()

	stateSvc := state.NewService(store)
	if err := initializeState(ctx, stateSvc, store, cfg); err != nil {
		return err
	}

	fetcher := posti.NewFetcher(
		posti.WithURLTemplate(cfg.GetSourceURL()),
		posti.WithTimeout(cfg.GetSourceTimeout()),
	)

	publisher, err := buildPublisher(cfg.GetNotifications())
	if err != nil {
		return err
	}
	recomputer := view.NewRecomputer(stateSvc, publisher)

	pollMetrics, err := telemetry.NewPollMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create poll metrics: %w", err)
	}
	codeMetrics, err := telemetry.NewCodeMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create code metrics: %w", err)
	}

	coord := coordinator.New(fetcher, stateSvc, cfg.GetIntervals(),
		coordinator.WithNotifier(recomputer),
		coordinator.WithPollMetrics(pollMetrics),
		coordinator.WithCodeMetrics(codeMetrics),
		coordinator.WithTracerProvider(tel.TracerProvider()),
	)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go func() {
		if err := coord.Start(runCtx); err != nil {
			slog.Error("Poll coordinator failed", "error", err)
		}
	}()
	go func() {
		if err := recomputer.Start(runCtx); err != nil {
			slog.Error("View recomputer failed", "error", err)
		}
	}()

	svc := service.New(fetcher, stateSvc, coord)

	router, err := buildRouter(svc, tel)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	if err := coord.Stop(); err != nil {
		slog.Error("Failed to stop poll coordinator", "error", err)
	}
	if err := recomputer.Stop(); err != nil {
		slog.Error("Failed to stop view recomputer", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down telemetry", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

// initializeState loads persisted codes from the store and registers any
// preconfigured codes that have no persisted state yet.
func initializeState(
	ctx context.Context,
	stateSvc state.Service,
	store snapshot.Store,
	cfg *config.Config,
) error {
	persisted, err := store.ListCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted codes: %w", err)
	}
	if err := stateSvc.Initialize(ctx, persisted); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	known := make(map[string]bool, len(persisted))
	for _, code := range persisted {
		known[code] = true
	}
	for _, code := range cfg.Codes {
		if known[code.PostalCode] {
			continue
		}
		if err := stateSvc.Register(ctx, code.PostalCode, nil); err != nil {
			return fmt.Errorf("failed to register preconfigured code '%s': %w", code.PostalCode, err)
		}
		slog.Info("Registered preconfigured postal code", "postal_code", code.PostalCode)
	}
	return nil
}

// buildPublisher creates the notification publisher from configuration.
func buildPublisher(cfg *notify.Config) (view.Publisher, error) {
	if cfg.MQTT == nil || !cfg.MQTT.Enabled {
		return notify.NewNoopPublisher(), nil
	}
	pub, err := notify.NewMQTTPublisher(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MQTT publisher: %w", err)
	}
	return pub, nil
}

// buildRouter assembles the HTTP router with the telemetry middlewares.
func buildRouter(svc service.DeliveryService, tel *telemetry.Telemetry) (http.Handler, error) {
	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	opts := []api.ServerOption{
		api.WithMiddlewares(
			middleware.Timeout(serverRequestTimeout),
			metricsMiddleware,
			telemetry.TracingMiddleware(tel.TracerProvider()),
		),
	}
	if h := tel.PrometheusHandler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}

	return api.NewServer(svc, opts...), nil
}
