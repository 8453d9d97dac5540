package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/api"
	"github.com/t77yq/careops-alerts/internal/config"
	"github.com/t77yq/careops-alerts/internal/handler"
	"github.com/t77yq/careops-alerts/internal/metric"
	"github.com/t77yq/careops-alerts/internal/monitor"
	"github.com/t77yq/careops-alerts/internal/service"
	"github.com/t77yq/careops-alerts/internal/storage"
)

// demoValues seed the in-memory provider when no statistics service is
// configured
var demoValues = map[string]any{
	"bed_occupancy_rate":            72.5,
	"icu_available_beds":            4,
	"billing_overdue_amount":        48000.0,
	"billing_overdue_invoices":      21,
	"appointment_cancellation_rate": 8.0,
	"emergency_wait_time":           35,
	"emergency_diversion_active":    false,
	"patients_admitted_today":       57,
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func connectNATS(cfg config.NATSConfig, name string, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, err
}

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metric sources
	var source metric.Source
	if cfg.Provider.BaseURL != "" {
		source = metric.NewHTTPProvider(logger, cfg.Provider.BaseURL, cfg.Provider.Token, cfg.Provider.Timeout)
		logger.Info("Using hospital statistics service", zap.String("url", cfg.Provider.BaseURL))
	} else {
		source = metric.NewStaticProvider(demoValues)
		logger.Warn("No statistics service configured, using in-memory demo values")
	}
	metrics := metric.DefaultMetrics(source)
	if cfg.Monitor.HostMetrics {
		metrics = append(metrics, metric.HostMetrics()...)
	}
	registry, err := metric.NewRegistry(logger, cfg.Monitor.FetchTimeout, metrics...)
	if err != nil {
		logger.Fatal("Failed to create metric registry", zap.Error(err))
	}

	// Action transports
	dispatcherConfig := handler.DispatcherConfig{
		Webhook:     handler.NewWebhookHandler(logger, cfg.Webhook.Timeout, cfg.Webhook.Headers),
		Timeout:     cfg.Actions.Timeout,
		MaxAttempts: cfg.Actions.MaxAttempts,
		Backoff: &handler.ExponentialBackoff{
			InitialDelay: cfg.Actions.RetryBackoff,
			MaxDelay:     10 * cfg.Actions.RetryBackoff,
			Multiplier:   2,
		},
	}
	if cfg.Email.Host != "" {
		dispatcherConfig.Email = handler.NewEmailHandler(logger, handler.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}
	if cfg.SMS.Enabled {
		dispatcherConfig.SMS = handler.NewSMSHandler(logger, handler.SMSConfig{
			Provider: cfg.SMS.Provider,
			APIKey:   cfg.SMS.APIKey,
			From:     cfg.SMS.From,
		})
	}

	opts := []monitor.Option{
		monitor.WithDispatcher(handler.NewDispatcher(logger, dispatcherConfig)),
		monitor.WithSchedule(cfg.Monitor.Interval, cfg.Monitor.InitialDelay),
	}
	if !cfg.Monitor.DefaultRules {
		opts = append(opts, monitor.WithoutDefaultRules())
	}

	// Event bridge
	if cfg.NATS.Enabled {
		nc, err := connectNATS(cfg.NATS, cfg.App.Name, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
		}
		defer nc.Close()

		logger.Info("Connected to NATS successfully",
			zap.String("url", nc.ConnectedUrl()))

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}

		publisher, err := service.NewNotificationPublisher(ctx, js, logger)
		if err != nil {
			logger.Fatal("Failed to create notification publisher", zap.Error(err))
		}
		opts = append(opts, monitor.WithPublisher(publisher))
	}

	// Notification archive
	var history *storage.SQLiteNotificationHistory
	if cfg.History.Enabled {
		history, err = storage.NewSQLiteNotificationHistory(logger, cfg.History.DBPath)
		if err != nil {
			logger.Fatal("Failed to create notification history storage", zap.Error(err))
		}
		defer history.Close()
		opts = append(opts, monitor.WithHistory(history))
	}

	manager, err := monitor.NewAlertManager(logger, registry, opts...)
	if err != nil {
		logger.Fatal("Failed to create alert manager", zap.Error(err))
	}

	if err := manager.StartMonitoring(ctx); err != nil {
		logger.Fatal("Failed to start monitoring", zap.Error(err))
	}

	apiHandler := &api.Handler{
		Engine:  manager,
		Logger:  logger.Named("api"),
		Timeout: 10 * time.Second,
	}
	if history != nil {
		apiHandler.History = history
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiHandler.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	// Cleanup old history
	if history != nil && cfg.History.Retention > 0 {
		go func() {
			cleanupTicker := time.NewTicker(24 * time.Hour)
			defer cleanupTicker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-cleanupTicker.C:
					cutoff := time.Now().Add(-cfg.History.Retention)
					if _, err := history.DeleteBefore(ctx, cutoff); err != nil {
						logger.Error("Failed to cleanup old notification history", zap.Error(err))
					}
				}
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()

	manager.StopMonitoring()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached, closing open connections", zap.Error(err))
		server.Close()
	}

	if !manager.WaitForActions(shutdownCtx) {
		logger.Warn("Shutdown timeout reached with alert actions still running")
	}

	logger.Info("Server shutting down gracefully")
}
