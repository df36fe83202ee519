package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/marketdata"
	"github.com/tradeworks/equity-screener/internal/notify"
	"github.com/tradeworks/equity-screener/internal/pubsub"
	"github.com/tradeworks/equity-screener/internal/screener"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting screener service",
		logger.String("health_port", fmt.Sprintf("%d", cfg.Screener.HealthCheckPort)),
		logger.Duration("scan_interval", cfg.Screener.ScanInterval),
		logger.String("provider", cfg.MarketData.Provider),
		logger.String("strategy", cfg.Screener.StrategyPath),
	)

	// Load strategy
	strategy, err := config.LoadStrategy(cfg.Screener.StrategyPath)
	if err != nil {
		logger.Fatal("Failed to load strategy",
			logger.ErrorField(err),
			logger.String("path", cfg.Screener.StrategyPath),
		)
	}

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize decision store
	store, err := storage.NewPostgresStore(cfg.Database, storage.WriteConfigFromDatabaseConfig(cfg.Database))
	if err != nil {
		logger.Fatal("Failed to initialize decision store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Start write queue processor
	if err := store.Start(); err != nil {
		logger.Fatal("Failed to start decision store",
			logger.ErrorField(err),
		)
	}

	// Initialize market data provider
	provider, err := marketdata.NewFactory().Create(cfg.MarketData)
	if err != nil {
		logger.Fatal("Failed to initialize market data provider",
			logger.ErrorField(err),
			logger.String("provider", cfg.MarketData.Provider),
		)
	}
	defer provider.Close()

	// Initialize Telegram notifier; without a bot token signals go to
	// the live channel only
	notifier := notify.NewNotifier(cfg.Telegram, store)

	var poller *notify.UpdatePoller
	if telegramNotifier, ok := notifier.(*notify.TelegramNotifier); ok {
		poller = notify.NewUpdatePoller(telegramNotifier, store)
		if err := poller.Start(); err != nil {
			logger.Fatal("Failed to start Telegram update poller",
				logger.ErrorField(err),
			)
		}
	}

	// Initialize dispatch pipeline
	deduplicator := notify.NewDeduplicator(redisClient, cfg.Screener.DedupeTTL)
	cooldown := notify.NewCooldownManager(redisClient, cfg.Screener.CooldownTTL)
	dispatcher := notify.NewSignalDispatcher(
		redisClient,
		deduplicator,
		cooldown,
		notifier,
		cfg.Screener.SignalChannel,
	)

	// Initialize evaluation engine
	engine, err := screener.NewEngine(strategy, nil)
	if err != nil {
		logger.Fatal("Failed to initialize evaluation engine",
			logger.ErrorField(err),
		)
	}

	// Initialize orchestrator
	orchestrator := screener.NewOrchestrator(
		cfg.Screener,
		strategy,
		provider,
		engine,
		store,
		dispatcher,
	)

	// Start scan loop
	if err := orchestrator.Start(); err != nil {
		logger.Fatal("Failed to start orchestrator",
			logger.ErrorField(err),
		)
	}

	// Set up HTTP server for health checks and metrics
	routerMux := mux.NewRouter()

	// Health check endpoints
	routerMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	routerMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		stats := orchestrator.GetStats()
		if orchestrator.IsRunning() && store.IsRunning() && (stats.CyclesCompleted > 0 || time.Since(stats.LastCycleAt) < 5*time.Minute) {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		}
	})

	routerMux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	// Stats endpoint
	routerMux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"scan":     orchestrator.GetStats(),
			"dispatch": dispatcher.GetStats(),
		})
	})

	// Metrics endpoint
	routerMux.Handle("/metrics", promhttp.Handler())

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Screener.HealthCheckPort),
		Handler: routerMux,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down screener service")

	// Stop the scan loop first so no new decisions are produced, then
	// drain the write queue
	orchestrator.Stop()
	if poller != nil {
		poller.Stop()
	}
	if err := store.Stop(); err != nil {
		logger.Error("Error stopping decision store",
			logger.ErrorField(err),
		)
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Screener service stopped")
}
