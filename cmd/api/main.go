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

	"github.com/tradeworks/equity-screener/internal/api"
	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/pubsub"
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

	logger.Info("Starting REST API service",
		logger.String("port", fmt.Sprintf("%d", cfg.API.Port)),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.Bool("auth_enabled", cfg.API.JWTSecret != ""),
	)

	// Initialize Redis client for the live signal feed
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize decision store in read-only mode; the API never enqueues
	// writes, so the queue processor stays off
	store, err := storage.NewPostgresStore(cfg.Database, storage.WriteConfigFromDatabaseConfig(cfg.Database))
	if err != nil {
		logger.Fatal("Failed to initialize decision store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Initialize auth and handlers
	authManager := api.NewAuthManager(cfg.API.JWTSecret)
	signalHandler := api.NewSignalHandler(store)

	// Initialize WebSocket hub
	hub := api.NewHub(redisClient, authManager, cfg.Screener.SignalChannel, cfg.API)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub",
			logger.ErrorField(err),
		)
	}

	// Set up router
	router := mux.NewRouter()

	// Signal endpoints
	router.HandleFunc("/api/recommendations", signalHandler.GetRecommendations).Methods("GET")
	router.HandleFunc("/api/signals/{symbol}", signalHandler.GetSymbolSignals).Methods("GET")
	router.HandleFunc("/api/decisions/{id}", signalHandler.GetDecision).Methods("GET")

	// Live signal feed
	router.HandleFunc("/ws/signals", hub.ServeWS)

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		// A cheap query checks database connectivity
		_, err := store.GetDecisions(r.Context(), storage.DecisionFilter{Limit: 1})
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	// Stats endpoint
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"websocket": &stats,
		})
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.AuthMiddleware(authManager),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS),
	)

	handler := middlewares(router)

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: handler,
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
	logger.Info("Shutting down REST API service")

	// Close WebSocket connections before taking the server down
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("REST API service stopped")
}
