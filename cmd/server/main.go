// Package main is the entry point for the wa-gateway HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/duli-labs/wa-gateway/internal/config"
	"github.com/duli-labs/wa-gateway/internal/handler"
	"github.com/duli-labs/wa-gateway/internal/middleware"
	"github.com/duli-labs/wa-gateway/internal/notify"
	"github.com/duli-labs/wa-gateway/internal/reconciler"
	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/service"
	"github.com/duli-labs/wa-gateway/internal/webhook"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
	"github.com/duli-labs/wa-gateway/internal/worker"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			// Handle error silently
			_ = syncErr
		}
	}()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	repo := repository.NewRepository(db)
	waClient := whatsapp.NewClient(&cfg.WhatsApp, repo, redisClient, logger)
	notifier := notify.NewRedisNotifier(redisClient, logger)

	messages := reconciler.NewMessageReconciler(repo, notifier, waClient, cfg.WhatsApp.MarkAsRead, logger)
	statuses := reconciler.NewStatusReconciler(repo, notifier, logger)

	pool := worker.NewPool(logger, cfg.Worker.PoolSize, cfg.Worker.QueueSize)
	if err := pool.Start(ctx); err != nil {
		logger.Fatal("Failed to start worker pool", zap.Error(err))
	}

	dispatcher, err := webhook.NewDispatcher(pool, messages, statuses, cfg.Worker.MaxAttempts, logger)
	if err != nil {
		logger.Fatal("Failed to create webhook dispatcher", zap.Error(err))
	}

	svc := service.NewService(repo, redisClient, pool, waClient, logger)

	h := handler.NewHandler(svc, dispatcher, cfg.WhatsApp.VerifyToken, logger)

	router := setupRouter(h, cfg.WhatsApp.AppSecret, logger)

	middlewareConfig := &middleware.Config{
		Logger: logger,
		CORS: &middleware.CORSConfig{
			AllowedOrigins:   cfg.Middleware.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           86400,
		},
		RateLimit:      rate.Limit(cfg.Middleware.RateLimit),
		RateLimitBurst: cfg.Middleware.RateLimitBurst,
		RequestTimeout: 30 * time.Second,
	}

	finalHandler := middleware.Chain(middlewareConfig)(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      finalHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown: stop accepting requests first, then drain the pool
	// so in-flight reconciliation units finish before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if pool.IsRunning() {
		if err := pool.Stop(); err != nil {
			logger.Error("Failed to stop worker pool", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
