// Package main is the entry point for the worker service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/komojini/runpod-worker-comfy/internal/api"
	"github.com/komojini/runpod-worker-comfy/internal/comfy"
	"github.com/komojini/runpod-worker-comfy/internal/config"
	"github.com/komojini/runpod-worker-comfy/internal/jobstore"
	"github.com/komojini/runpod-worker-comfy/internal/storage"
	"github.com/komojini/runpod-worker-comfy/internal/tracing"
	"github.com/komojini/runpod-worker-comfy/internal/validator"
	"github.com/komojini/runpod-worker-comfy/internal/worker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting worker",
		slog.String("port", cfg.Port),
		slog.String("comfy_host", cfg.ComfyHost),
		slog.String("log_level", cfg.LogLevel),
	)

	// Initialize tracing
	tp, err := tracing.Init(context.Background(), &tracing.Config{
		ServiceName:    "runpod-worker-comfy",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     1.0,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize job store based on configuration
	var store jobstore.Store
	switch cfg.JobStoreType {
	case "redis":
		redisCfg := &jobstore.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "jobs",
			TTL:      cfg.JobStoreTTL,
		}
		redisStore, err := jobstore.NewRedisStore(redisCfg)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			store = jobstore.NewMemoryStore(&jobstore.Config{
				MaxRecords: cfg.MaxRecords,
				TTL:        cfg.JobStoreTTL,
			})
		} else {
			store = redisStore
			logger.Info("using Redis jobstore", slog.String("url", cfg.RedisURL))
		}
	default:
		store = jobstore.NewMemoryStore(&jobstore.Config{
			MaxRecords: cfg.MaxRecords,
			TTL:        cfg.JobStoreTTL,
		})
		logger.Info("using in-memory jobstore")
	}
	defer store.Close()

	// Artifact delivery: S3 when a bucket is configured, inline base64
	// otherwise.
	var delivery storage.Delivery
	if cfg.BucketEndpoint != "" || cfg.BucketName != "" {
		s3Delivery, err := storage.NewS3Delivery(&storage.S3Config{
			Endpoint:        cfg.BucketEndpoint,
			Bucket:          cfg.BucketName,
			Region:          cfg.BucketRegion,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.BucketUseSSL,
			PresignExpiry:   cfg.PresignExpiry,
		})
		if err != nil {
			logger.Error("failed to initialize S3 delivery, falling back to inline", "error", err)
			delivery = storage.NewInlineDelivery()
		} else {
			delivery = s3Delivery
			logger.Info("using S3 artifact delivery", slog.String("endpoint", cfg.BucketEndpoint))
		}
	} else {
		delivery = storage.NewInlineDelivery()
		logger.Info("using inline base64 artifact delivery")
	}

	// Initialize validator
	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		// Continue without validator - the server rejects bad graphs itself
		v = nil
	}

	// Generation server client + event listener
	client := comfy.NewClient(&comfy.ClientConfig{
		Host:          cfg.ComfyHost,
		SubmitTimeout: cfg.SubmitTimeout,
		FetchTimeout:  cfg.FetchTimeout,
	}, logger)
	listener := comfy.NewListener(cfg.ComfyHost, logger)

	orchestrator := worker.New(client, listener, v, delivery, store, worker.Options{
		JobTimeout:      cfg.JobTimeout,
		MaxJobTimeout:   cfg.MaxJobTimeout,
		StartupRetries:  cfg.StartupRetries,
		StartupInterval: cfg.StartupInterval,
	}, logger)

	// Initialize API handlers
	handlers := api.NewHandlers(orchestrator, client, store, cfg, logger)
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	server := api.NewServer(handlers, limiter)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
