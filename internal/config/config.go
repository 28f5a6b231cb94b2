// Package config provides configuration loading for the worker.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the worker.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Generation server (ComfyUI)
	ComfyHost       string
	SubmitTimeout   time.Duration
	FetchTimeout    time.Duration
	StartupRetries  int
	StartupInterval time.Duration

	// Job execution
	JobTimeout    time.Duration
	MaxJobTimeout time.Duration

	// Artifact delivery
	BucketEndpoint  string
	BucketName      string
	BucketRegion    string
	AccessKeyID     string
	SecretAccessKey string
	BucketUseSSL    bool
	PresignExpiry   time.Duration

	// JobStore configuration
	JobStoreType  string // "memory" or "redis"
	JobStoreTTL   time.Duration
	MaxRecords    int
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "8000"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 10*time.Minute), // must outlive a full job
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// ComfyUI
		ComfyHost:       getEnv("COMFY_HOST", "127.0.0.1:8188"),
		SubmitTimeout:   getDuration("COMFY_SUBMIT_TIMEOUT", 10*time.Second),
		FetchTimeout:    getDuration("COMFY_FETCH_TIMEOUT", 30*time.Second),
		StartupRetries:  getInt("COMFY_API_AVAILABLE_MAX_RETRIES", 500),
		StartupInterval: getDuration("COMFY_API_AVAILABLE_INTERVAL", 50*time.Millisecond),

		// Jobs
		JobTimeout:    getDuration("JOB_TIMEOUT", 2*time.Minute),
		MaxJobTimeout: getDuration("JOB_TIMEOUT_MAX", 30*time.Minute),

		// Artifact delivery
		BucketEndpoint:  getEnv("BUCKET_ENDPOINT_URL", ""),
		BucketName:      getEnv("BUCKET_NAME", ""),
		BucketRegion:    getEnv("BUCKET_REGION", ""),
		AccessKeyID:     getEnv("BUCKET_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BUCKET_SECRET_ACCESS_KEY", ""),
		BucketUseSSL:    getBool("BUCKET_USE_SSL", true),
		PresignExpiry:   getDuration("BUCKET_PRESIGN_EXPIRY", 7*24*time.Hour),

		// JobStore
		JobStoreType:  getEnv("WORKER_JOBSTORE", "memory"), // "memory" or "redis"
		JobStoreTTL:   getDuration("JOBSTORE_TTL", 24*time.Hour),
		MaxRecords:    getInt("JOBSTORE_MAX_RECORDS", 1000),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", nil),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 50.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 100),

		// Tracing
		TracingEnabled: getBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
