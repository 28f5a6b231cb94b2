// Package jobstore provides persistence for completed job records.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// Common errors returned by Store implementations.
var ErrJobNotFound = errors.New("job not found")

// JobRecord captures the outcome of a single invocation.
type JobRecord struct {
	JobID      string                `json:"jobId"`
	PromptID   string                `json:"promptId,omitempty"`
	Status     string                `json:"status"`
	Code       string                `json:"code,omitempty"`
	Message    string                `json:"message,omitempty"`
	ImageCount int                   `json:"imageCount"`
	Errors     []types.ArtifactError `json:"errors,omitempty"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
}

// Store defines the interface for job record persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put saves the record for a finished job.
	Put(ctx context.Context, rec *JobRecord) error

	// Get returns the record for a job.
	Get(ctx context.Context, jobID string) (*JobRecord, error)

	// List returns all known job IDs.
	List(ctx context.Context) ([]string, error)

	// AdapterInfo returns diagnostic information about the backend.
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	// Close releases backend resources.
	Close() error
}

// Config holds configuration shared by Store implementations.
type Config struct {
	// Maximum number of records to keep (oldest evicted first, 0 = unbounded)
	MaxRecords int

	// TTL for records (0 = no expiry; only enforced by backends that support it)
	TTL time.Duration
}

// DefaultConfig returns sensible defaults for Store configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRecords: 1000,
		TTL:        24 * time.Hour,
	}
}
