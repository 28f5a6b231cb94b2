// Package worker drives one invocation end to end: submission, event
// reduction, artifact encoding, and the result envelope.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/komojini/runpod-worker-comfy/internal/comfy"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// ErrJobTimeout means the overall deadline expired before a terminal event
// arrived. The job may still be running server-side.
var ErrJobTimeout = errors.New("job timed out before terminal event")

// ExecutionError means the server explicitly reported the job failed.
// Not retryable without changing the descriptor.
type ExecutionError struct {
	NodeID string
	Reason string
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("job execution failed at node %s: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("job execution failed: %s", e.Reason)
}

// codeFor maps an internal failure to its envelope code. Timeout and
// connection loss stay distinct from execution failure so callers can
// decide whether to resubmit or wait.
func codeFor(err error) string {
	var subErr *comfy.SubmissionError
	var execErr *ExecutionError

	switch {
	case errors.As(err, &subErr):
		return types.CodeSubmissionError
	case errors.As(err, &execErr):
		return types.CodeJobExecutionFailed
	case errors.Is(err, ErrJobTimeout):
		return types.CodeJobTimeout
	case errors.Is(err, comfy.ErrConnectionLost):
		return types.CodeConnectionLost
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.CodeJobTimeout
	default:
		return types.CodeInternalError
	}
}
