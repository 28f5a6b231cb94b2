package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/komojini/runpod-worker-comfy/internal/comfy"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// AwaitCompletion consumes the event stream until the job reaches a
// terminal state, folding each event into a JobStatus. It returns the
// artifact references collected in emission order on success.
//
// Failure modes: a closed channel before a terminal event is a lost
// connection, the timer expiring is ErrJobTimeout, and an errored terminal
// event becomes an ExecutionError. Context cancellation returns ctx.Err().
func AwaitCompletion(ctx context.Context, promptID string, events <-chan types.JobEvent, timeout time.Duration, logger *slog.Logger) ([]types.ArtifactRef, error) {
	if logger == nil {
		logger = slog.Default()
	}

	status := types.NewJobStatus(promptID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, comfy.ErrConnectionLost
			}

			status.Apply(&ev)

			switch ev.Type {
			case types.EventTypeProgress:
				logger.Debug("job progress",
					slog.String("prompt_id", promptID),
					slog.String("node", ev.NodeID),
					slog.Int("step", ev.Step),
					slog.Int("total", ev.Total),
				)
			case types.EventTypeCached:
				logger.Debug("execution cached", slog.String("prompt_id", promptID))
			}

			if !status.Terminal() {
				continue
			}
			if status.Phase == types.JobPhaseFailed {
				return nil, &ExecutionError{NodeID: ev.NodeID, Reason: status.Error}
			}
			return status.Refs, nil

		case <-timer.C:
			return nil, ErrJobTimeout

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
