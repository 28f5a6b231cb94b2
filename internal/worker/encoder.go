package worker

import (
	"context"
	"log/slog"

	"github.com/komojini/runpod-worker-comfy/internal/metrics"
	"github.com/komojini/runpod-worker-comfy/internal/storage"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// FetchFunc retrieves the raw bytes for one artifact reference.
type FetchFunc func(ctx context.Context, ref types.ArtifactRef) ([]byte, error)

// EncodeArtifacts fetches each reference and hands the bytes to the
// delivery backend, preserving emission order. One artifact failing does
// not abort the rest: failures are collected per artifact and reported
// alongside the successes. Cancellation aborts the loop and discards
// everything collected so far.
func EncodeArtifacts(ctx context.Context, jobID string, refs []types.ArtifactRef, fetch FetchFunc, delivery storage.Delivery, logger *slog.Logger) ([]types.EncodedArtifact, []types.ArtifactError, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var images []types.EncodedArtifact
	var artErrs []types.ArtifactError

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		data, err := fetch(ctx, ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			logger.Warn("artifact fetch failed",
				slog.String("job_id", jobID),
				slog.String("ref", ref.String()),
				slog.String("error", err.Error()),
			)
			metrics.ArtifactsTotal.WithLabelValues(delivery.Name(), "fetch_error").Inc()
			artErrs = append(artErrs, types.ArtifactError{
				ArtifactRef: ref.String(),
				Code:        types.CodeArtifactFetchError,
				Message:     err.Error(),
			})
			continue
		}

		encoded, err := delivery.Deliver(ctx, jobID, ref, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			logger.Warn("artifact delivery failed",
				slog.String("job_id", jobID),
				slog.String("ref", ref.String()),
				slog.String("delivery", delivery.Name()),
				slog.String("error", err.Error()),
			)
			metrics.ArtifactsTotal.WithLabelValues(delivery.Name(), "deliver_error").Inc()
			artErrs = append(artErrs, types.ArtifactError{
				ArtifactRef: ref.String(),
				Code:        types.CodeArtifactFetchError,
				Message:     err.Error(),
			})
			continue
		}

		metrics.ArtifactsTotal.WithLabelValues(delivery.Name(), "ok").Inc()
		images = append(images, *encoded)
	}

	return images, artErrs, nil
}
