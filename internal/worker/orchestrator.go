package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/komojini/runpod-worker-comfy/internal/comfy"
	"github.com/komojini/runpod-worker-comfy/internal/jobstore"
	"github.com/komojini/runpod-worker-comfy/internal/metrics"
	"github.com/komojini/runpod-worker-comfy/internal/storage"
	"github.com/komojini/runpod-worker-comfy/internal/validator"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// Options tunes per-invocation behavior.
type Options struct {
	// JobTimeout is the default overall deadline per invocation.
	JobTimeout time.Duration

	// MaxJobTimeout caps caller-supplied timeout overrides.
	MaxJobTimeout time.Duration

	// StartupRetries / StartupInterval bound the readiness probe run
	// before each submission.
	StartupRetries  int
	StartupInterval time.Duration
}

// JobRequest is one unit of work crossing the invocation boundary.
type JobRequest struct {
	// ID identifies the invocation. Assigned when empty.
	ID string

	// Workflow is the descriptor to submit, forwarded verbatim.
	Workflow types.WorkflowDescriptor

	// Timeout overrides the default overall deadline when positive.
	Timeout time.Duration
}

// Orchestrator drives one invocation: readiness probe, event channel,
// submission, completion, encoding. It holds no per-job state and is safe
// for concurrent invocations against the same server.
type Orchestrator struct {
	client    *comfy.Client
	listener  *comfy.Listener
	validator *validator.Validator
	delivery  storage.Delivery
	store     jobstore.Store
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates an orchestrator. validator and store may be nil; delivery
// must not be.
func New(client *comfy.Client, listener *comfy.Listener, v *validator.Validator, delivery storage.Delivery, store jobstore.Store, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		client:    client,
		listener:  listener,
		validator: v,
		delivery:  delivery,
		store:     store,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/komojini/runpod-worker-comfy/internal/worker"),
	}
}

// Run executes one job end to end and always returns a well-formed
// envelope; no internal failure propagates past this boundary. The overall
// timeout is a hard ceiling spanning submission, listening, resolution and
// encoding combined.
func (o *Orchestrator) Run(ctx context.Context, req *JobRequest) (env *types.ResultEnvelope) {
	start := time.Now()

	jobID := req.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	logger := o.logger.With(slog.String("job_id", jobID))

	ctx, span := o.tracer.Start(ctx, "job.run",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	defer span.End()

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	var promptID string

	// Outcome accounting runs last, after any recovery below fills env.
	defer func() {
		outcome := env.Code
		if env.OK() {
			outcome = "ok"
		}
		metrics.JobsTotal.WithLabelValues(outcome).Inc()
		metrics.JobDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		o.record(logger, jobID, promptID, env, start)

		logger.Info("job finished",
			slog.String("outcome", outcome),
			slog.Int("images", len(env.Images)),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during invocation", slog.Any("panic", r))
			env = types.ErrorEnvelope(jobID, types.CodeInternalError, fmt.Sprintf("internal fault: %v", r))
		}
	}()

	timeout := o.opts.JobTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if o.opts.MaxJobTimeout > 0 && timeout > o.opts.MaxJobTimeout {
		timeout = o.opts.MaxJobTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if o.validator != nil {
		if result := o.validator.ValidateWorkflow(req.Workflow); !result.Valid {
			msg := "workflow failed validation"
			if len(result.Errors) > 0 {
				msg = fmt.Sprintf("workflow failed validation at %s: %s", result.Errors[0].Path, result.Errors[0].Message)
			}
			return types.ErrorEnvelope(jobID, types.CodeInvalidWorkflow, msg)
		}
	}

	if o.opts.StartupRetries > 0 {
		if err := o.client.WaitReady(ctx, o.opts.StartupRetries, o.opts.StartupInterval); err != nil {
			return types.ErrorEnvelope(jobID, types.CodeSubmissionError, fmt.Sprintf("generation server not ready: %v", err))
		}
	}

	// The event channel opens before submission so frames emitted between
	// queueing and the submit call returning are never lost.
	sessionID := uuid.NewString()
	stream, err := o.listener.Listen(ctx, sessionID)
	if err != nil {
		// Nothing was enqueued; safe for the caller to retry.
		return types.ErrorEnvelope(jobID, types.CodeSubmissionError, err.Error())
	}
	defer stream.Close()

	promptID, err = o.client.Submit(ctx, req.Workflow, sessionID)
	if err != nil {
		return types.ErrorEnvelope(jobID, codeFor(err), err.Error())
	}
	stream.Bind(promptID)
	span.SetAttributes(attribute.String("job.prompt_id", promptID))
	logger = logger.With(slog.String("prompt_id", promptID))

	refs, err := AwaitCompletion(ctx, promptID, stream.Events(), timeout, logger)
	if err != nil {
		return types.ErrorEnvelope(jobID, codeFor(err), err.Error())
	}
	stream.Close()

	// Fully cached executions complete without artifact events; the
	// history endpoint still records their outputs.
	if len(refs) == 0 {
		refs, err = o.client.History(ctx, promptID)
		if err != nil {
			logger.Warn("history lookup failed", slog.String("error", err.Error()))
			refs = nil
		}
	}

	images, artErrs, err := EncodeArtifacts(ctx, jobID, refs, o.client.FetchArtifact, o.delivery, logger)
	if err != nil {
		// Cancellation mid-encoding discards partial results.
		return types.ErrorEnvelope(jobID, codeFor(err), err.Error())
	}

	return &types.ResultEnvelope{
		Status: "ok",
		JobID:  jobID,
		Images: images,
		Errors: artErrs,
	}
}

// record persists the invocation outcome. The job context is often already
// expired here, so a short background deadline is used instead.
func (o *Orchestrator) record(logger *slog.Logger, jobID, promptID string, env *types.ResultEnvelope, start time.Time) {
	if o.store == nil {
		return
	}

	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &jobstore.JobRecord{
		JobID:      jobID,
		PromptID:   promptID,
		Status:     env.Status,
		Code:       env.Code,
		Message:    env.Message,
		ImageCount: len(env.Images),
		Errors:     env.Errors,
		StartedAt:  start.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := o.store.Put(rctx, rec); err != nil {
		logger.Warn("failed to persist job record", slog.String("error", err.Error()))
	}
}
