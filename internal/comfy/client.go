// Package comfy talks to the generation server: job submission over HTTP
// and the websocket event channel.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// SubmissionError means the queue endpoint rejected the workflow, was
// unreachable, or returned a response without a job identifier. Nothing
// should be retried against the same session id: resubmission enqueues a
// second job.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission rejected (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ClientConfig holds connection settings for the generation server.
type ClientConfig struct {
	// Host is the host:port the server listens on.
	Host string

	// SubmitTimeout bounds a single queue-endpoint call.
	SubmitTimeout time.Duration

	// FetchTimeout bounds a single artifact retrieval.
	FetchTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:          "127.0.0.1:8188",
		SubmitTimeout: 10 * time.Second,
		FetchTimeout:  30 * time.Second,
	}
}

// Client is an HTTP client for the generation server's queue, artifact and
// history endpoints. It is safe for concurrent use; the underlying
// connection pool is shared across invocations.
type Client struct {
	cfg    *ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client for the server at cfg.Host.
func NewClient(cfg *ClientConfig, logger *slog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger,
	}
}

func (c *Client) baseURL() string {
	return "http://" + c.cfg.Host
}

// Submit pushes a workflow onto the server's queue under the given session
// id and returns the job handle the server assigned. The descriptor is
// forwarded verbatim.
func (c *Client) Submit(ctx context.Context, wf types.WorkflowDescriptor, sessionID string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt":    wf,
		"client_id": sessionID,
	})
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("encode prompt: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SubmissionError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", string(data)),
		}
	}

	var queued struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("decode queue response: %w", err)}
	}
	if queued.PromptID == "" {
		return "", &SubmissionError{Err: fmt.Errorf("queue response missing prompt_id")}
	}

	c.logger.Debug("workflow queued",
		slog.String("prompt_id", queued.PromptID),
		slog.String("session_id", sessionID),
	)
	return queued.PromptID, nil
}

// FetchArtifact retrieves the raw bytes for one artifact reference.
func (c *Client) FetchArtifact(ctx context.Context, ref types.ArtifactRef) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return data, nil
}

// History queries the server's history endpoint for a finished job and
// returns the image references its output nodes recorded. Used as a
// fallback when the event stream reported completion without any
// artifact events (fully cached executions).
func (c *Client) History(ctx context.Context, promptID string) ([]types.ArtifactRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get history: status %d", resp.StatusCode)
	}

	// history is keyed by prompt id; each node output may carry images.
	var history map[string]struct {
		Outputs map[string]struct {
			Images []types.ArtifactRef `json:"images"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, nil
	}

	var refs []types.ArtifactRef
	for _, out := range entry.Outputs {
		refs = append(refs, out.Images...)
	}
	return refs, nil
}

// WaitReady polls the server root until it answers 200, for at most
// retries attempts spaced by interval. Returns an error when the budget is
// exhausted or the context is cancelled first.
func (c *Client) WaitReady(ctx context.Context, retries int, interval time.Duration) error {
	for i := 0; i < retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("generation server at %s not reachable after %d attempts", c.cfg.Host, retries)
}
