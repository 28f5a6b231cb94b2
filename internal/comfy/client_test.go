package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	return NewClient(&ClientConfig{
		Host:          host,
		SubmitTimeout: 2 * time.Second,
		FetchTimeout:  2 * time.Second,
	}, nil), srv
}

func TestSubmit(t *testing.T) {
	t.Run("returns the server-assigned handle", func(t *testing.T) {
		var gotBody map[string]json.RawMessage
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/prompt" || r.Method != http.MethodPost {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			json.NewDecoder(r.Body).Decode(&gotBody)
			json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-123"})
		}))

		wf := types.WorkflowDescriptor{"3": json.RawMessage(`{"class_type":"KSampler","inputs":{}}`)}
		promptID, err := client.Submit(context.Background(), wf, "session-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if promptID != "p-123" {
			t.Errorf("expected p-123, got %q", promptID)
		}
		if _, ok := gotBody["prompt"]; !ok {
			t.Error("request body missing prompt")
		}
		var clientID string
		json.Unmarshal(gotBody["client_id"], &clientID)
		if clientID != "session-1" {
			t.Errorf("expected session id forwarded, got %q", clientID)
		}
	})

	t.Run("non-200 is a SubmissionError with status", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid prompt"}`, http.StatusBadRequest)
		}))

		_, err := client.Submit(context.Background(), types.WorkflowDescriptor{}, "s")
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			t.Fatalf("expected SubmissionError, got %T: %v", err, err)
		}
		if subErr.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", subErr.StatusCode)
		}
	})

	t.Run("missing prompt_id is a SubmissionError", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))

		_, err := client.Submit(context.Background(), types.WorkflowDescriptor{}, "s")
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			t.Fatalf("expected SubmissionError, got %T: %v", err, err)
		}
	})

	t.Run("unreachable server is a SubmissionError", func(t *testing.T) {
		client := NewClient(&ClientConfig{
			Host:          "127.0.0.1:1",
			SubmitTimeout: 500 * time.Millisecond,
			FetchTimeout:  500 * time.Millisecond,
		}, nil)

		_, err := client.Submit(context.Background(), types.WorkflowDescriptor{}, "s")
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			t.Fatalf("expected SubmissionError, got %T: %v", err, err)
		}
	})
}

func TestFetchArtifact(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/view" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("filename") != "a.png" || r.URL.Query().Get("subfolder") != "out" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte("image-bytes"))
	}))

	data, err := client.FetchArtifact(context.Background(), types.ArtifactRef{Filename: "a.png", Subfolder: "out", Type: "output"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected data: %q", data)
	}

	t.Run("non-200 is an error", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		if _, err := client.FetchArtifact(context.Background(), types.ArtifactRef{Filename: "gone.png"}); err == nil {
			t.Error("expected error for missing artifact")
		}
	})
}

func TestHistory(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history/p-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"p-1":{"outputs":{"9":{"images":[{"filename":"a.png","subfolder":"","type":"output"}]}}}}`))
	}))

	refs, err := client.History(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].Filename != "a.png" {
		t.Errorf("unexpected refs: %+v", refs)
	}

	t.Run("unknown prompt yields no refs", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		refs, err := client.History(context.Background(), "p-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(refs) != 0 {
			t.Errorf("expected no refs, got %+v", refs)
		}
	})
}

func TestWaitReady(t *testing.T) {
	t.Run("succeeds once the server answers", func(t *testing.T) {
		var calls int
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				http.Error(w, "starting", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

		if err := client.WaitReady(context.Background(), 10, 10*time.Millisecond); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls < 3 {
			t.Errorf("expected at least 3 probes, got %d", calls)
		}
	})

	t.Run("fails when the budget is exhausted", func(t *testing.T) {
		client := NewClient(&ClientConfig{Host: "127.0.0.1:1"}, nil)
		if err := client.WaitReady(context.Background(), 3, time.Millisecond); err == nil {
			t.Error("expected error after exhausting retries")
		}
	})

	t.Run("honors cancellation", func(t *testing.T) {
		client := NewClient(&ClientConfig{Host: "127.0.0.1:1"}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := client.WaitReady(ctx, 100, 50*time.Millisecond)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
