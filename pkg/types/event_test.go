package types

import (
	"testing"
)

func TestParseEvent(t *testing.T) {
	t.Run("status frame becomes queued without prompt id", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"status","data":{"status":{"exec_info":{"queue_remaining":2}}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeQueued {
			t.Errorf("expected queued, got %s", ev.Type)
		}
		if ev.PromptID != "" {
			t.Errorf("status frames must not carry a prompt id, got %q", ev.PromptID)
		}
	})

	t.Run("executing with node", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"executing","data":{"node":"3","prompt_id":"p1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeExecuting || ev.NodeID != "3" || ev.PromptID != "p1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("executing with null node is terminal success", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeCompleted {
			t.Errorf("expected completed, got %s", ev.Type)
		}
		if !ev.Terminal() {
			t.Error("completed event should be terminal")
		}
	})

	t.Run("progress carries step and total", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"progress","data":{"value":5,"max":20,"node":"3","prompt_id":"p1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeProgress || ev.Step != 5 || ev.Total != 20 {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("executed carries artifact refs", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"executed","data":{"node":"9","prompt_id":"p1","output":{"images":[{"filename":"a.png","subfolder":"out","type":"output"}]}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeArtifact {
			t.Fatalf("expected artifact_produced, got %s", ev.Type)
		}
		if len(ev.Refs) != 1 || ev.Refs[0].Filename != "a.png" || ev.Refs[0].Subfolder != "out" {
			t.Errorf("unexpected refs: %+v", ev.Refs)
		}
	})

	t.Run("execution_error builds a reason", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"execution_error","data":{"prompt_id":"p1","node_id":"4","node_type":"KSampler","exception_message":"CUDA out of memory"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeErrored {
			t.Fatalf("expected errored, got %s", ev.Type)
		}
		if ev.Reason != "KSampler: CUDA out of memory" {
			t.Errorf("unexpected reason: %q", ev.Reason)
		}
		if !ev.Terminal() {
			t.Error("errored event should be terminal")
		}
	})

	t.Run("execution_success is terminal", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"execution_success","data":{"prompt_id":"p1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventTypeCompleted || !ev.Terminal() {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("unknown frame type is a nil no-op", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"crystools.monitor","data":{"gpu":1}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev != nil {
			t.Errorf("expected nil event, got %+v", ev)
		}
	})

	t.Run("malformed frame is an error", func(t *testing.T) {
		if _, err := ParseEvent([]byte(`not json`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})
}

func TestJobStatusApply(t *testing.T) {
	t.Run("reduces a normal lifecycle", func(t *testing.T) {
		st := NewJobStatus("p1")

		st.Apply(&JobEvent{Type: EventTypeQueued})
		if st.Phase != JobPhasePending {
			t.Errorf("expected pending after queued, got %s", st.Phase)
		}

		st.Apply(&JobEvent{Type: EventTypeExecuting, PromptID: "p1", NodeID: "3"})
		if st.Phase != JobPhaseRunning {
			t.Errorf("expected running, got %s", st.Phase)
		}

		st.Apply(&JobEvent{Type: EventTypeArtifact, PromptID: "p1", Refs: []ArtifactRef{{Filename: "a.png"}}})
		st.Apply(&JobEvent{Type: EventTypeArtifact, PromptID: "p1", Refs: []ArtifactRef{{Filename: "b.png"}}})
		st.Apply(&JobEvent{Type: EventTypeCompleted, PromptID: "p1"})

		if st.Phase != JobPhaseDone {
			t.Fatalf("expected done, got %s", st.Phase)
		}
		if len(st.Refs) != 2 || st.Refs[0].Filename != "a.png" || st.Refs[1].Filename != "b.png" {
			t.Errorf("refs out of order: %+v", st.Refs)
		}
	})

	t.Run("ignores events for other handles", func(t *testing.T) {
		st := NewJobStatus("p1")
		st.Apply(&JobEvent{Type: EventTypeCompleted, PromptID: "p2"})
		if st.Terminal() {
			t.Error("event for another handle must not change phase")
		}
	})

	t.Run("duplicate terminal events are harmless", func(t *testing.T) {
		st := NewJobStatus("p1")
		st.Apply(&JobEvent{Type: EventTypeErrored, PromptID: "p1", Reason: "boom"})
		st.Apply(&JobEvent{Type: EventTypeCompleted, PromptID: "p1"})
		if st.Phase != JobPhaseFailed {
			t.Errorf("terminal phase must not change, got %s", st.Phase)
		}
		if st.Error != "boom" {
			t.Errorf("error must survive, got %q", st.Error)
		}
	})
}

func TestDecodeWorkflow(t *testing.T) {
	t.Run("object form", func(t *testing.T) {
		wf, err := DecodeWorkflow([]byte(`{"3":{"class_type":"KSampler","inputs":{}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wf) != 1 {
			t.Errorf("expected 1 node, got %d", len(wf))
		}
	})

	t.Run("string-encoded form", func(t *testing.T) {
		wf, err := DecodeWorkflow([]byte(`"{\"3\":{\"class_type\":\"KSampler\",\"inputs\":{}}}"`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wf) != 1 {
			t.Errorf("expected 1 node, got %d", len(wf))
		}
	})

	t.Run("rejects non-object", func(t *testing.T) {
		if _, err := DecodeWorkflow([]byte(`42`)); err == nil {
			t.Error("expected error for non-object workflow")
		}
	})
}
