package validator

import (
	"encoding/json"
	"testing"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

func TestValidateWorkflow(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}

	t.Run("accepts a well-formed graph", func(t *testing.T) {
		wf := types.WorkflowDescriptor{
			"3": json.RawMessage(`{"class_type":"KSampler","inputs":{"seed":42,"model":["4",0]}}`),
			"4": json.RawMessage(`{"class_type":"CheckpointLoaderSimple","inputs":{"ckpt_name":"sd.safetensors"},"_meta":{"title":"Load Checkpoint"}}`),
		}
		result := v.ValidateWorkflow(wf)
		if !result.Valid {
			t.Errorf("expected valid, got errors: %+v", result.Errors)
		}
	})

	t.Run("rejects an empty graph", func(t *testing.T) {
		result := v.ValidateWorkflow(types.WorkflowDescriptor{})
		if result.Valid {
			t.Error("empty graph should be invalid")
		}
	})

	t.Run("rejects a node without class_type", func(t *testing.T) {
		wf := types.WorkflowDescriptor{
			"3": json.RawMessage(`{"inputs":{}}`),
		}
		result := v.ValidateWorkflow(wf)
		if result.Valid {
			t.Error("node missing class_type should be invalid")
		}
		if len(result.Errors) == 0 {
			t.Error("expected at least one validation error")
		}
	})

	t.Run("rejects a non-object node", func(t *testing.T) {
		wf := types.WorkflowDescriptor{
			"3": json.RawMessage(`"not a node"`),
		}
		result := v.ValidateWorkflow(wf)
		if result.Valid {
			t.Error("non-object node should be invalid")
		}
	})
}
