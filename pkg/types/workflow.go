// Package types defines the data model shared across the worker: workflow
// descriptors, job events and statuses, and the result envelope.
package types

import (
	"encoding/json"
	"fmt"
)

// WorkflowDescriptor is an opaque node graph in the generation server's API
// format. The worker forwards it verbatim; keys are node ids, values the
// server's node objects. Semantic validity is the server's concern.
type WorkflowDescriptor map[string]json.RawMessage

// DecodeWorkflow parses a descriptor from raw JSON. A JSON object is taken
// as-is; a JSON-encoded string containing an object is unwrapped first,
// matching how some callers double-encode the graph.
func DecodeWorkflow(data []byte) (WorkflowDescriptor, error) {
	var wf WorkflowDescriptor
	if err := json.Unmarshal(data, &wf); err == nil {
		return wf, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("workflow must be a JSON object or a JSON-encoded object string")
	}
	if err := json.Unmarshal([]byte(s), &wf); err != nil {
		return nil, fmt.Errorf("decode workflow string: %w", err)
	}
	return wf, nil
}

// AsMap converts the descriptor to a generic map for schema validation.
func (wf WorkflowDescriptor) AsMap() (map[string]interface{}, error) {
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
