package types

import (
	"encoding/json"
	"fmt"
)

// EventType categorizes the kind of job event.
type EventType string

const (
	EventTypeQueued    EventType = "queued"
	EventTypeExecuting EventType = "executing"
	EventTypeProgress  EventType = "progress"
	EventTypeCached    EventType = "cached"
	EventTypeArtifact  EventType = "artifact_produced"
	EventTypeCompleted EventType = "completed"
	EventTypeErrored   EventType = "errored"
)

// ArtifactRef locates one output on the generation server. It is only
// meaningful against the server instance that produced it.
type ArtifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (r ArtifactRef) String() string {
	if r.Subfolder == "" {
		return r.Filename
	}
	return r.Subfolder + "/" + r.Filename
}

// JobEvent is one lifecycle event for a job, reduced from the server's
// websocket frames into a closed union discriminated by Type.
type JobEvent struct {
	Type     EventType     `json:"type"`
	PromptID string        `json:"prompt_id,omitempty"`
	NodeID   string        `json:"node_id,omitempty"`
	Step     int           `json:"step,omitempty"`
	Total    int           `json:"total,omitempty"`
	Refs     []ArtifactRef `json:"refs,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Terminal reports whether no further state transitions follow this event.
func (e *JobEvent) Terminal() bool {
	return e.Type == EventTypeCompleted || e.Type == EventTypeErrored
}

// wireFrame is the envelope the generation server sends on the websocket.
type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent converts one websocket text frame into a JobEvent.
// Frames of types this core does not track return (nil, nil); the caller
// should log and move on. A malformed frame is an error.
func ParseEvent(raw []byte) (*JobEvent, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("invalid event frame: %w", err)
	}

	switch frame.Type {
	case "status":
		// Session-level queue info; carries no prompt id.
		return &JobEvent{Type: EventTypeQueued}, nil

	case "execution_start":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse execution_start: %w", err)
		}
		return &JobEvent{Type: EventTypeExecuting, PromptID: d.PromptID}, nil

	case "executing":
		var d struct {
			Node     *string `json:"node"`
			PromptID string  `json:"prompt_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse executing: %w", err)
		}
		// A null node means the graph is done on servers that predate the
		// execution_success frame.
		if d.Node == nil {
			return &JobEvent{Type: EventTypeCompleted, PromptID: d.PromptID}, nil
		}
		return &JobEvent{Type: EventTypeExecuting, PromptID: d.PromptID, NodeID: *d.Node}, nil

	case "progress":
		var d struct {
			Value    int    `json:"value"`
			Max      int    `json:"max"`
			Node     string `json:"node"`
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse progress: %w", err)
		}
		return &JobEvent{Type: EventTypeProgress, PromptID: d.PromptID, NodeID: d.Node, Step: d.Value, Total: d.Max}, nil

	case "execution_cached":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse execution_cached: %w", err)
		}
		return &JobEvent{Type: EventTypeCached, PromptID: d.PromptID}, nil

	case "executed":
		var d struct {
			Node     string `json:"node"`
			PromptID string `json:"prompt_id"`
			Output   struct {
				Images []ArtifactRef `json:"images"`
			} `json:"output"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse executed: %w", err)
		}
		return &JobEvent{Type: EventTypeArtifact, PromptID: d.PromptID, NodeID: d.Node, Refs: d.Output.Images}, nil

	case "execution_success":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse execution_success: %w", err)
		}
		return &JobEvent{Type: EventTypeCompleted, PromptID: d.PromptID}, nil

	case "execution_error":
		var d struct {
			PromptID         string `json:"prompt_id"`
			NodeID           string `json:"node_id"`
			NodeType         string `json:"node_type"`
			ExceptionMessage string `json:"exception_message"`
			ExceptionType    string `json:"exception_type"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return nil, fmt.Errorf("parse execution_error: %w", err)
		}
		reason := d.ExceptionMessage
		if reason == "" {
			reason = d.ExceptionType
		}
		if d.NodeType != "" {
			reason = fmt.Sprintf("%s: %s", d.NodeType, reason)
		}
		return &JobEvent{Type: EventTypeErrored, PromptID: d.PromptID, NodeID: d.NodeID, Reason: reason}, nil

	default:
		// The server's schema is an external contract that grows over time;
		// unrecognized frames are not an error.
		return nil, nil
	}
}
