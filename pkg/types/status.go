package types

// JobPhase represents the current state of a job, derived from its event
// stream.
type JobPhase string

const (
	JobPhasePending JobPhase = "pending"
	JobPhaseRunning JobPhase = "running"
	JobPhaseDone    JobPhase = "done"
	JobPhaseFailed  JobPhase = "failed"
)

// JobStatus is the in-memory reduction of one job's event stream: current
// phase, artifacts seen so far in emission order, and the terminal error if
// any. It lives for the duration of one invocation.
type JobStatus struct {
	PromptID string        `json:"prompt_id"`
	Phase    JobPhase      `json:"phase"`
	Refs     []ArtifactRef `json:"refs,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// NewJobStatus creates a pending status for the given job handle.
func NewJobStatus(promptID string) *JobStatus {
	return &JobStatus{PromptID: promptID, Phase: JobPhasePending}
}

// Apply folds one event into the status. Events for other handles are
// ignored; session-level events (empty prompt id) only ever mean "queued"
// and never override a running or terminal phase. Once terminal, the status
// no longer changes, so a duplicate terminal frame is harmless.
func (s *JobStatus) Apply(e *JobEvent) {
	if s.Terminal() {
		return
	}
	if e.PromptID != "" && e.PromptID != s.PromptID {
		return
	}

	switch e.Type {
	case EventTypeQueued:
		// Only meaningful before execution starts.
		if s.Phase == JobPhasePending {
			s.Phase = JobPhasePending
		}
	case EventTypeExecuting, EventTypeProgress, EventTypeCached:
		s.Phase = JobPhaseRunning
	case EventTypeArtifact:
		s.Phase = JobPhaseRunning
		s.Refs = append(s.Refs, e.Refs...)
	case EventTypeCompleted:
		s.Phase = JobPhaseDone
	case EventTypeErrored:
		s.Phase = JobPhaseFailed
		s.Error = e.Reason
	}
}

// Terminal reports whether the job reached a final phase.
func (s *JobStatus) Terminal() bool {
	return s.Phase == JobPhaseDone || s.Phase == JobPhaseFailed
}
