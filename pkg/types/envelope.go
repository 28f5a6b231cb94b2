package types

// Error codes surfaced in the result envelope. Timeout and connection loss
// are deliberately distinct from execution failure: the job may still be
// running server-side and the caller can choose to resubmit or wait.
const (
	CodeInvalidWorkflow    = "InvalidWorkflow"
	CodeSubmissionError    = "SubmissionError"
	CodeConnectionLost     = "ConnectionLost"
	CodeJobTimeout         = "JobTimeout"
	CodeJobExecutionFailed = "JobExecutionFailed"
	CodeArtifactFetchError = "ArtifactFetchError"
	CodeInternalError      = "InternalError"
)

// EncodedArtifact is one transport-safe output: inline base64 data or a
// presigned URL, tagged with its encoding and a MIME hint.
type EncodedArtifact struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

// ArtifactError reports a per-artifact failure that did not fail the job.
type ArtifactError struct {
	ArtifactRef string `json:"artifactRef,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// ResultEnvelope is the only value that crosses the invocation boundary
// back to the caller. It is always well formed; internal faults never
// propagate past it.
type ResultEnvelope struct {
	Status  string            `json:"status"` // "ok" or "error"
	JobID   string            `json:"jobId,omitempty"`
	Images  []EncodedArtifact `json:"images,omitempty"`
	Errors  []ArtifactError   `json:"errors,omitempty"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
}

// OK reports whether the envelope carries a successful result.
func (r *ResultEnvelope) OK() bool {
	return r.Status == "ok"
}

// ErrorEnvelope builds a terminal error envelope.
func ErrorEnvelope(jobID, code, message string) *ResultEnvelope {
	return &ResultEnvelope{
		Status:  "error",
		JobID:   jobID,
		Code:    code,
		Message: message,
	}
}
