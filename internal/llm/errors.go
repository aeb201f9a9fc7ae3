package llm

import "fmt"

// Reason tags why an extraction call failed.
type Reason string

const (
	ReasonTimeout          Reason = "timeout"
	ReasonUpstream         Reason = "non-retryable-upstream"
	ReasonRetriesExhausted Reason = "retries-exhausted"
	ReasonInvalidResponse  Reason = "invalid-response"
)

// ExtractionError is the only error shape that crosses the client boundary.
// Individual retryable failures are absorbed by the retry loop and never
// surfaced on their own.
type ExtractionError struct {
	Reason Reason
	Op     string // "upload" or "generate"
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s failed (%s): %v", e.Op, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response from the extraction service. The status
// code drives retryability classification.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}
