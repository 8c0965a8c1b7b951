package client

import "fmt"

// RemoteSubmissionError reports that the AI service did not accept a job.
// The submission is not retried; the caller records the job as failed.
type RemoteSubmissionError struct {
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *RemoteSubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("AI submission failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("AI submission failed: %s", e.Message)
}

func (e *RemoteSubmissionError) Unwrap() error { return e.Err }

// RemoteUnavailableError reports that a progress poll could not be answered.
// It is recoverable: the stored state stays authoritative.
type RemoteUnavailableError struct {
	JobID string
	Err   error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("AI service unavailable for job %s: %v", e.JobID, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }
