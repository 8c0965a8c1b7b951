package model

// Job kinds
type JobKind string

const (
	JobKindClip   JobKind = "clip"
	JobKindStream JobKind = "stream"
)

// Job status
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ParseJobStatus accepts the status vocabulary of both AI services.
// Unknown values map to the empty status.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "processing", "pending", "queued", "running", "in_progress":
		return JobStatusProcessing
	case "completed", "success", "succeeded", "done":
		return JobStatusCompleted
	case "failed", "error":
		return JobStatusFailed
	case "cancelled", "canceled":
		return JobStatusCancelled
	}
	return ""
}

// Update channels
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelPoll    Channel = "poll"
	ChannelAdmin   Channel = "admin"
)

// Aspect ratios accepted by the clip service
const (
	AspectRatio16x9 = "16:9"
	AspectRatio9x16 = "9:16"
	AspectRatio1x1  = "1:1"
	AspectRatio4x3  = "4:3"
)
