package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string    `json:"type"`
	RecordID string    `json:"recordId"`
	JobID    string    `json:"jobId,omitempty"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type     string         `json:"type"`
	RecordID string         `json:"recordId"`
	JobID    string         `json:"jobId,omitempty"`
	Result   *ResultPayload `json:"result"`
}

// WSErrorMessage represents a failed or cancelled job
type WSErrorMessage struct {
	Type     string    `json:"type"`
	RecordID string    `json:"recordId"`
	JobID    string    `json:"jobId,omitempty"`
	Status   JobStatus `json:"status"`
	Error    WSError   `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobEvent is emitted after a committed write changed status or progress.
type JobEvent struct {
	RecordID string         `json:"recordId"`
	JobID    string         `json:"jobId,omitempty"`
	Kind     JobKind        `json:"kind"`
	Status   JobStatus      `json:"status"`
	Progress int            `json:"progress"`
	Result   *ResultPayload `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Channel  Channel        `json:"channel"`
	At       int64          `json:"happenedAt"`
}
