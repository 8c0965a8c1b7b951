package model

// StreamDetails is the stream ingestion request as stored on the record.
type StreamDetails struct {
	StreamID        string `json:"streamId"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	Category        string `json:"category"`
	IsLive          bool   `json:"isLive"`
	VideoType       string `json:"videoType,omitempty"`
	CompetitionType string `json:"competitionType,omitempty"`
	Language        string `json:"language"`
	PlaybackURL     string `json:"playbackUrl,omitempty"`
	HLSURL          string `json:"hlsUrl,omitempty"`
}

// StreamCreateRequest represents the request body for stream creation
type StreamCreateRequest struct {
	Title           string `json:"title" validate:"required,max=300"`
	URL             string `json:"url" validate:"required,url"`
	Category        string `json:"category" validate:"omitempty,max=100"`
	IsLive          bool   `json:"isLive"`
	VideoType       string `json:"videoType" validate:"omitempty,max=50"`
	CompetitionType string `json:"competitionType" validate:"omitempty,max=100"`
	Language        string `json:"language" validate:"omitempty,min=2,max=8"`
}

// StreamCreateResponse represents the response for stream creation
type StreamCreateResponse struct {
	Stream *ProcessingJob `json:"stream"`
}

// StreamWebhookRequest carries the correlation keys of a stream AI status
// callback. The stream server sends stream_id and only sometimes job_id.
type StreamWebhookRequest struct {
	StreamID string `json:"stream_id"`
	JobID    string `json:"job_id"`
}

// CorrelationKey returns the job id the callback refers to.
func (r *StreamWebhookRequest) CorrelationKey() string {
	if r.JobID != "" {
		return r.JobID
	}
	return r.StreamID
}

// StreamListQuery filters the streams of one owner
type StreamListQuery struct {
	OwnerID string
	Status  JobStatus
	Page    int
	Limit   int
}

// StreamListResponse represents one page of streams
type StreamListResponse struct {
	Streams    []*ProcessingJob `json:"streams"`
	Pagination Pagination       `json:"pagination"`
}
