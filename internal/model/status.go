package model

// StatusView is the progress read shape returned to callers. Result fields are
// present only for completed jobs and Error only for failed ones.
type StatusView struct {
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	JobID      string    `json:"job_id"`
	VideoURL   string    `json:"video_url,omitempty"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Thumbnails []string  `json:"thumbnails,omitempty"`
	StreamURL  string    `json:"stream_url,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// DefaultFailureMessage is reported for failed jobs that carry no cause.
const DefaultFailureMessage = "Processing failed"

// NewStatusView projects a record into its read shape.
func NewStatusView(j *ProcessingJob) *StatusView {
	v := &StatusView{
		Status:   j.Status,
		Progress: j.Progress,
		JobID:    j.JobID,
	}

	switch j.Status {
	case JobStatusCompleted:
		v.Progress = 100
		v.Thumbnails = []string{}
		if j.Result != nil {
			v.VideoURL = j.Result.VideoURL
			v.Thumbnail = j.Result.ThumbnailURL
			v.StreamURL = j.Result.StreamURL
			if j.Result.Thumbnails != nil {
				v.Thumbnails = j.Result.Thumbnails
			}
		}
	case JobStatusFailed:
		v.Error = j.ErrorMessage()
		if v.Error == "" {
			v.Error = DefaultFailureMessage
		}
	}

	return v
}
