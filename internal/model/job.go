package model

import (
	"maps"
	"slices"
	"time"
)

// ProcessingJob is the stored record of one external processing request.
// Clips and streams share the record; Clip or Stream carries the request details.
type ProcessingJob struct {
	RecordID         string         `json:"recordId"`
	Kind             JobKind        `json:"kind"`
	JobID            string         `json:"jobId,omitempty"`
	ParentID         string         `json:"parentId,omitempty"`
	OwnerID          string         `json:"ownerId,omitempty"`
	Status           JobStatus      `json:"status"`
	Progress         int            `json:"progress"`
	Result           *ResultPayload `json:"result,omitempty"`
	Error            *string        `json:"error,omitempty"`
	RawWorkerPayload map[string]any `json:"rawWorkerPayload,omitempty"`
	Clip             *ClipDetails   `json:"clip,omitempty"`
	Stream           *StreamDetails `json:"stream,omitempty"`
	Revision         int64          `json:"revision"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// ResultPayload holds the output locations written on completion.
type ResultPayload struct {
	VideoURL     string   `json:"videoUrl,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Thumbnails   []string `json:"thumbnails"`
	StreamURL    string   `json:"streamUrl,omitempty"`
}

// NewProcessingJob returns a record in its initial state.
func NewProcessingJob(recordID string, kind JobKind, now time.Time) *ProcessingJob {
	return &ProcessingJob{
		RecordID:  recordID,
		Kind:      kind,
		Status:    JobStatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ErrorMessage returns the stored failure cause or "".
func (j *ProcessingJob) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// Clone returns a deep copy. Store implementations hand out clones so callers
// never share mutable state with the stored record.
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		r := *j.Result
		r.Thumbnails = slices.Clone(j.Result.Thumbnails)
		c.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	// raw payload values are replaced on merge, never mutated in place
	if j.RawWorkerPayload != nil {
		c.RawWorkerPayload = maps.Clone(j.RawWorkerPayload)
	}
	if j.Clip != nil {
		cd := *j.Clip
		cd.Tags = slices.Clone(j.Clip.Tags)
		c.Clip = &cd
	}
	if j.Stream != nil {
		sd := *j.Stream
		c.Stream = &sd
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
