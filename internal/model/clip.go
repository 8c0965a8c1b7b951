package model

import "time"

// ClipDetails is the clip request as stored on the record.
type ClipDetails struct {
	StreamID    string   `json:"streamId"`
	Title       string   `json:"title"`
	StartTime   float64  `json:"startTime"`
	EndTime     float64  `json:"endTime"`
	Duration    float64  `json:"duration"`
	Speed       float64  `json:"speed"`
	Rating      int      `json:"rating"`
	Tags        []string `json:"tags"`
	AspectRatio string   `json:"aspectRatio"`
	Sports      string   `json:"sports,omitempty"`
	StreamURL   string   `json:"streamUrl,omitempty"`
}

// ClipGenerateRequest represents the request body for clip generation
type ClipGenerateRequest struct {
	StreamID    string   `json:"streamId" validate:"required,max=128"`
	Title       string   `json:"title" validate:"required,max=300"`
	StartTime   *float64 `json:"startTime" validate:"required,min=0"`
	EndTime     *float64 `json:"endTime" validate:"required,gtfield=StartTime"`
	Speed       *float64 `json:"speed" validate:"omitempty,gt=0,max=16"`
	Rating      *int     `json:"rating" validate:"omitempty,min=1,max=5"`
	Tags        []string `json:"tags" validate:"omitempty,max=50,dive,min=1,max=100"`
	AspectRatio string   `json:"aspectRatio" validate:"omitempty,oneof=16:9 9:16 1:1 4:3"`
	Sports      string   `json:"sports" validate:"omitempty,max=100"`
	StreamURL   string   `json:"streamUrl" validate:"omitempty,url"`
}

// ClipGenerateResponse represents the response when clip generation starts
type ClipGenerateResponse struct {
	ClipID   string    `json:"clipId"`
	JobID    string    `json:"jobId"`
	Status   string    `json:"status"`
	StreamID string    `json:"streamId"`
	Created  time.Time `json:"createdAt"`
}

// ClipListQuery filters clips of one stream
type ClipListQuery struct {
	StreamID string
	Status   JobStatus
	Page     int
	Limit    int
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ClipListResponse represents one page of clips
type ClipListResponse struct {
	Clips      []*ProcessingJob `json:"clips"`
	Pagination Pagination       `json:"pagination"`
}
