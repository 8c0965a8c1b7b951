package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// WorkerUpdate is one progress report from the AI processing service, received
// either as a webhook push or as a poll response.
type WorkerUpdate struct {
	Status       JobStatus
	Percent      *int
	VideoURL     string
	Thumbnail    string
	Thumbnails   []string
	PublicHLSURL string
	StreamURL    string
	Error        string
	Message      string

	// Raw holds every top-level field exactly as received.
	Raw map[string]any
}

type workerUpdateWire struct {
	Status       string   `json:"status"`
	Percent      *float64 `json:"percent"`
	VideoURL     string   `json:"video_url"`
	Thumbnail    string   `json:"thumbnail"`
	Thumbnails   []string `json:"thumbnails"`
	PublicHLSURL string   `json:"public_hls_url"`
	StreamURL    string   `json:"stream_url"`
	Error        string   `json:"error"`
	Message      string   `json:"message"`
}

// ParseWorkerUpdate decodes a worker JSON body. Percent accepts fractional
// values, is clamped to [0,100] and truncated to an integer.
func ParseWorkerUpdate(body []byte) (*WorkerUpdate, error) {
	var wire workerUpdateWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("invalid worker update: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid worker update: %w", err)
	}

	u := &WorkerUpdate{
		Status:       ParseJobStatus(wire.Status),
		VideoURL:     wire.VideoURL,
		Thumbnail:    wire.Thumbnail,
		Thumbnails:   wire.Thumbnails,
		PublicHLSURL: wire.PublicHLSURL,
		StreamURL:    wire.StreamURL,
		Error:        wire.Error,
		Message:      wire.Message,
		Raw:          raw,
	}
	if wire.Percent != nil && !math.IsNaN(*wire.Percent) {
		// clamp before converting; out-of-range floats have no defined int value
		p := int(math.Max(0, math.Min(100, *wire.Percent)))
		u.Percent = &p
	}
	return u, nil
}

// UnmarshalJSON lets a WorkerUpdate be decoded directly from a request body.
func (u *WorkerUpdate) UnmarshalJSON(data []byte) error {
	parsed, err := ParseWorkerUpdate(data)
	if err != nil {
		return err
	}
	*u = *parsed
	return nil
}

// ResultPayload builds the result written on completion. Streams report their
// playback location as public_hls_url.
func (u *WorkerUpdate) ResultPayload() *ResultPayload {
	videoURL := u.VideoURL
	if videoURL == "" {
		videoURL = u.PublicHLSURL
	}
	thumbnails := u.Thumbnails
	if thumbnails == nil {
		thumbnails = []string{}
	}
	return &ResultPayload{
		VideoURL:     videoURL,
		ThumbnailURL: u.Thumbnail,
		Thumbnails:   thumbnails,
		StreamURL:    u.StreamURL,
	}
}

// FailureMessage returns the error text carried by the update.
func (u *WorkerUpdate) FailureMessage() string {
	if u.Error != "" {
		return u.Error
	}
	return u.Message
}

// IntPtr is a convenience for building updates.
func IntPtr(v int) *int {
	return &v
}
