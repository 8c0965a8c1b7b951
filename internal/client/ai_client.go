package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zentag/api/internal/config"
	"github.com/zentag/api/internal/model"
)

// maxErrorBody caps how much of an upstream error body is kept in messages.
const maxErrorBody = 512

// ProcessingClient defines the interface for the AI processing services
type ProcessingClient interface {
	SubmitClip(ctx context.Context, req *ClipSubmitRequest) (*SubmitResponse, error)
	SubmitStream(ctx context.Context, req *StreamSubmitRequest) (*SubmitResponse, error)
	Poll(ctx context.Context, kind model.JobKind, jobID string) (*model.WorkerUpdate, error)
}

// AIClient implements ProcessingClient over HTTP. Clips and streams are handled
// by two separate AI servers.
type AIClient struct {
	httpClient    *http.Client
	clipURL       string
	streamURL     string
	submitTimeout time.Duration
	pollTimeout   time.Duration
}

// ClipSubmitRequest is the trim request accepted by /process_video
type ClipSubmitRequest struct {
	StreamID            string     `json:"stream_id"`
	Sports              string     `json:"sports"`
	JoinClip            any        `json:"join_clip"`
	Graphics            any        `json:"graphics"`
	Overlay             any        `json:"overlay"`
	TrimManual          TrimManual `json:"trim_manual"`
	VideoURLsSingleCMS  string     `json:"video_urls_single_cms"`
	WebhookURLSingleCMS string     `json:"webhook_url_single_cms"`
	AspectRatio         string     `json:"aspect_ratio"`
}

// TrimManual is the time range and callback of a clip submission
type TrimManual struct {
	StreamURL  string `json:"stream_url"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	WebhookURL string `json:"webhook_url"`
}

// StreamSubmitRequest is the ingestion request accepted by /start_stream
type StreamSubmitRequest struct {
	StreamID  string `json:"stream_id"`
	InputType string `json:"input_type"`
	VideoType string `json:"video_type"`
	InputURL  string `json:"input_url"`
	Language  string `json:"language"`
}

// SubmitResponse is the AI service answer to a submission
type SubmitResponse struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	StreamID     string `json:"stream_id,omitempty"`
	PublicHLSURL string `json:"public_hls_url,omitempty"`
	StreamURL    string `json:"stream_url,omitempty"`
}

// NewAIClient creates a new AI service client
func NewAIClient(cfg *config.AIConfig) *AIClient {
	submitTimeout := cfg.SubmitTimeout()
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	pollTimeout := cfg.ProgressTimeout()
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return &AIClient{
		httpClient:    &http.Client{},
		clipURL:       strings.TrimRight(cfg.ClipURL, "/"),
		streamURL:     strings.TrimRight(cfg.StreamURL, "/"),
		submitTimeout: submitTimeout,
		pollTimeout:   pollTimeout,
	}
}

// SubmitClip sends a trim request to the clip AI server
func (c *AIClient) SubmitClip(ctx context.Context, req *ClipSubmitRequest) (*SubmitResponse, error) {
	var result SubmitResponse
	if err := c.submit(ctx, c.clipURL+"/process_video", req, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		return nil, &RemoteSubmissionError{Message: "response carried no job_id"}
	}
	return &result, nil
}

// SubmitStream sends an ingestion request to the stream AI server. The stream
// server keys its jobs by stream_id, which stands in when no job_id is returned.
func (c *AIClient) SubmitStream(ctx context.Context, req *StreamSubmitRequest) (*SubmitResponse, error) {
	var result SubmitResponse
	if err := c.submit(ctx, c.streamURL+"/start_stream", req, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		result.JobID = req.StreamID
	}
	return &result, nil
}

// Poll fetches the current progress of a submitted job
func (c *AIClient) Poll(ctx context.Context, kind model.JobKind, jobID string) (*model.WorkerUpdate, error) {
	base := c.clipURL
	if kind == model.JobKindStream {
		base = c.streamURL
	}
	endpoint := base + "/progress?job_id=" + url.QueryEscape(jobID)

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &RemoteUnavailableError{JobID: jobID, Err: err}
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, &RemoteUnavailableError{JobID: jobID, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &RemoteUnavailableError{
			JobID: jobID,
			Err:   fmt.Errorf("unexpected status %d: %s", status, truncate(body)),
		}
	}

	update, err := model.ParseWorkerUpdate(body)
	if err != nil {
		return nil, &RemoteUnavailableError{JobID: jobID, Err: err}
	}
	return update, nil
}

// submit POSTs a JSON body under the submit timeout
func (c *AIClient) submit(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return &RemoteSubmissionError{Message: "failed to marshal request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return &RemoteSubmissionError{Message: "failed to create request", Err: err}
	}

	status, respBody, err := c.do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout of %s exceeded", c.submitTimeout)
		}
		return &RemoteSubmissionError{Message: msg, Err: err}
	}
	if status < 200 || status >= 300 {
		return &RemoteSubmissionError{StatusCode: status, Message: upstreamMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &RemoteSubmissionError{StatusCode: status, Message: "failed to unmarshal response", Err: err}
	}
	return nil
}

// do executes an HTTP request and reads the whole response
func (c *AIClient) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Content-Type", "application/json")

	log.Debugf("[AI Server] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("[AI Server] ✗ %s %s: request failed: %v", req.Method, req.URL.String(), err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("[AI Server] ✗ %s %s: failed to read response: %v", req.Method, req.URL.String(), err)
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Debugf("[AI Server] ← %d %s %s %s", resp.StatusCode, req.Method, req.URL.String(), truncate(respBody))
	return resp.StatusCode, respBody, nil
}

// IsConfigured returns true if both AI servers have an address
func (c *AIClient) IsConfigured() bool {
	return c.clipURL != "" && c.streamURL != ""
}

// upstreamMessage extracts a readable message from an error body
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, m := range []string{parsed.Message, parsed.Error, parsed.Detail} {
			if m != "" {
				return m
			}
		}
	}
	return truncate(body)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "…"
	}
	return string(b)
}

// FormatTimestamp renders seconds as HH:MM:SS for trim requests
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
