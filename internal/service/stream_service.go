package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/store"
)

// Stream ingestion defaults sent to the stream AI server
const (
	streamInputType = "recorded"
	streamVideoType = "hls"
	streamLanguage  = "eng"
	streamCategory  = "others"
)

// StreamService handles stream ingestion jobs
type StreamService struct {
	store      store.JobStore
	client     client.ProcessingClient
	reconciler *lifecycle.Reconciler
	refresh    RefreshScheduler
	now        func() time.Time
}

func NewStreamService(jobStore store.JobStore, processingClient client.ProcessingClient, reconciler *lifecycle.Reconciler) *StreamService {
	return &StreamService{
		store:      jobStore,
		client:     processingClient,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// WithRefresh enables background progress refresh for newly submitted streams.
func (s *StreamService) WithRefresh(r RefreshScheduler) *StreamService {
	s.refresh = r
	return s
}

// Create records a stream and starts ingestion. A rejected submission does not
// fail the request; the stream is returned in the failed state.
func (s *StreamService) Create(ctx context.Context, ownerID string, req *model.StreamCreateRequest) (*model.ProcessingJob, error) {
	details := &model.StreamDetails{
		StreamID:        newStreamID(),
		Title:           req.Title,
		URL:             req.URL,
		Category:        req.Category,
		IsLive:          req.IsLive,
		VideoType:       req.VideoType,
		CompetitionType: req.CompetitionType,
		Language:        req.Language,
	}
	if details.Category == "" {
		details.Category = streamCategory
	}
	if details.Language == "" {
		details.Language = streamLanguage
	}

	job := model.NewProcessingJob(uuid.New().String(), model.JobKindStream, s.now())
	job.ParentID = ownerID
	job.OwnerID = ownerID
	job.Stream = details

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save stream: %w", err)
	}

	resp, err := s.client.SubmitStream(ctx, &client.StreamSubmitRequest{
		StreamID:  details.StreamID,
		InputType: streamInputType,
		VideoType: streamVideoType,
		InputURL:  details.URL,
		Language:  details.Language,
	})
	if err != nil {
		markSubmissionFailed(ctx, s.reconciler, model.JobKindStream, job.RecordID, err)
		return s.store.Get(ctx, job.RecordID)
	}

	attached, err := s.store.Update(ctx, job.RecordID, func(j *model.ProcessingJob) error {
		j.JobID = resp.JobID
		if resp.PublicHLSURL != "" {
			j.Stream.PlaybackURL = resp.PublicHLSURL
			j.Stream.HLSURL = resp.PublicHLSURL
		}
		if resp.StreamURL != "" {
			j.Stream.HLSURL = resp.StreamURL
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to attach job id %s: %w", resp.JobID, err)
		markSubmissionFailed(ctx, s.reconciler, model.JobKindStream, job.RecordID, err)
		return nil, err
	}

	if s.refresh != nil {
		if err := s.refresh.ScheduleRefresh(ctx, model.JobKindStream, resp.JobID); err != nil {
			log.Warn("failed to schedule stream refresh", "streamId", details.StreamID, "err", err)
		}
	}

	log.Info("stream created", "recordId", attached.RecordID, "streamId", details.StreamID, "jobId", attached.JobID)
	return attached, nil
}

// Get returns the stream record
func (s *StreamService) Get(ctx context.Context, recordID string) (*model.ProcessingJob, error) {
	return getRecord(ctx, s.store, model.JobKindStream, recordID)
}

// List returns one page of the streams owned by a user, newest first
func (s *StreamService) List(ctx context.Context, q *model.StreamListQuery) (*model.StreamListResponse, error) {
	page, limit, offset := listWindow(q.Page, q.Limit)

	streams, total, err := s.store.List(ctx, store.ListQuery{
		Kind:     model.JobKindStream,
		ParentID: q.OwnerID,
		Status:   q.Status,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	return &model.StreamListResponse{
		Streams:    streams,
		Pagination: pagination(page, limit, total),
	}, nil
}

// ApplyWebhook applies a stream AI status callback. The stream server
// identifies its jobs by stream_id.
func (s *StreamService) ApplyWebhook(ctx context.Context, streamID string, u *model.WorkerUpdate) (*model.ProcessingJob, error) {
	return s.reconciler.ApplyByJobID(ctx, model.JobKindStream, streamID, u, model.ChannelWebhook)
}

// Cancel stops tracking a stream that has not finished
func (s *StreamService) Cancel(ctx context.Context, recordID string) (*model.ProcessingJob, error) {
	return s.reconciler.Cancel(ctx, model.JobKindStream, recordID)
}

func newStreamID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
