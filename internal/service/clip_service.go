package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/store"
)

// ClipService handles clip generation jobs
type ClipService struct {
	store         store.JobStore
	client        client.ProcessingClient
	reconciler    *lifecycle.Reconciler
	refresh       RefreshScheduler
	publicBaseURL string
	now           func() time.Time
}

func NewClipService(jobStore store.JobStore, processingClient client.ProcessingClient, reconciler *lifecycle.Reconciler, publicBaseURL string) *ClipService {
	return &ClipService{
		store:         jobStore,
		client:        processingClient,
		reconciler:    reconciler,
		publicBaseURL: publicBaseURL,
		now:           time.Now,
	}
}

// WithRefresh enables background progress refresh for newly submitted clips.
func (s *ClipService) WithRefresh(r RefreshScheduler) *ClipService {
	s.refresh = r
	return s
}

// Generate records a clip job and submits it to the clip AI server. A rejected
// submission leaves the record failed and returns the submission error.
func (s *ClipService) Generate(ctx context.Context, ownerID string, req *model.ClipGenerateRequest) (*model.ClipGenerateResponse, error) {
	details := newClipDetails(req)
	if details.StreamURL == "" {
		details.StreamURL = s.sourceURL(ctx, req.StreamID)
	}

	job := model.NewProcessingJob(uuid.New().String(), model.JobKindClip, s.now())
	job.ParentID = details.StreamID
	job.OwnerID = ownerID
	job.Clip = details

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save clip: %w", err)
	}

	webhookURL := s.publicBaseURL + "/api/clips/webhook/" + job.RecordID
	resp, err := s.client.SubmitClip(ctx, &client.ClipSubmitRequest{
		StreamID: details.StreamID,
		Sports:   details.Sports,
		TrimManual: client.TrimManual{
			StreamURL:  details.StreamURL,
			StartTime:  client.FormatTimestamp(details.StartTime),
			EndTime:    client.FormatTimestamp(details.EndTime),
			WebhookURL: webhookURL,
		},
		VideoURLsSingleCMS:  details.StreamURL,
		WebhookURLSingleCMS: webhookURL,
		AspectRatio:         details.AspectRatio,
	})
	if err != nil {
		markSubmissionFailed(ctx, s.reconciler, model.JobKindClip, job.RecordID, err)
		return nil, err
	}

	attached, err := attachJobID(ctx, s.store, job.RecordID, resp.JobID)
	if err != nil {
		markSubmissionFailed(ctx, s.reconciler, model.JobKindClip, job.RecordID, err)
		return nil, err
	}

	if s.refresh != nil {
		if err := s.refresh.ScheduleRefresh(ctx, model.JobKindClip, resp.JobID); err != nil {
			log.Warn("failed to schedule clip refresh", "clipId", job.RecordID, "err", err)
		}
	}

	return &model.ClipGenerateResponse{
		ClipID:   attached.RecordID,
		JobID:    attached.JobID,
		Status:   string(attached.Status),
		StreamID: details.StreamID,
		Created:  attached.CreatedAt,
	}, nil
}

// Get returns the clip record
func (s *ClipService) Get(ctx context.Context, clipID string) (*model.ProcessingJob, error) {
	return getRecord(ctx, s.store, model.JobKindClip, clipID)
}

// List returns one page of the clips cut from a stream, newest first
func (s *ClipService) List(ctx context.Context, q *model.ClipListQuery) (*model.ClipListResponse, error) {
	page, limit, offset := listWindow(q.Page, q.Limit)

	clips, total, err := s.store.List(ctx, store.ListQuery{
		Kind:     model.JobKindClip,
		ParentID: q.StreamID,
		Status:   q.Status,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}

	return &model.ClipListResponse{
		Clips:      clips,
		Pagination: pagination(page, limit, total),
	}, nil
}

// ApplyWebhook applies a worker callback addressed to the clip record.
func (s *ClipService) ApplyWebhook(ctx context.Context, clipID string, u *model.WorkerUpdate) (*model.ProcessingJob, error) {
	return s.reconciler.ApplyByRecordID(ctx, model.JobKindClip, clipID, u, model.ChannelWebhook)
}

// Cancel stops tracking a clip that has not finished
func (s *ClipService) Cancel(ctx context.Context, clipID string) (*model.ProcessingJob, error) {
	return s.reconciler.Cancel(ctx, model.JobKindClip, clipID)
}

// sourceURL resolves the playback location of a tracked stream.
func (s *ClipService) sourceURL(ctx context.Context, streamID string) string {
	stream, err := s.store.GetByJobID(ctx, model.JobKindStream, streamID)
	if err != nil || stream.Stream == nil {
		return ""
	}
	if stream.Stream.HLSURL != "" {
		return stream.Stream.HLSURL
	}
	if stream.Stream.PlaybackURL != "" {
		return stream.Stream.PlaybackURL
	}
	return stream.Stream.URL
}

func newClipDetails(req *model.ClipGenerateRequest) *model.ClipDetails {
	d := &model.ClipDetails{
		StreamID:    req.StreamID,
		Title:       req.Title,
		Speed:       1,
		Rating:      1,
		Tags:        req.Tags,
		AspectRatio: req.AspectRatio,
		Sports:      req.Sports,
		StreamURL:   req.StreamURL,
	}
	if req.StartTime != nil {
		d.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		d.EndTime = *req.EndTime
	}
	d.Duration = d.EndTime - d.StartTime
	if req.Speed != nil {
		d.Speed = *req.Speed
	}
	if req.Rating != nil {
		d.Rating = *req.Rating
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.AspectRatio == "" {
		d.AspectRatio = model.AspectRatio16x9
	}
	return d
}

// attachJobID records the worker job id on a freshly submitted record.
func attachJobID(ctx context.Context, jobStore store.JobStore, recordID, jobID string) (*model.ProcessingJob, error) {
	job, err := jobStore.Update(ctx, recordID, func(j *model.ProcessingJob) error {
		j.JobID = jobID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach job id %s: %w", jobID, err)
	}
	return job, nil
}

// markSubmissionFailed moves a record whose submission was rejected to failed,
// keeping the upstream message as the cause.
func markSubmissionFailed(ctx context.Context, reconciler *lifecycle.Reconciler, kind model.JobKind, recordID string, cause error) {
	msg := cause.Error()
	var subErr *client.RemoteSubmissionError
	if errors.As(cause, &subErr) && subErr.Message != "" {
		msg = subErr.Message
	}

	log.Error("AI submission failed", "kind", kind, "recordId", recordID, "err", cause)

	u := &model.WorkerUpdate{Status: model.JobStatusFailed, Error: msg}
	if _, err := reconciler.ApplyByRecordID(ctx, kind, recordID, u, model.ChannelAdmin); err != nil {
		log.Error("failed to mark job failed", "recordId", recordID, "err", err)
	}
}

func getRecord(ctx context.Context, jobStore store.JobStore, kind model.JobKind, recordID string) (*model.ProcessingJob, error) {
	job, err := jobStore.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: kind, ID: recordID}
		}
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	if job.Kind != kind {
		return nil, &NotFoundError{Kind: kind, ID: recordID}
	}
	return job, nil
}
