package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/store"
)

// RefreshScheduler queues a background progress refresh for a submitted job.
type RefreshScheduler interface {
	ScheduleRefresh(ctx context.Context, kind model.JobKind, jobID string) error
}

// ProgressService answers progress queries, polling the AI service for jobs
// that have not finished yet.
type ProgressService struct {
	store      store.JobStore
	client     client.ProcessingClient
	reconciler *lifecycle.Reconciler
}

func NewProgressService(jobStore store.JobStore, processingClient client.ProcessingClient, reconciler *lifecycle.Reconciler) *ProgressService {
	return &ProgressService{
		store:      jobStore,
		client:     processingClient,
		reconciler: reconciler,
	}
}

// GetStatus returns the current view of the job with the given worker job id.
// Terminal jobs are served from the store. When the AI service cannot be
// reached the last stored state is returned without an error.
func (s *ProgressService) GetStatus(ctx context.Context, kind model.JobKind, jobID string) (*model.StatusView, error) {
	job, err := s.store.GetByJobID(ctx, kind, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: kind, ID: jobID}
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status.IsTerminal() {
		return model.NewStatusView(job), nil
	}

	update, err := s.client.Poll(ctx, kind, jobID)
	if err != nil {
		var unavailable *client.RemoteUnavailableError
		if errors.As(err, &unavailable) {
			log.Warn("progress poll failed, serving stored state", "jobId", jobID, "err", unavailable.Err)
			return storedView(job), nil
		}
		return nil, err
	}

	updated, err := s.reconciler.ApplyByJobID(ctx, kind, jobID, update, model.ChannelPoll)
	if err != nil {
		var unknown *lifecycle.UnknownJobError
		if errors.As(err, &unknown) {
			return nil, &NotFoundError{Kind: kind, ID: jobID}
		}
		return nil, fmt.Errorf("failed to apply poll result: %w", err)
	}

	return model.NewStatusView(updated), nil
}

// storedView is the degraded view returned while the AI service is unreachable.
func storedView(job *model.ProcessingJob) *model.StatusView {
	return &model.StatusView{
		Status:   job.Status,
		Progress: job.Progress,
		JobID:    job.JobID,
	}
}

// listWindow normalizes page/limit into an offset window.
func listWindow(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}

func pagination(page, limit, total int) model.Pagination {
	return model.Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}
}
