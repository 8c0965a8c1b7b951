package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/service"
)

const TaskTypeRefresh = "job:refresh"

// RefreshPayload identifies the job a refresh task polls.
type RefreshPayload struct {
	Kind    model.JobKind `json:"kind"`
	JobID   string        `json:"jobId"`
	Attempt int           `json:"attempt"`
}

func NewRefreshTask(p RefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRefresh, data), nil
}

// StatusReader is the progress query path a refresh goes through.
type StatusReader interface {
	GetStatus(ctx context.Context, kind model.JobKind, jobID string) (*model.StatusView, error)
}

// RefreshWorker polls unfinished jobs in the background so their records move
// forward even when nobody queries them and webhooks are lost.
type RefreshWorker struct {
	progress  StatusReader
	scheduler *AsynqScheduler
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(progress StatusReader, scheduler *AsynqScheduler) *RefreshWorker {
	return &RefreshWorker{
		progress:  progress,
		scheduler: scheduler,
	}
}

// ProcessTask handles one refresh attempt
func (w *RefreshWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal refresh payload: %v: %w", err, asynq.SkipRetry)
	}

	view, err := w.progress.GetStatus(ctx, p.Kind, p.JobID)
	if err != nil {
		var nf *service.NotFoundError
		if errors.As(err, &nf) {
			log.Warn("refresh for unknown job", "kind", p.Kind, "jobId", p.JobID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if view.Status.IsTerminal() {
		log.Debug("refresh finished", "kind", p.Kind, "jobId", p.JobID, "status", view.Status, "attempt", p.Attempt)
		return nil
	}

	if !w.scheduler.next(ctx, p) {
		log.Warn("refresh attempts exhausted", "kind", p.Kind, "jobId", p.JobID, "progress", view.Progress)
	}
	return nil
}
