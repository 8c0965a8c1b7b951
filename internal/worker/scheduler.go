package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/zentag/api/internal/model"
)

// QueueRefresh is the asynq queue refresh tasks run on.
const QueueRefresh = "refresh"

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler queues delayed refresh tasks.
type AsynqScheduler struct {
	client      Enqueuer
	interval    time.Duration
	maxAttempts int
}

func NewAsynqScheduler(client Enqueuer, interval time.Duration, maxAttempts int) *AsynqScheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 40
	}
	return &AsynqScheduler{
		client:      client,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// ScheduleRefresh queues the first refresh of a submitted job.
func (s *AsynqScheduler) ScheduleRefresh(ctx context.Context, kind model.JobKind, jobID string) error {
	return s.enqueue(ctx, RefreshPayload{Kind: kind, JobID: jobID})
}

// next queues the attempt after p, reporting false once attempts run out.
func (s *AsynqScheduler) next(ctx context.Context, p RefreshPayload) bool {
	p.Attempt++
	if p.Attempt >= s.maxAttempts {
		return false
	}
	if err := s.enqueue(ctx, p); err != nil {
		log.Error("failed to requeue refresh", "jobId", p.JobID, "attempt", p.Attempt, "err", err)
	}
	return true
}

func (s *AsynqScheduler) enqueue(ctx context.Context, p RefreshPayload) error {
	task, err := NewRefreshTask(p)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRefresh),
		asynq.ProcessIn(s.interval),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
