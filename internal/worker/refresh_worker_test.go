package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/service"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) payload(t *testing.T, i int) RefreshPayload {
	t.Helper()
	var p RefreshPayload
	if err := json.Unmarshal(f.tasks[i].Payload(), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return p
}

type fakeStatus struct {
	view *model.StatusView
	err  error
}

func (f *fakeStatus) GetStatus(ctx context.Context, kind model.JobKind, jobID string) (*model.StatusView, error) {
	return f.view, f.err
}

func refreshTask(t *testing.T, attempt int) *asynq.Task {
	t.Helper()
	task, err := NewRefreshTask(RefreshPayload{Kind: model.JobKindClip, JobID: "job-1", Attempt: attempt})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestScheduleRefresh(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := NewAsynqScheduler(enq, time.Second, 3)

	if err := s.ScheduleRefresh(context.Background(), model.JobKindStream, "s-1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeRefresh {
		t.Fatalf("expected one refresh task, got %d", len(enq.tasks))
	}
	p := enq.payload(t, 0)
	if p.Kind != model.JobKindStream || p.JobID != "s-1" || p.Attempt != 0 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestRefreshRequeuesUnfinished(t *testing.T) {
	enq := &fakeEnqueuer{}
	status := &fakeStatus{view: &model.StatusView{Status: model.JobStatusProcessing, Progress: 20}}
	w := NewRefreshWorker(status, NewAsynqScheduler(enq, time.Second, 3))

	if err := w.ProcessTask(context.Background(), refreshTask(t, 0)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("expected requeue, got %d tasks", len(enq.tasks))
	}
	if p := enq.payload(t, 0); p.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", p.Attempt)
	}
}

func TestRefreshStopsAtLimit(t *testing.T) {
	enq := &fakeEnqueuer{}
	status := &fakeStatus{view: &model.StatusView{Status: model.JobStatusProcessing}}
	w := NewRefreshWorker(status, NewAsynqScheduler(enq, time.Second, 3))

	if err := w.ProcessTask(context.Background(), refreshTask(t, 2)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(enq.tasks) != 0 {
		t.Errorf("expected no requeue, got %d tasks", len(enq.tasks))
	}
}

func TestRefreshStopsOnTerminal(t *testing.T) {
	enq := &fakeEnqueuer{}
	status := &fakeStatus{view: &model.StatusView{Status: model.JobStatusCompleted, Progress: 100}}
	w := NewRefreshWorker(status, NewAsynqScheduler(enq, time.Second, 3))

	if err := w.ProcessTask(context.Background(), refreshTask(t, 0)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(enq.tasks) != 0 {
		t.Errorf("expected no requeue, got %d tasks", len(enq.tasks))
	}
}

func TestRefreshUnknownJobSkipsRetry(t *testing.T) {
	enq := &fakeEnqueuer{}
	status := &fakeStatus{err: &service.NotFoundError{Kind: model.JobKindClip, ID: "job-1"}}
	w := NewRefreshWorker(status, NewAsynqScheduler(enq, time.Second, 3))

	err := w.ProcessTask(context.Background(), refreshTask(t, 0))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}

func TestRefreshBadPayload(t *testing.T) {
	w := NewRefreshWorker(&fakeStatus{}, NewAsynqScheduler(&fakeEnqueuer{}, time.Second, 3))

	err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeRefresh, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}
