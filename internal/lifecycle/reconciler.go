// Package lifecycle owns the processing-job state machine. Webhook pushes, poll
// results and administrative cancels all pass through one serialized apply
// path so the precedence rules hold regardless of where an update came from.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/store"
)

var errKindMismatch = errors.New("job kind mismatch")

// Notifier receives an event after a committed write moved status or progress.
type Notifier interface {
	Notify(ctx context.Context, event model.JobEvent)
}

// Reconciler applies worker updates to stored records.
type Reconciler struct {
	store     store.JobStore
	notifiers []Notifier
	now       func() time.Time
}

func NewReconciler(jobStore store.JobStore, notifiers ...Notifier) *Reconciler {
	return &Reconciler{
		store:     jobStore,
		notifiers: notifiers,
		now:       time.Now,
	}
}

// ApplyByJobID applies u to the record correlated with the worker job id.
func (r *Reconciler) ApplyByJobID(ctx context.Context, kind model.JobKind, jobID string, u *model.WorkerUpdate, ch model.Channel) (*model.ProcessingJob, error) {
	if jobID == "" {
		return nil, r.unknown("", ch)
	}

	job, err := r.store.GetByJobID(ctx, kind, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.unknown(jobID, ch)
		}
		return nil, err
	}

	return r.apply(ctx, kind, job.RecordID, u, ch)
}

// ApplyByRecordID applies u to the record with our own id. Callback addresses
// carry the record id because they are handed out before a job id exists.
func (r *Reconciler) ApplyByRecordID(ctx context.Context, kind model.JobKind, recordID string, u *model.WorkerUpdate, ch model.Channel) (*model.ProcessingJob, error) {
	if recordID == "" {
		return nil, r.unknown("", ch)
	}
	return r.apply(ctx, kind, recordID, u, ch)
}

// Cancel moves a non-terminal record to cancelled.
func (r *Reconciler) Cancel(ctx context.Context, kind model.JobKind, recordID string) (*model.ProcessingJob, error) {
	u := &model.WorkerUpdate{Status: model.JobStatusCancelled}
	job, outcome, err := r.applyOutcome(ctx, kind, recordID, u, model.ChannelAdmin)
	if err != nil {
		return nil, err
	}
	if outcome.Absorbed {
		return job, ErrAlreadyTerminal
	}
	return job, nil
}

func (r *Reconciler) apply(ctx context.Context, kind model.JobKind, recordID string, u *model.WorkerUpdate, ch model.Channel) (*model.ProcessingJob, error) {
	job, _, err := r.applyOutcome(ctx, kind, recordID, u, ch)
	return job, err
}

func (r *Reconciler) applyOutcome(ctx context.Context, kind model.JobKind, recordID string, u *model.WorkerUpdate, ch model.Channel) (*model.ProcessingJob, Outcome, error) {
	var outcome Outcome

	job, err := r.store.Update(ctx, recordID, func(j *model.ProcessingJob) error {
		if j.Kind != kind {
			return errKindMismatch
		}
		// recomputed on every CAS attempt; only the committed one survives
		outcome = Reconcile(j, u, ch, r.now())
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, errKindMismatch) {
			return nil, outcome, r.unknown(recordID, ch)
		}
		return nil, outcome, err
	}

	if outcome.Absorbed {
		log.Debug("update absorbed by terminal job", "recordId", job.RecordID, "jobId", job.JobID, "status", job.Status, "channel", ch)
	}
	if outcome.Changed() {
		log.Info("job updated", "recordId", job.RecordID, "jobId", job.JobID, "status", job.Status, "progress", job.Progress, "channel", ch)
		r.notify(ctx, job, ch)
	}

	return job, outcome, nil
}

func (r *Reconciler) notify(ctx context.Context, job *model.ProcessingJob, ch model.Channel) {
	if len(r.notifiers) == 0 {
		return
	}
	event := model.JobEvent{
		RecordID: job.RecordID,
		JobID:    job.JobID,
		Kind:     job.Kind,
		Status:   job.Status,
		Progress: job.Progress,
		Channel:  ch,
		At:       r.now().Unix(),
	}
	if job.Status == model.JobStatusCompleted {
		event.Result = job.Result
	}
	if job.Status == model.JobStatusFailed {
		event.Error = job.ErrorMessage()
	}
	for _, n := range r.notifiers {
		n.Notify(ctx, event)
	}
}

func (r *Reconciler) unknown(key string, ch model.Channel) error {
	log.Warn("dropping update for unknown job", "key", key, "channel", ch)
	return &UnknownJobError{Key: key}
}
