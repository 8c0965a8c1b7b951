// Package store persists ProcessingJob records.
//
// Every implementation gives Update read-modify-write atomicity on a single
// record: fn always sees the latest committed revision, and a write computed
// from a stale snapshot is never committed.
package store

import (
	"context"
	"errors"

	"github.com/zentag/api/internal/model"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrConflict      = errors.New("job update conflict")
	ErrJobIDAssigned = errors.New("job id already assigned")
	ErrExists        = errors.New("job already exists")
)

// DefaultMaxRetries bounds optimistic update attempts.
const DefaultMaxRetries = 10

// UpdateFunc mutates job in place. Returning an error aborts the write.
type UpdateFunc func(job *model.ProcessingJob) error

// ListQuery selects records of one kind grouped under ParentID, newest first.
type ListQuery struct {
	Kind     model.JobKind
	ParentID string
	Status   model.JobStatus
	Offset   int
	Limit    int
}

// JobStore is the durable record store.
type JobStore interface {
	Create(ctx context.Context, job *model.ProcessingJob) error
	Get(ctx context.Context, recordID string) (*model.ProcessingJob, error)
	GetByJobID(ctx context.Context, kind model.JobKind, jobID string) (*model.ProcessingJob, error)
	Update(ctx context.Context, recordID string, fn UpdateFunc) (*model.ProcessingJob, error)
	List(ctx context.Context, q ListQuery) ([]*model.ProcessingJob, int, error)
	Ping(ctx context.Context) error
}

// checkJobID enforces that a job id, once set, is never replaced.
func checkJobID(before, after *model.ProcessingJob) error {
	if before.JobID != "" && after.JobID != before.JobID {
		return ErrJobIDAssigned
	}
	return nil
}

// paginate applies offset/limit to an already filtered slice.
func paginate(jobs []*model.ProcessingJob, offset, limit int) []*model.ProcessingJob {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return []*model.ProcessingJob{}
	}
	end := len(jobs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return jobs[offset:end]
}
