package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zentag/api/internal/model"
)

// MemoryStore keeps records in process. Used by tests and by the "memory"
// store driver for local development.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.ProcessingJob
	byJob map[string]string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*model.ProcessingJob),
		byJob: make(map[string]string),
		now:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.RecordID]; ok {
		return ErrExists
	}
	if job.JobID != "" {
		if _, ok := s.byJob[jobRefKey(job.Kind, job.JobID)]; ok {
			return ErrJobIDAssigned
		}
		s.byJob[jobRefKey(job.Kind, job.JobID)] = job.RecordID
	}

	stored := job.Clone()
	stored.Revision = 1
	s.jobs[job.RecordID] = stored
	job.Revision = stored.Revision
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, recordID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) GetByJobID(ctx context.Context, kind model.JobKind, jobID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordID, ok := s.byJob[jobRefKey(kind, jobID)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.jobs[recordID].Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, recordID string, fn UpdateFunc) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[recordID]
	if !ok {
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkJobID(current, next); err != nil {
		return nil, err
	}
	if next.JobID != "" && current.JobID == "" {
		ref := jobRefKey(next.Kind, next.JobID)
		if owner, taken := s.byJob[ref]; taken && owner != current.RecordID {
			return nil, ErrJobIDAssigned
		}
		s.byJob[ref] = current.RecordID
	}

	// keys always come from the stored record, never from the caller's string
	next.RecordID = current.RecordID
	next.Revision = current.Revision + 1
	next.UpdatedAt = s.now()
	s.jobs[current.RecordID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, q ListQuery) ([]*model.ProcessingJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*model.ProcessingJob
	for _, job := range s.jobs {
		if job.Kind != q.Kind || job.ParentID != q.ParentID {
			continue
		}
		if q.Status != "" && job.Status != q.Status {
			continue
		}
		matched = append(matched, job)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := paginate(matched, q.Offset, q.Limit)
	out := make([]*model.ProcessingJob, 0, len(page))
	for _, job := range page {
		out = append(out, job.Clone())
	}
	return out, len(matched), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
