package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zentag/api/internal/model"
)

const pgUniqueViolation = "23505"

// Schema creates the processing_jobs table. Safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS processing_jobs (
	record_id  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	job_id     TEXT,
	parent_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	revision   BIGINT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS processing_jobs_job_id_idx ON processing_jobs (kind, job_id) WHERE job_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS processing_jobs_parent_idx ON processing_jobs (kind, parent_id, created_at DESC);
`

// PostgresStore keeps records in a single table; Update is a compare-and-swap
// on the revision column.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxRetries int
	now        func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool, maxRetries int) *PostgresStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &PostgresStore{pool: pool, maxRetries: maxRetries, now: time.Now}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func nullableJobID(jobID string) *string {
	if jobID == "" {
		return nil
	}
	return &jobID
}

func (s *PostgresStore) Create(ctx context.Context, job *model.ProcessingJob) error {
	stored := job.Clone()
	stored.Revision = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	const q = `
INSERT INTO processing_jobs (record_id, kind, job_id, parent_id, status, revision, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = s.pool.Exec(ctx, q,
		stored.RecordID,
		string(stored.Kind),
		nullableJobID(stored.JobID),
		stored.ParentID,
		string(stored.Status),
		stored.Revision,
		data,
		stored.CreatedAt,
		stored.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "processing_jobs_job_id_idx" {
				return ErrJobIDAssigned
			}
			return ErrExists
		}
		return err
	}

	job.Revision = stored.Revision
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID string) (*model.ProcessingJob, error) {
	const q = `SELECT data FROM processing_jobs WHERE record_id = $1;`
	return s.queryOne(ctx, q, recordID)
}

func (s *PostgresStore) GetByJobID(ctx context.Context, kind model.JobKind, jobID string) (*model.ProcessingJob, error) {
	const q = `SELECT data FROM processing_jobs WHERE kind = $1 AND job_id = $2;`
	return s.queryOne(ctx, q, string(kind), jobID)
}

func (s *PostgresStore) queryOne(ctx context.Context, q string, args ...any) (*model.ProcessingJob, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func (s *PostgresStore) Update(ctx context.Context, recordID string, fn UpdateFunc) (*model.ProcessingJob, error) {
	const q = `
UPDATE processing_jobs
SET job_id = $3, status = $4, revision = $5, data = $6, updated_at = $7
WHERE record_id = $1 AND revision = $2;
`

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.Get(ctx, recordID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		if err := checkJobID(current, next); err != nil {
			return nil, err
		}

		next.RecordID = current.RecordID
		next.Revision = current.Revision + 1
		next.UpdatedAt = s.now()
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job: %w", err)
		}

		tag, err := s.pool.Exec(ctx, q,
			recordID,
			current.Revision,
			nullableJobID(next.JobID),
			string(next.Status),
			next.Revision,
			data,
			next.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return nil, ErrJobIDAssigned
			}
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		return next, nil
	}

	return nil, ErrConflict
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]*model.ProcessingJob, int, error) {
	const countQ = `
SELECT count(*) FROM processing_jobs
WHERE kind = $1 AND parent_id = $2 AND ($3 = '' OR status = $3);
`
	var total int
	if err := s.pool.QueryRow(ctx, countQ, string(q.Kind), q.ParentID, string(q.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = total
	}
	const listQ = `
SELECT data FROM processing_jobs
WHERE kind = $1 AND parent_id = $2 AND ($3 = '' OR status = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5;
`
	rows, err := s.pool.Query(ctx, listQ, string(q.Kind), q.ParentID, string(q.Status), limit, max(q.Offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := []*model.ProcessingJob{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, err
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
