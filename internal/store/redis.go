package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zentag/api/internal/model"
)

// RedisStore keeps each record as a JSON blob under job:<recordId>, a
// job:ref:<kind>:<jobId> pointer for correlation lookups, and a sorted set per
// listing group scored by creation time. Update uses WATCH/MULTI and retries
// when another writer commits first.
type RedisStore struct {
	redis      *redis.Client
	maxRetries int
	now        func() time.Time
}

func NewRedisStore(redisClient *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RedisStore{
		redis:      redisClient,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func jobKey(recordID string) string {
	return fmt.Sprintf("job:%s", recordID)
}

func jobRefKey(kind model.JobKind, jobID string) string {
	return fmt.Sprintf("job:ref:%s:%s", kind, jobID)
}

func listKey(kind model.JobKind, parentID string) string {
	return fmt.Sprintf("jobs:%s:%s", kind, parentID)
}

func (s *RedisStore) Create(ctx context.Context, job *model.ProcessingJob) error {
	stored := job.Clone()
	stored.Revision = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, jobKey(job.RecordID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return ErrExists
	}

	pipe := s.redis.TxPipeline()
	if job.JobID != "" {
		pipe.Set(ctx, jobRefKey(job.Kind, job.JobID), job.RecordID, 0)
	}
	pipe.ZAdd(ctx, listKey(job.Kind, job.ParentID), redis.Z{
		Score:  float64(job.CreatedAt.UnixMicro()),
		Member: job.RecordID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}

	job.Revision = stored.Revision
	return nil
}

func (s *RedisStore) Get(ctx context.Context, recordID string) (*model.ProcessingJob, error) {
	data, err := s.redis.Get(ctx, jobKey(recordID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func (s *RedisStore) GetByJobID(ctx context.Context, kind model.JobKind, jobID string) (*model.ProcessingJob, error) {
	recordID, err := s.redis.Get(ctx, jobRefKey(kind, jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, recordID)
}

func (s *RedisStore) Update(ctx context.Context, recordID string, fn UpdateFunc) (*model.ProcessingJob, error) {
	key := jobKey(recordID)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var updated *model.ProcessingJob

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNotFound
				}
				return err
			}

			current, err := decodeJob(data)
			if err != nil {
				return err
			}
			next := current.Clone()
			if err := fn(next); err != nil {
				return err
			}
			if err := checkJobID(current, next); err != nil {
				return err
			}

			attach := next.JobID != "" && current.JobID == ""
			refKey := jobRefKey(next.Kind, next.JobID)
			if attach {
				// a concurrent attach of the same job id must abort this transaction
				if err := tx.Watch(ctx, refKey).Err(); err != nil {
					return err
				}
				owner, err := tx.Get(ctx, refKey).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if owner != "" && owner != current.RecordID {
					return ErrJobIDAssigned
				}
			}

			next.RecordID = current.RecordID
			next.Revision = current.Revision + 1
			next.UpdatedAt = s.now()
			out, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal job: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, 0)
				if attach {
					pipe.Set(ctx, refKey, current.RecordID, 0)
				}
				return nil
			})
			if err != nil {
				return err
			}
			updated = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, ErrConflict
}

func (s *RedisStore) List(ctx context.Context, q ListQuery) ([]*model.ProcessingJob, int, error) {
	ids, err := s.redis.ZRevRange(ctx, listKey(q.Kind, q.ParentID), 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []*model.ProcessingJob{}, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*model.ProcessingJob, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		job, err := decodeJob([]byte(str))
		if err != nil {
			return nil, 0, err
		}
		if q.Status != "" && job.Status != q.Status {
			continue
		}
		matched = append(matched, job)
	}

	return paginate(matched, q.Offset, q.Limit), len(matched), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func decodeJob(data []byte) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
