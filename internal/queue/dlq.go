package queue

import (
	"context"

	"go.uber.org/zap"
)

// ListFailed returns dead-lettered jobs, newest first. A non-empty orgID
// restricts the listing to that organization's jobs; the empty string is
// the unscoped operator view. Job records whose retention TTL has elapsed
// are skipped and pruned from the list.
func (q *Queue) ListFailed(ctx context.Context, orgID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.LRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, limit)
	for _, id := range ids {
		if len(jobs) == limit {
			break
		}
		job, err := q.GetJob(ctx, id)
		if err == ErrJobNotFound {
			q.client.LRem(ctx, q.failedKey(), 0, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if orgID != "" && job.OrgID != orgID {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RetryFailed re-schedules one dead-lettered job. The attempt budget resets;
// the job keeps its identity, payload, and correlation ID. A job owned by a
// different organization is reported as not found, so callers cannot tell
// another tenant's job IDs from nonexistent ones.
func (q *Queue) RetryFailed(ctx context.Context, orgID, id string) error {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State != StateFailed {
		return ErrJobNotFound
	}
	if orgID != "" && job.OrgID != orgID {
		return ErrJobNotFound
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.failedKey(), 0, id)
	pipe.HSet(ctx, q.jobKey(id),
		"state", string(StateWaiting),
		"attempts", 0,
		"failed_reason", "",
		"progress", 0,
	)
	pipe.Persist(ctx, q.jobKey(id))
	pipe.LPush(ctx, q.pendingKey(job.Priority), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	q.log.Info("failed job re-scheduled", zap.String("job_id", id))
	return nil
}

// RetryAllFailed drains the caller's dead letters back onto the pending
// lists and reports how many jobs were re-scheduled. Other organizations'
// jobs stay on the failed list untouched.
func (q *Queue) RetryAllFailed(ctx context.Context, orgID string) (int, error) {
	ids, err := q.client.LRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			q.client.LRem(ctx, q.failedKey(), 0, id)
			continue
		}
		if orgID != "" && job.OrgID != orgID {
			continue
		}
		// A zero removal count means a concurrent retry already took it.
		removed, err := q.client.LRem(ctx, q.failedKey(), 0, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.jobKey(id),
			"state", string(StateWaiting),
			"attempts", 0,
			"failed_reason", "",
			"progress", 0,
		)
		pipe.Persist(ctx, q.jobKey(id))
		pipe.LPush(ctx, q.pendingKey(job.Priority), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return retried, err
		}
		retried++
	}

	if retried > 0 {
		q.log.Info("dead-letter list drained", zap.Int("retried", retried))
	}
	return retried, nil
}
