package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/correlation"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"go.uber.org/zap"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// Config sizes one named queue.
type Config struct {
	Name        string
	Concurrency int
	MaxAttempts int
	BaseBackoff time.Duration
	// CompletedTTL bounds how long finished job records stay readable.
	CompletedTTL time.Duration
	// FailedTTL of zero retains dead-lettered jobs indefinitely.
	FailedTTL time.Duration
	// Priorities is the number of priority levels; 1 is the highest.
	Priorities int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.CompletedTTL <= 0 {
		c.CompletedTTL = 24 * time.Hour
	}
	if c.Priorities <= 0 {
		c.Priorities = 1
	}
	return c
}

// Queue is a redis-backed job queue with priorities, delayed retries and a
// dead-letter list. One Queue value serves both producers and workers.
type Queue struct {
	cfg    Config
	client *redis.Client
	log    *zap.Logger
}

func New(cfg Config, client *redis.Client, log *zap.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:    cfg,
		client: client,
		log:    log.Named("queue." + cfg.Name),
	}
}

func (q *Queue) Name() string { return q.cfg.Name }

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("q:%s:job:%s", q.cfg.Name, id)
}

func (q *Queue) pendingKey(priority int) string {
	return fmt.Sprintf("q:%s:pending:%d", q.cfg.Name, priority)
}

func (q *Queue) delayedKey() string {
	return fmt.Sprintf("q:%s:delayed", q.cfg.Name)
}

func (q *Queue) failedKey() string {
	return fmt.Sprintf("q:%s:failed", q.cfg.Name)
}

func (q *Queue) activeKey() string {
	return fmt.Sprintf("q:%s:active", q.cfg.Name)
}

// EnqueueOption customizes a single enqueue.
type EnqueueOption func(*Job)

// WithPriority places the job on the given priority list; out-of-range
// values clamp to the lowest priority.
func WithPriority(p int) EnqueueOption {
	return func(j *Job) { j.Priority = p }
}

// Enqueue persists the job record and pushes it onto its pending list.
// Tenant and correlation identity travel with the job so workers can
// re-establish request context.
func (q *Queue) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	job := &Job{
		ID:            uuid.NewString(),
		Queue:         q.cfg.Name,
		Payload:       raw,
		State:         StateWaiting,
		Priority:      1,
		MaxAttempts:   q.cfg.MaxAttempts,
		OrgID:         orgID,
		CorrelationID: correlation.FromContext(ctx),
		CreatedAt:     time.Now().UTC(),
		q:             q,
	}
	for _, opt := range opts {
		opt(job)
	}
	if job.Priority < 1 || job.Priority > q.cfg.Priorities {
		job.Priority = q.cfg.Priorities
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.ID), job.fields())
	pipe.LPush(ctx, q.pendingKey(job.Priority), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	q.log.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.Int("priority", job.Priority),
		zap.String("org_id", job.OrgID),
		zap.String("correlation_id", job.CorrelationID),
	)
	return job, nil
}

// GetJob loads one job record. Completed jobs expire after the configured
// TTL, after which this returns ErrJobNotFound.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrJobNotFound
	}
	job := jobFromHash(q.cfg.Name, raw)
	job.q = q
	return job, nil
}

// Counts reports the queue depth per state.
type Counts struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Delayed int64 `json:"delayed"`
	Failed  int64 `json:"failed"`
}

// Health returns current depths; it is cheap enough for liveness polling.
func (q *Queue) Health(ctx context.Context) (*Counts, error) {
	counts := &Counts{}
	for p := 1; p <= q.cfg.Priorities; p++ {
		n, err := q.client.LLen(ctx, q.pendingKey(p)).Result()
		if err != nil {
			return nil, err
		}
		counts.Waiting += n
	}
	var err error
	if counts.Active, err = q.client.SCard(ctx, q.activeKey()).Result(); err != nil {
		return nil, err
	}
	if counts.Delayed, err = q.client.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return nil, err
	}
	if counts.Failed, err = q.client.LLen(ctx, q.failedKey()).Result(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Ping verifies the redis connection backing this queue.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
