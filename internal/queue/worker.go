package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/correlation"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	popTimeout      = time.Second
	promoteInterval = 500 * time.Millisecond
)

// Handler processes one job. A non-nil error schedules a retry until the
// attempt budget runs out, then the job dead-letters.
type Handler func(ctx context.Context, job *Job) (any, error)

// Throttle blocks until the worker may take another job. Used to cap the
// rate of upstream calls independent of concurrency.
type Throttle func(ctx context.Context) error

// Worker consumes one queue with a fixed goroutine pool.
type Worker struct {
	q        *Queue
	handler  Handler
	throttle Throttle
	log      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker wires a handler to a queue. A nil throttle means no cap.
func NewWorker(q *Queue, handler Handler, throttle Throttle) *Worker {
	return &Worker{
		q:        q,
		handler:  handler,
		throttle: throttle,
		log:      q.log.Named("worker"),
	}
}

// Start launches the consumer pool and the delayed-job promoter.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < w.q.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.promote(ctx)
	}()

	w.log.Info("worker started", zap.Int("concurrency", w.q.cfg.Concurrency))
}

// Stop ends job fetching and blocks until in-flight jobs have finished
// and recorded their outcome.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) consume(ctx context.Context) {
	keys := make([]string, 0, w.q.cfg.Priorities)
	for p := 1; p <= w.q.cfg.Priorities; p++ {
		keys = append(keys, w.q.pendingKey(p))
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if w.throttle != nil {
			if err := w.throttle(ctx); err != nil {
				return
			}
		}

		// BRPOP scans keys left to right, so priority 1 always wins.
		res, err := w.q.client.BRPop(ctx, popTimeout, keys...).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("pop failed", zap.Error(err))
			time.Sleep(popTimeout)
			continue
		}
		w.process(ctx, res[1])
	}
}

func (w *Worker) process(ctx context.Context, jobID string) {
	// Shutdown stops the fetch loop only. A job already popped runs to
	// completion on an uncancellable context, and its state transitions
	// must land even when Stop has been called, or the job strands in
	// the active set.
	ctx = context.WithoutCancel(ctx)

	job, err := w.q.GetJob(ctx, jobID)
	if err != nil {
		w.log.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	job.State = StateActive
	job.Attempts++
	job.ProcessedAt = &now
	w.q.client.SAdd(ctx, w.q.activeKey(), job.ID)
	w.q.client.HSet(ctx, w.q.jobKey(job.ID),
		"state", string(StateActive),
		"attempts", job.Attempts,
		"processed_at", now.Format(time.RFC3339Nano),
	)

	// Re-establish the identity that enqueued the job.
	jobCtx := correlation.WithID(ctx, job.CorrelationID)
	if job.OrgID != "" {
		jobCtx = orgcontext.WithOrgID(jobCtx, job.OrgID)
	}

	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("org_id", job.OrgID),
		zap.String("correlation_id", job.CorrelationID),
		zap.Int("attempt", job.Attempts),
	)

	result, handlerErr := w.handler(jobCtx, job)
	w.q.client.SRem(ctx, w.q.activeKey(), job.ID)

	if handlerErr == nil {
		w.complete(ctx, job, result)
		log.Info("job completed")
		return
	}

	if job.Attempts >= job.MaxAttempts {
		w.fail(ctx, job, handlerErr)
		log.Error("job dead-lettered", zap.Error(handlerErr))
		return
	}

	delay := w.q.cfg.BaseBackoff << uint(job.Attempts-1)
	w.delay(ctx, job, handlerErr, delay)
	log.Warn("job retry scheduled", zap.Duration("delay", delay), zap.Error(handlerErr))
}

func (w *Worker) complete(ctx context.Context, job *Job, result any) {
	now := time.Now().UTC()
	fields := map[string]any{
		"state":       string(StateCompleted),
		"progress":    100,
		"finished_at": now.Format(time.RFC3339Nano),
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			fields["result"] = string(raw)
		}
	}
	pipe := w.q.client.TxPipeline()
	pipe.HSet(ctx, w.q.jobKey(job.ID), fields)
	pipe.Expire(ctx, w.q.jobKey(job.ID), w.q.cfg.CompletedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error("finalize job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *Worker) fail(ctx context.Context, job *Job, cause error) {
	now := time.Now().UTC()
	pipe := w.q.client.TxPipeline()
	pipe.HSet(ctx, w.q.jobKey(job.ID),
		"state", string(StateFailed),
		"failed_reason", cause.Error(),
		"finished_at", now.Format(time.RFC3339Nano),
	)
	pipe.LPush(ctx, w.q.failedKey(), job.ID)
	if w.q.cfg.FailedTTL > 0 {
		pipe.Expire(ctx, w.q.jobKey(job.ID), w.q.cfg.FailedTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error("dead-letter job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *Worker) delay(ctx context.Context, job *Job, cause error, d time.Duration) {
	readyAt := time.Now().Add(d).UnixMilli()
	pipe := w.q.client.TxPipeline()
	pipe.HSet(ctx, w.q.jobKey(job.ID),
		"state", string(StateDelayed),
		"failed_reason", cause.Error(),
	)
	pipe.ZAdd(ctx, w.q.delayedKey(), redis.Z{Score: float64(readyAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error("schedule retry failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// promote moves due delayed jobs back onto their pending lists.
func (w *Worker) promote(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.promoteDue(ctx)
		}
	}
}

func (w *Worker) promoteDue(ctx context.Context) {
	now := time.Now().UnixMilli()
	ids, err := w.q.client.ZRangeByScore(ctx, w.q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, id := range ids {
		removed, err := w.q.client.ZRem(ctx, w.q.delayedKey(), id).Result()
		if err != nil || removed == 0 {
			continue // another worker promoted it
		}
		priority, _ := w.q.client.HGet(ctx, w.q.jobKey(id), "priority").Int()
		if priority < 1 || priority > w.q.cfg.Priorities {
			priority = w.q.cfg.Priorities
		}
		pipe := w.q.client.TxPipeline()
		pipe.HSet(ctx, w.q.jobKey(id), "state", string(StateWaiting))
		pipe.LPush(ctx, w.q.pendingKey(priority), id)
		if _, err := pipe.Exec(ctx); err != nil {
			w.log.Error("promote job failed", zap.String("job_id", id), zap.Error(err))
		}
	}
}
