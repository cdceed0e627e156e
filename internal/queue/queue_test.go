package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/correlation"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	return New(cfg, client, zap.NewNop())
}

type testPayload struct {
	Value string `json:"value"`
}

func TestEnqueue_CarriesIdentity(t *testing.T) {
	q := setupQueue(t, Config{})

	ctx := orgcontext.WithOrgID(context.Background(), "org-a")
	ctx = correlation.WithID(ctx, "corr-1")

	job, err := q.Enqueue(ctx, testPayload{Value: "hello"})
	require.NoError(t, err)

	got, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, got.State)
	assert.Equal(t, "org-a", got.OrgID)
	assert.Equal(t, "corr-1", got.CorrelationID)

	var payload testPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "hello", payload.Value)

	_, err = q.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestWorker_CompletesJob(t *testing.T) {
	q := setupQueue(t, Config{Concurrency: 1, MaxAttempts: 1})

	var mu sync.Mutex
	var seenOrg, seenCorr string
	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		job.SetProgress(ctx, 50)
		mu.Lock()
		seenOrg, _ = orgcontext.OrgIDFromContext(ctx)
		seenCorr = correlation.FromContext(ctx)
		mu.Unlock()
		return map[string]string{"status": "done"}, nil
	}, nil)
	worker.Start()
	defer worker.Stop()

	ctx := orgcontext.WithOrgID(context.Background(), "org-a")
	ctx = correlation.WithID(ctx, "corr-9")
	job, err := q.Enqueue(ctx, testPayload{Value: "work"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := q.GetJob(context.Background(), job.ID)
		return err == nil && got.State == StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	got, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.JSONEq(t, `{"status":"done"}`, string(got.Result))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "org-a", seenOrg)
	assert.Equal(t, "corr-9", seenCorr)
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	q := setupQueue(t, Config{
		Concurrency: 1,
		MaxAttempts: 2,
		BaseBackoff: 10 * time.Millisecond,
	})

	var mu sync.Mutex
	attempts := 0
	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("upstream down")
	}, nil)
	worker.Start()
	defer worker.Stop()

	job, err := q.Enqueue(context.Background(), testPayload{Value: "doomed"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := q.GetJob(context.Background(), job.ID)
		return err == nil && got.State == StateFailed
	}, 10*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()

	got, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "upstream down", got.FailedReason)

	failed, err := q.ListFailed(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)
}

func TestRetryFailed_ReschedulesSameJob(t *testing.T) {
	q := setupQueue(t, Config{
		Concurrency: 1,
		MaxAttempts: 1,
		BaseBackoff: 10 * time.Millisecond,
	})

	var mu sync.Mutex
	calls := 0
	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("flaky")
		}
		return map[string]string{"status": "recovered"}, nil
	}, nil)
	worker.Start()
	defer worker.Stop()

	job, err := q.Enqueue(context.Background(), testPayload{Value: "retry-me"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := q.GetJob(context.Background(), job.ID)
		return err == nil && got.State == StateFailed
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, q.RetryFailed(context.Background(), "", job.ID))

	require.Eventually(t, func() bool {
		got, err := q.GetJob(context.Background(), job.ID)
		return err == nil && got.State == StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	failed, err := q.ListFailed(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestFailedJobs_ScopedByOrg(t *testing.T) {
	q := setupQueue(t, Config{
		Concurrency: 1,
		MaxAttempts: 1,
		BaseBackoff: 10 * time.Millisecond,
	})

	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		return nil, errors.New("upstream down")
	}, nil)
	worker.Start()

	ctxA := orgcontext.WithOrgID(context.Background(), "org-a")
	ctxB := orgcontext.WithOrgID(context.Background(), "org-b")
	jobA, err := q.Enqueue(ctxA, testPayload{Value: "a"})
	require.NoError(t, err)
	jobB, err := q.Enqueue(ctxB, testPayload{Value: "b"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, err := q.Health(context.Background())
		return err == nil && counts.Failed == 2
	}, 10*time.Second, 20*time.Millisecond)
	worker.Stop()

	// Each org sees only its own dead letters.
	failedA, err := q.ListFailed(context.Background(), "org-a", 10)
	require.NoError(t, err)
	require.Len(t, failedA, 1)
	assert.Equal(t, jobA.ID, failedA[0].ID)

	// A foreign job ID is indistinguishable from a missing one.
	err = q.RetryFailed(context.Background(), "org-b", jobA.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	// Bulk retry drains only the caller's jobs.
	n, err := q.RetryAllFailed(context.Background(), "org-b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gotB, err := q.GetJob(context.Background(), jobB.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, gotB.State)

	remaining, err := q.ListFailed(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, jobA.ID, remaining[0].ID)
}

func TestWorker_PriorityOrdering(t *testing.T) {
	q := setupQueue(t, Config{Concurrency: 1, MaxAttempts: 1, Priorities: 2})

	// Fill the pending lists before any consumer runs.
	low, err := q.Enqueue(context.Background(), testPayload{Value: "low"}, WithPriority(2))
	require.NoError(t, err)
	high, err := q.Enqueue(context.Background(), testPayload{Value: "high"}, WithPriority(1))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return nil, nil
	}, nil)
	worker.Start()
	defer worker.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{high.ID, low.ID}, order)
}

func TestWorker_StopDrainsInFlightJob(t *testing.T) {
	q := setupQueue(t, Config{Concurrency: 1, MaxAttempts: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	worker := NewWorker(q, func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return map[string]string{"status": "drained"}, nil
	}, nil)
	worker.Start()

	job, err := q.Enqueue(context.Background(), testPayload{Value: "slow"})
	require.NoError(t, err)

	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	// Stop must wait for the in-flight job and let it record its outcome.
	worker.Stop()

	got, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.JSONEq(t, `{"status":"drained"}`, string(got.Result))

	counts, err := q.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Active)
}

func TestHealth_Counts(t *testing.T) {
	q := setupQueue(t, Config{Priorities: 2})

	_, err := q.Enqueue(context.Background(), testPayload{Value: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), testPayload{Value: "b"}, WithPriority(2))
	require.NoError(t, err)

	counts, err := q.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Waiting)
	assert.Equal(t, int64(0), counts.Failed)
	assert.NoError(t, q.Ping(context.Background()))
}
