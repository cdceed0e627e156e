package worker

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/observability/metrics"
	"github.com/smallbiznis/chatorder/internal/queue"
	"github.com/smallbiznis/chatorder/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Queues bundles the named queues so producers and admin endpoints share
// the same instances as the workers.
type Queues struct {
	Extraction *queue.Queue
	Webhooks   *queue.Queue
}

func NewQueues(client *redis.Client, log *zap.Logger) *Queues {
	return &Queues{
		Extraction: queue.New(ExtractionQueueConfig, client, log),
		Webhooks:   queue.New(WebhookQueueConfig, client, log),
	}
}

func instrumented(name string, m *metrics.WorkerMetrics, handler queue.Handler) queue.Handler {
	return func(ctx context.Context, job *queue.Job) (any, error) {
		start := time.Now()
		result, err := handler(ctx, job)
		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		m.JobsProcessed.WithLabelValues(name, outcome).Inc()
		m.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		return result, err
	}
}

var Module = fx.Module("workers",
	fx.Provide(
		NewQueues,
		func(q *Queues) *WebhookPublisher { return NewWebhookPublisher(q.Webhooks) },
		NewExtractionWorker,
		NewWebhookWorker,
	),
	fx.Invoke(func(
		lc fx.Lifecycle,
		queues *Queues,
		extraction *ExtractionWorker,
		webhooks *WebhookWorker,
		bucket *ratelimit.TokenBucket,
		m *metrics.WorkerMetrics,
	) {
		extractionWorker := queue.NewWorker(
			queues.Extraction,
			instrumented("extraction", m, extraction.Handle),
			ExtractionThrottle(bucket),
		)
		webhookWorker := queue.NewWorker(
			queues.Webhooks,
			instrumented("webhooks", m, webhooks.Handle),
			nil,
		)

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				extractionWorker.Start()
				webhookWorker.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				extractionWorker.Stop()
				webhookWorker.Stop()
				return nil
			},
		})
	}),
)
