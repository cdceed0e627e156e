// Package worker hosts the background consumers: LLM extraction jobs and
// webhook deliveries.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/chatorder/internal/extraction"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	"github.com/smallbiznis/chatorder/internal/order/service"
	"github.com/smallbiznis/chatorder/internal/queue"
	"github.com/smallbiznis/chatorder/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	// LLM spend control: at most this many extraction jobs start per minute
	// regardless of worker concurrency.
	extractionJobsPerMinute = 10
	throttleKey             = "q:extraction:throttle"
)

// Extraction queue sizing. Single-message jobs ride priority 1 because
// their callers poll sooner; transcripts take priority 2.
var ExtractionQueueConfig = queue.Config{
	Name:         "extraction",
	Concurrency:  3,
	MaxAttempts:  3,
	BaseBackoff:  3 * time.Second,
	CompletedTTL: 24 * time.Hour,
	FailedTTL:    0, // dead-lettered extractions are kept for inspection
	Priorities:   2,
}

const (
	PrioritySingle = 1
	PriorityChat   = 2
)

// ExtractPayload is the queue payload for both extraction shapes.
type ExtractPayload struct {
	Type       orderdomain.ExtractionType `json:"type"`
	Message    string                     `json:"message,omitempty"`
	Messages   []extraction.ChatMessage   `json:"messages,omitempty"`
	WebhookURL string                     `json:"webhook_url,omitempty"`
}

// ExtractResult is stored as the job result for polling clients.
type ExtractResult struct {
	OrderID string             `json:"order_id"`
	Status  orderdomain.Status `json:"status"`
}

// ExtractionWorker consumes the extraction queue.
type ExtractionWorker struct {
	svc      *service.Service
	webhooks *WebhookPublisher
	log      *zap.Logger
}

func NewExtractionWorker(svc *service.Service, webhooks *WebhookPublisher, log *zap.Logger) *ExtractionWorker {
	return &ExtractionWorker{svc: svc, webhooks: webhooks, log: log.Named("worker.extraction")}
}

// Handle processes one extraction job end to end: call the model, persist
// the order, and fan out the webhook when one was requested.
func (w *ExtractionWorker) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload ExtractPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if job.OrgID == "" {
		return nil, errors.New("job carries no organization")
	}

	job.SetProgress(ctx, 10)

	var order *orderdomain.Order
	var err error
	switch payload.Type {
	case orderdomain.ExtractionSingleMessage:
		order, err = w.svc.ExtractSingleMessage(ctx, job.OrgID, payload.Message)
	case orderdomain.ExtractionChatLog:
		order, err = w.svc.ExtractChatLog(ctx, job.OrgID, payload.Messages)
	default:
		return nil, fmt.Errorf("unknown extraction type %q", payload.Type)
	}
	if err != nil {
		// The failure webhook fires once, when the attempt budget is spent;
		// retriable errors stay internal to the queue.
		if payload.WebhookURL != "" && job.Attempts >= job.MaxAttempts {
			w.publishWebhook(ctx, payload.WebhookURL, "order.extraction_failed", map[string]any{
				"job_id": job.ID,
				"status": "failed",
				"error":  err.Error(),
			})
		}
		return nil, err
	}
	job.SetProgress(ctx, 70)

	if payload.WebhookURL != "" {
		w.publishWebhook(ctx, payload.WebhookURL, "order.extracted", map[string]any{
			"job_id":   job.ID,
			"status":   "completed",
			"order_id": order.ID,
			"order":    order,
		})
	}
	job.SetProgress(ctx, 90)

	return ExtractResult{OrderID: order.ID, Status: order.Status}, nil
}

// publishWebhook enqueues a delivery. A scheduling failure does not undo
// the stored order or change the job outcome.
func (w *ExtractionWorker) publishWebhook(ctx context.Context, url, event string, body map[string]any) {
	raw, _ := json.Marshal(body)
	if _, err := w.webhooks.Publish(ctx, url, event, raw); err != nil {
		w.log.Warn("webhook enqueue failed",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// Throttle blocks until the per-minute extraction budget has room.
func ExtractionThrottle(bucket *ratelimit.TokenBucket) queue.Throttle {
	rate := float64(extractionJobsPerMinute) / 60.0
	return func(ctx context.Context) error {
		for {
			verdict, err := bucket.Allow(ctx, throttleKey, rate, extractionJobsPerMinute)
			if err != nil {
				// Redis trouble should not halt the workers entirely.
				return nil
			}
			if verdict.Allowed {
				return nil
			}
			wait := verdict.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
}
