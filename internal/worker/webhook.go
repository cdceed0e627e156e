package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/chatorder/internal/correlation"
	"github.com/smallbiznis/chatorder/internal/queue"
	"go.uber.org/zap"
)

const webhookTimeout = 10 * time.Second

// Webhook queue sizing. Deliveries are cheap but flaky receivers are
// common, so the attempt budget is generous and dead letters expire.
var WebhookQueueConfig = queue.Config{
	Name:         "webhooks",
	Concurrency:  5,
	MaxAttempts:  10,
	BaseBackoff:  5 * time.Second,
	CompletedTTL: 24 * time.Hour,
	FailedTTL:    72 * time.Hour,
	Priorities:   1,
}

// WebhookPayload is one pending delivery.
type WebhookPayload struct {
	URL   string          `json:"url"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

// WebhookPublisher enqueues deliveries onto the webhook queue.
type WebhookPublisher struct {
	q *queue.Queue
}

func NewWebhookPublisher(q *queue.Queue) *WebhookPublisher {
	return &WebhookPublisher{q: q}
}

func (p *WebhookPublisher) Publish(ctx context.Context, url, event string, body json.RawMessage) (*queue.Job, error) {
	return p.q.Enqueue(ctx, WebhookPayload{URL: url, Event: event, Body: body})
}

// WebhookWorker delivers queued webhooks over HTTP.
type WebhookWorker struct {
	client *http.Client
	log    *zap.Logger
}

func NewWebhookWorker(log *zap.Logger) *WebhookWorker {
	return &WebhookWorker{
		client: &http.Client{Timeout: webhookTimeout},
		log:    log.Named("worker.webhook"),
	}
}

// Handle posts the payload body to the receiver. Any non-2xx response is
// an error so the queue's backoff schedule applies.
func (w *WebhookWorker) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	if cid := correlation.FromContext(ctx); cid != "" {
		req.Header.Set(correlation.Header, cid)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
	}

	w.log.Info("webhook delivered",
		zap.String("url", payload.URL),
		zap.String("event", payload.Event),
	)
	return map[string]int{"status": resp.StatusCode}, nil
}
