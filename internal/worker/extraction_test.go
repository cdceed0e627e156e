package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/correlation"
	customerdomain "github.com/smallbiznis/chatorder/internal/customer/domain"
	"github.com/smallbiznis/chatorder/internal/extraction"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	"github.com/smallbiznis/chatorder/internal/order/repository"
	"github.com/smallbiznis/chatorder/internal/order/service"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	productdomain "github.com/smallbiznis/chatorder/internal/product/domain"
	"github.com/smallbiznis/chatorder/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubExtractor struct{}

func (stubExtractor) ExtractSingle(ctx context.Context, message string) (*extraction.SingleResult, error) {
	price := 40.0
	return &extraction.SingleResult{
		Items:      []extraction.Item{{ProductName: "Sugar", Quantity: 2, Unit: "kg", Price: &price}},
		Confidence: 0.9,
	}, nil
}

func (stubExtractor) ExtractChat(ctx context.Context, messages []extraction.ChatMessage) (*extraction.ChatResult, error) {
	price := 120.0
	return &extraction.ChatResult{
		Items:        []extraction.Item{{ProductName: "Basmati Rice", Quantity: 5, Unit: "kg", Price: &price}},
		CustomerName: "Rahul Sharma",
		Confidence:   "high",
	}, nil
}

type fixture struct {
	queues *Queues
	repo   orderdomain.Repository
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
	))

	log := zap.NewNop()
	queues := NewQueues(client, log)
	repo := repository.Provide(conn, log)
	svc := service.New(repo, stubExtractor{}, log)
	publisher := NewWebhookPublisher(queues.Webhooks)

	extractionWorker := queue.NewWorker(queues.Extraction, NewExtractionWorker(svc, publisher, log).Handle, nil)
	extractionWorker.Start()
	t.Cleanup(extractionWorker.Stop)

	webhookWorker := queue.NewWorker(queues.Webhooks, NewWebhookWorker(log).Handle, nil)
	webhookWorker.Start()
	t.Cleanup(webhookWorker.Stop)

	return &fixture{queues: queues, repo: repo}
}

func TestExtractionJob_StoresOrderAndDeliversWebhook(t *testing.T) {
	var mu sync.Mutex
	var gotEvent, gotCorrelation string
	var gotBody []byte
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotCorrelation = r.Header.Get(correlation.Header)
		gotBody, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	fx := setupFixture(t)

	ctx := orgcontext.WithOrgID(context.Background(), "org-a")
	ctx = correlation.WithID(ctx, "corr-42")

	job, err := fx.queues.Extraction.Enqueue(ctx, ExtractPayload{
		Type: orderdomain.ExtractionChatLog,
		Messages: []extraction.ChatMessage{
			{Sender: "Rahul Sharma", Text: "5 kg basmati rice bhej do"},
		},
		WebhookURL: receiver.URL,
	}, queue.WithPriority(PriorityChat))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := fx.queues.Extraction.GetJob(context.Background(), job.ID)
		return err == nil && got.State == queue.StateCompleted
	}, 10*time.Second, 25*time.Millisecond)

	got, err := fx.queues.Extraction.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	var result ExtractResult
	require.NoError(t, json.Unmarshal(got.Result, &result))
	require.NotEmpty(t, result.OrderID)
	assert.Equal(t, orderdomain.StatusPending, result.Status)

	order, err := fx.repo.Get(context.Background(), "org-a", result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "Rahul Sharma", order.CustomerName)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Basmati Rice", order.Items[0].ProductName)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotEvent != ""
	}, 10*time.Second, 25*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "order.extracted", gotEvent)
	assert.Equal(t, "corr-42", gotCorrelation)
	var delivered struct {
		JobID   string            `json:"job_id"`
		Status  string            `json:"status"`
		OrderID string            `json:"order_id"`
		Order   orderdomain.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &delivered))
	assert.Equal(t, job.ID, delivered.JobID)
	assert.Equal(t, "completed", delivered.Status)
	assert.Equal(t, result.OrderID, delivered.OrderID)
	assert.Equal(t, result.OrderID, delivered.Order.ID)
}

type failingExtractor struct{}

func (failingExtractor) ExtractSingle(ctx context.Context, message string) (*extraction.SingleResult, error) {
	return nil, extraction.ErrUpstreamUnavailable
}

func (failingExtractor) ExtractChat(ctx context.Context, messages []extraction.ChatMessage) (*extraction.ChatResult, error) {
	return nil, extraction.ErrUpstreamUnavailable
}

func TestExtractionJob_FailureWebhookOnFinalAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	log := zap.NewNop()
	queues := NewQueues(client, log)
	svc := service.New(repository.Provide(conn, log), failingExtractor{}, log)
	worker := NewExtractionWorker(svc, NewWebhookPublisher(queues.Webhooks), log)

	ctx := orgcontext.WithOrgID(context.Background(), "org-a")
	payload, _ := json.Marshal(ExtractPayload{
		Type:       orderdomain.ExtractionSingleMessage,
		Message:    "2 kg sugar",
		WebhookURL: "http://receiver.test/hook",
	})
	job := &queue.Job{
		ID:          "job-1",
		OrgID:       "org-a",
		Payload:     payload,
		Attempts:    1,
		MaxAttempts: 3,
	}

	// Mid-budget failures stay internal to the queue.
	_, err = worker.Handle(ctx, job)
	require.Error(t, err)
	health, err := queues.Webhooks.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), health.Waiting)

	// The last attempt fans out the failure notification.
	job.Attempts = 3
	_, err = worker.Handle(ctx, job)
	require.Error(t, err)

	deliveries, err := queues.Webhooks.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deliveries.Waiting)
}

func TestExtractionJob_SingleMessage(t *testing.T) {
	fx := setupFixture(t)

	ctx := orgcontext.WithOrgID(context.Background(), "org-a")
	job, err := fx.queues.Extraction.Enqueue(ctx, ExtractPayload{
		Type:    orderdomain.ExtractionSingleMessage,
		Message: "2 kg sugar at 40 per kg",
	}, queue.WithPriority(PrioritySingle))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := fx.queues.Extraction.GetJob(context.Background(), job.ID)
		return err == nil && got.State == queue.StateCompleted
	}, 10*time.Second, 25*time.Millisecond)

	got, err := fx.queues.Extraction.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	var result ExtractResult
	require.NoError(t, json.Unmarshal(got.Result, &result))

	order, err := fx.repo.Get(context.Background(), "org-a", result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.ExtractionSingleMessage, order.ExtractionType)
	require.NotNil(t, order.ConfidenceScore)
	assert.Equal(t, 0.9, *order.ConfidenceScore)
}
