package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/smallbiznis/chatorder/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func toolUseBody(toolName string, input map[string]any) string {
	raw, _ := json.Marshal(input)
	return fmt.Sprintf(`{
		"id": "msg_test",
		"type": "message",
		"role": "assistant",
		"model": "stub",
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 20},
		"content": [{"type": "tool_use", "id": "tu_1", "name": %q, "input": %s}]
	}`, toolName, raw)
}

func newTestClient(t *testing.T, url string) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := config.Config{
		LLMAPIKey:        "test-key",
		LLMModel:         "stub-model",
		LLMChatModel:     "stub-model",
		LLMTimeout:       5 * time.Second,
		LLMMaxContextLen: 12000,
	}
	c := New(cfg, zap.NewNop(), option.WithBaseURL(url))

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestExtractChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolUseBody(chatToolName, map[string]any{
			"items": []map[string]any{
				{"product_name": "Basmati Rice", "quantity": 5, "price": 120},
				{"product_name": "Toor Dal", "quantity": 2, "price": 95},
			},
			"customer_name":    "Rahul Sharma",
			"delivery_address": "42 MG Road, Bangalore",
			"total_amount":     790,
			"confidence":       "high",
		}))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	result, err := client.ExtractChat(context.Background(), []ChatMessage{
		{Sender: "Rahul Sharma", Text: "Bhaiya 5 kilo basmati rice chahiye"},
		{Sender: "Rahul Sharma", Text: "2 kg toor dal bhi bhej do, 42 MG Road Bangalore"},
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "Basmati Rice", result.Items[0].ProductName)
	assert.Equal(t, 5.0, result.Items[0].Quantity)
	require.NotNil(t, result.Items[0].Price)
	assert.Equal(t, 120.0, *result.Items[0].Price)
	assert.Equal(t, "42 MG Road, Bangalore", result.DeliveryAddress)
	assert.Equal(t, "high", result.Confidence)
}

func TestCallTool_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolUseBody(singleToolName, map[string]any{
			"items":      []map[string]any{{"product_name": "Sugar", "quantity": 1}},
			"confidence": 0.9,
		}))
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv.URL)
	result, err := client.ExtractSingle(context.Background(), "1 kg sugar")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *delays, 2)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestCallTool_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.ExtractSingle(context.Background(), "1 kg sugar")
	require.ErrorIs(t, err, ErrUpstreamBadRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallTool_RetryAfterOverridesBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolUseBody(singleToolName, map[string]any{
			"items":      []map[string]any{{"product_name": "Sugar"}},
			"confidence": 0.5,
		}))
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv.URL)
	_, err := client.ExtractSingle(context.Background(), "sugar")
	require.NoError(t, err)
	require.Len(t, *delays, 1)
	assert.Equal(t, 2*time.Second, (*delays)[0])
}

func TestCallTool_ExhaustedRetriesReturnsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.ExtractSingle(context.Background(), "sugar")
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestCallTool_MissingToolUseIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_test", "type": "message", "role": "assistant", "model": "stub",
			"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 1},
			"content": [{"type": "text", "text": "sure, here is your order"}]
		}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.ExtractSingle(context.Background(), "sugar")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCallTool_CancellationAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := client.ExtractSingle(ctx, "sugar")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPruneMessages(t *testing.T) {
	messages := []ChatMessage{
		{Sender: "a", Text: "oldest"},
		{Sender: "b", Text: "middle"},
		{Sender: "c", Text: "newest"},
	}

	// Large cap keeps everything.
	assert.Len(t, PruneMessages(messages, 12000), 3)

	// Tight cap keeps only the newest messages.
	pruned := PruneMessages(messages, 15)
	require.Len(t, pruned, 2)
	assert.Equal(t, "middle", pruned[0].Text)
	assert.Equal(t, "newest", pruned[1].Text)

	// Zero cap disables pruning.
	assert.Len(t, PruneMessages(messages, 0), 3)
}

func TestCoercion(t *testing.T) {
	neg := -5.0
	chat := &ChatResult{
		Items: []Item{
			{ProductName: "Rice", Quantity: 0},
			{ProductName: "", Quantity: 2},
			{ProductName: "Dal", Quantity: 2, Price: &neg},
		},
		Confidence: "certain",
	}
	coerceChat(chat)
	require.Len(t, chat.Items, 2)
	assert.Equal(t, 1.0, chat.Items[0].Quantity)
	assert.Nil(t, chat.Items[1].Price)
	assert.Equal(t, "medium", chat.Confidence)

	single := &SingleResult{Confidence: 1.7}
	coerceSingle(single)
	assert.Equal(t, 1.0, single.Confidence)

	single = &SingleResult{Confidence: -0.2}
	coerceSingle(single)
	assert.Equal(t, 0.0, single.Confidence)
}
