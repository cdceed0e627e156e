package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/smallbiznis/chatorder/internal/config"
	"github.com/smallbiznis/chatorder/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	maxAttempts  = 4
	baseDelay    = 2 * time.Second
	maxDelay     = 10 * time.Second
	maxJitter    = time.Second
	maxOutTokens = 4096
)

// Client calls the LLM vendor with structured-tool output. One Client is
// shared process-wide; its concurrency is bounded by the workers using it.
type Client struct {
	api         anthropic.Client
	model       anthropic.Model
	chatModel   anthropic.Model
	callTimeout time.Duration
	maxChars    int
	log         *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the shared LLM client from process configuration.
func New(cfg config.Config, log *zap.Logger, opts ...option.RequestOption) *Client {
	options := append([]option.RequestOption{
		option.WithAPIKey(cfg.LLMAPIKey),
		option.WithMaxRetries(0), // retry policy lives here, not in the SDK
	}, opts...)

	return &Client{
		api:         anthropic.NewClient(options...),
		model:       anthropic.Model(cfg.LLMModel),
		chatModel:   anthropic.Model(cfg.LLMChatModel),
		callTimeout: cfg.LLMTimeout,
		maxChars:    cfg.LLMMaxContextLen,
		log:         log.Named("extraction.client"),
		sleep:       sleepCtx,
	}
}

// ExtractSingle extracts an order from one free-text message. No pruning
// applies to the single-message path.
func (c *Client) ExtractSingle(ctx context.Context, message string) (*SingleResult, error) {
	raw, err := c.callTool(ctx, c.model, singleSystemPrompt, singleToolName, singleToolProperties, message)
	if err != nil {
		return nil, err
	}

	var result SingleResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	coerceSingle(&result)
	return &result, nil
}

// ExtractChat extracts an order from a chat transcript. Messages beyond the
// context cap are pruned oldest-first; the full transcript stays in
// rawMessages for audit upstream.
func (c *Client) ExtractChat(ctx context.Context, messages []ChatMessage) (*ChatResult, error) {
	pruned := PruneMessages(messages, c.maxChars)
	raw, err := c.callTool(ctx, c.chatModel, chatSystemPrompt, chatToolName, chatToolProperties, renderTranscript(pruned))
	if err != nil {
		return nil, err
	}

	var result ChatResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	coerceChat(&result)
	return &result, nil
}

func (c *Client) callTool(ctx context.Context, model anthropic.Model, system, toolName string, properties map[string]any, content string) (json.RawMessage, error) {
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxOutTokens,
		System: []anthropic.TextBlockParam{{
			Text: system,
			// Advisory long-lived cache hint; correctness does not depend on it.
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        toolName,
				Description: anthropic.String("Record the structured order extracted from the conversation."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   []string{"items"},
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, lastErr)
			c.log.Warn("retrying llm call",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		message, err := c.api.Messages.New(attemptCtx, params)
		cancel()

		if err == nil {
			return toolInput(message, toolName)
		}
		if ctx.Err() != nil {
			// Caller cancelled; abort the outer loop as well.
			return nil, ctx.Err()
		}
		if !retriable(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamBadRequest, err)
		}
		lastErr = err
	}

	logger.WithContext(ctx, c.log).Error("llm call failed after retries", zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

func toolInput(message *anthropic.Message, toolName string) (json.RawMessage, error) {
	if message == nil {
		return nil, ErrMalformed
	}
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			if variant.Name != toolName {
				continue
			}
			return json.RawMessage(variant.JSON.Input.Raw()), nil
		}
	}
	return nil, ErrMalformed
}

// backoffDelay computes min(10s, 2s·2^attempt) plus full jitter, unless a
// 429 carried a server-advised Retry-After, which wins.
func backoffDelay(attempt int, lastErr error) time.Duration {
	if retryAfter, ok := retryAfterHint(lastErr); ok {
		return retryAfter
	}
	delay := baseDelay << uint(attempt-1)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(maxJitter)))
}

func retryAfterHint(err error) (time.Duration, bool) {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 || apiErr.Response == nil {
		return 0, false
	}
	header := strings.TrimSpace(apiErr.Response.Header.Get("Retry-After"))
	if header == "" {
		return 0, false
	}
	seconds, parseErr := strconv.Atoi(header)
	if parseErr != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true // per-attempt deadline; the outer loop decides
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// Connection resets and other transport failures.
	return true
}

func renderTranscript(messages []ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.Sender)
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
