package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Sliding-window counter over a sorted set of request timestamps. The
// clock comes in as ARGV[1] (milliseconds) so tests can pin it.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

if count >= max then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local retry = 0
  if oldest[2] then
    retry = (tonumber(oldest[2]) + window) - now
  end
  return {0, max - count, retry}
end

redis.call("ZADD", KEYS[1], now, member)
redis.call("PEXPIRE", KEYS[1], window)
return {1, max - count - 1, 0}
`

// SlidingWindow counts requests in a rolling window per key.
type SlidingWindow struct {
	client *redis.Client
	script *redis.Script
	now    func() time.Time
}

// WindowDecision reports one Allow outcome.
type WindowDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewSlidingWindow(client *redis.Client) *SlidingWindow {
	if client == nil {
		return nil
	}
	return &SlidingWindow{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		now:    time.Now,
	}
}

// Allow records one request under key if the window has room.
func (s *SlidingWindow) Allow(ctx context.Context, key, member string, max int, window time.Duration) (*WindowDecision, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("sliding window not configured")
	}
	if key == "" || max <= 0 || window <= 0 {
		return nil, errors.New("invalid sliding window parameters")
	}

	res, err := s.script.Run(ctx, s.client, []string{key},
		s.now().UnixMilli(),
		int64(window/time.Millisecond),
		max,
		member,
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("unexpected sliding window script response")
	}

	decision := &WindowDecision{
		Allowed:   castToInt(res[0]) == 1,
		Remaining: int(castToInt(res[1])),
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if retry := castToInt(res[2]); retry > 0 {
		decision.RetryAfter = time.Duration(retry) * time.Millisecond
	}
	return decision, nil
}
