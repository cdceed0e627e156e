package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// State is the job lifecycle. Jobs move waiting -> active and end in
// completed or failed; retriable failures pass through delayed.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one unit of asynchronous work. The payload is opaque JSON owned
// by the handler.
type Job struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Payload       json.RawMessage `json:"payload"`
	State         State           `json:"state"`
	Priority      int             `json:"priority"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailedReason  string          `json:"failed_reason,omitempty"`
	OrgID         string          `json:"org_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`

	q *Queue
}

// SetProgress publishes a coarse progress percentage for polling clients.
func (j *Job) SetProgress(ctx context.Context, pct int) {
	if j.q == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.Progress = pct
	j.q.client.HSet(ctx, j.q.jobKey(j.ID), "progress", pct)
}

func (j *Job) fields() map[string]any {
	out := map[string]any{
		"id":             j.ID,
		"queue":          j.Queue,
		"payload":        string(j.Payload),
		"state":          string(j.State),
		"priority":       j.Priority,
		"attempts":       j.Attempts,
		"max_attempts":   j.MaxAttempts,
		"progress":       j.Progress,
		"org_id":         j.OrgID,
		"correlation_id": j.CorrelationID,
		"created_at":     j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(j.Result) > 0 {
		out["result"] = string(j.Result)
	}
	if j.FailedReason != "" {
		out["failed_reason"] = j.FailedReason
	}
	if j.ProcessedAt != nil {
		out["processed_at"] = j.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		out["finished_at"] = j.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func jobFromHash(queueName string, raw map[string]string) *Job {
	job := &Job{
		ID:            raw["id"],
		Queue:         queueName,
		Payload:       json.RawMessage(raw["payload"]),
		State:         State(raw["state"]),
		OrgID:         raw["org_id"],
		CorrelationID: raw["correlation_id"],
		FailedReason:  raw["failed_reason"],
	}
	job.Priority, _ = strconv.Atoi(raw["priority"])
	job.Attempts, _ = strconv.Atoi(raw["attempts"])
	job.MaxAttempts, _ = strconv.Atoi(raw["max_attempts"])
	job.Progress, _ = strconv.Atoi(raw["progress"])
	if v := raw["result"]; v != "" {
		job.Result = json.RawMessage(v)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw["created_at"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, raw["processed_at"]); err == nil {
		job.ProcessedAt = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, raw["finished_at"]); err == nil {
		job.FinishedAt = &t
	}
	return job
}
