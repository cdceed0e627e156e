package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	"github.com/smallbiznis/chatorder/internal/queue"
	"github.com/smallbiznis/chatorder/internal/worker"
)

type asyncExtractSingleRequest struct {
	extractSingleRequest
	WebhookURL string `json:"webhook_url"`
}

type asyncExtractChatRequest struct {
	extractChatRequest
	WebhookURL string `json:"webhook_url"`
}

// AsyncExtractSingle accepts the work and returns a job handle. Extraction
// failures never surface here; they are visible on the job endpoint and
// through the webhook.
func (s *Server) AsyncExtractSingle(c *gin.Context) {
	var req asyncExtractSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	s.enqueueExtraction(c, worker.ExtractPayload{
		Type:       orderdomain.ExtractionSingleMessage,
		Message:    req.Message,
		WebhookURL: req.WebhookURL,
	}, worker.PrioritySingle)
}

func (s *Server) AsyncExtractChat(c *gin.Context) {
	var req asyncExtractChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	s.enqueueExtraction(c, worker.ExtractPayload{
		Type:       orderdomain.ExtractionChatLog,
		Messages:   req.Messages,
		WebhookURL: req.WebhookURL,
	}, worker.PriorityChat)
}

func (s *Server) enqueueExtraction(c *gin.Context, payload worker.ExtractPayload, priority int) {
	job, err := s.queues.Extraction.Enqueue(c.Request.Context(), payload, queue.WithPriority(priority))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.ID,
		"status_url": "/api/jobs/" + job.ID,
	})
}

// GetJob reports job progress for polling clients.
func (s *Server) GetJob(c *gin.Context) {
	job, err := s.queues.Extraction.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"job_id":   job.ID,
		"state":    job.State,
		"progress": job.Progress,
	}
	if len(job.Result) > 0 {
		resp["result"] = job.Result
	}
	if job.FailedReason != "" {
		resp["error"] = job.FailedReason
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) QueueHealth(c *gin.Context) {
	ctx := c.Request.Context()

	extraction, err := s.queues.Extraction.Health(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	webhooks, err := s.queues.Webhooks.Health(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"extraction": extraction,
		"webhooks":   webhooks,
	})
}

const dlqListLimit = 100

func (s *Server) ListDLQ(c *gin.Context) {
	jobs, err := s.queues.Extraction.ListFailed(c.Request.Context(), orgID(c), dlqListLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) RetryDLQJob(c *gin.Context) {
	if err := s.queues.Extraction.RetryFailed(c.Request.Context(), orgID(c), c.Param("jobId")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requeued"})
}

func (s *Server) RetryAllDLQ(c *gin.Context) {
	n, err := s.queues.Extraction.RetryAllFailed(c.Request.Context(), orgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": n})
}
