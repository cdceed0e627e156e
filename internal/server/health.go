package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Health reports liveness of the service's collaborators. 200 only when
// everything is reachable; any degraded dependency turns the whole report
// into a 503 so load balancers stop routing here.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := s.pingDB(ctx); err != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "up"
	}

	if err := s.queues.Extraction.Ping(ctx); err != nil {
		checks["queue"] = "down"
		healthy = false
	} else {
		checks["queue"] = "up"
	}

	// The LLM is not probed per request; a configured credential is the
	// liveness signal. Actual failures surface on the extraction paths.
	if s.cfg.LLMAPIKey != "" {
		checks["llm"] = "configured"
	} else {
		checks["llm"] = "unconfigured"
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

func (s *Server) pingDB(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
