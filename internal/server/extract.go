package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/chatorder/internal/extraction"
)

type extractSingleRequest struct {
	Message string `json:"message"`
}

type extractChatRequest struct {
	Messages []extraction.ChatMessage `json:"messages"`
}

func (r extractSingleRequest) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return newValidationError("message", "message is required")
	}
	return nil
}

func (r extractChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return newValidationError("messages", "at least one message is required")
	}
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Text) == "" {
			return newValidationError("messages", "every message needs text")
		}
	}
	return nil
}

// ExtractSingle runs synchronous single-message extraction.
func (s *Server) ExtractSingle(c *gin.Context) {
	var req extractSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.extractSvc.ExtractSingleMessage(c.Request.Context(), orgID(c), req.Message)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ExtractChat runs synchronous chat-log extraction.
func (s *Server) ExtractChat(c *gin.Context) {
	var req extractChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.extractSvc.ExtractChatLog(c.Request.Context(), orgID(c), req.Messages)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}
