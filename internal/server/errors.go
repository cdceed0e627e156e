package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeysvc "github.com/smallbiznis/chatorder/internal/apikey"
	authdomain "github.com/smallbiznis/chatorder/internal/auth/domain"
	"github.com/smallbiznis/chatorder/internal/extraction"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	"github.com/smallbiznis/chatorder/internal/queue"
)

// Sentinels for conditions the handlers themselves detect. Domain packages
// carry their own.
var (
	ErrForbidden   = errors.New("forbidden")
	ErrRateLimited = errors.New("rate limit exceeded")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func newValidationError(field, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Message: message}}}
}

// errorBody is the uniform error envelope. 4xx responses carry the
// actionable message; 5xx responses stay generic.
type errorBody struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// AbortWithError records the error for the terminal handler and stops the
// chain. Handlers never write error bodies themselves.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandlingMiddleware is the single place where errors become HTTP
// responses.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func mapError(err error) (int, errorBody) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorBody{
			Status:  "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, orderdomain.ErrInvalidStatus):
		return http.StatusBadRequest, errorBody{
			Status:  "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, authdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{
			Status:  "unauthorized",
			Message: "authentication required",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorBody{
			Status:  "forbidden",
			Message: "insufficient permissions",
		}
	case errors.Is(err, orderdomain.ErrNotFound):
		return http.StatusNotFound, errorBody{
			Status:  "not_found",
			Message: "Order not found",
		}
	case errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound, errorBody{
			Status:  "not_found",
			Message: "Job not found",
		}
	case errors.Is(err, apikeysvc.ErrNotFound):
		return http.StatusNotFound, errorBody{
			Status:  "not_found",
			Message: "API key not found",
		}
	case errors.Is(err, orderdomain.ErrSequenceConflict):
		return http.StatusConflict, errorBody{
			Status:  "conflict",
			Message: "invoice sequence conflict, retry the request",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{
			Status:  "rate_limited",
			Message: "rate limit exceeded",
		}
	case errors.Is(err, extraction.ErrUpstreamBadRequest):
		return http.StatusBadGateway, errorBody{
			Status:  "upstream_bad_request",
			Message: "extraction service rejected the request",
		}
	case errors.Is(err, extraction.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorBody{
			Status:  "upstream_unavailable",
			Message: "extraction service unavailable",
		}
	case errors.Is(err, extraction.ErrMalformed):
		return http.StatusInternalServerError, errorBody{
			Status:  "extraction_malformed",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorBody{
			Status:  "internal_error",
			Message: "internal server error",
		}
	}
}
