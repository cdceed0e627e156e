package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/chatorder/internal/auth"
	authdomain "github.com/smallbiznis/chatorder/internal/auth/domain"
	"github.com/smallbiznis/chatorder/internal/observability/logger"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"github.com/smallbiznis/chatorder/internal/ratelimit"
	"github.com/smallbiznis/chatorder/internal/redact"
	"go.uber.org/zap"
)

const (
	headerAPIKey = "X-API-Key"

	contextIdentityKey = "identity"
)

func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

// AuthRequired resolves the caller from either an API key or a bearer
// token. API keys are checked first: the X-API-Key header, then a bearer
// value carrying the key prefix.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.authenticate(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = orgcontext.WithAuthType(ctx, identity.AuthType)
		if identity.OrgID != "" {
			ctx = orgcontext.WithOrgID(ctx, identity.OrgID)
		}
		if identity.UserID != "" {
			ctx = orgcontext.WithUserID(ctx, identity.UserID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextIdentityKey, identity)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) (*auth.Identity, error) {
	ctx := c.Request.Context()

	if key := strings.TrimSpace(c.GetHeader(headerAPIKey)); key != "" {
		return s.authSvc.AuthenticateAPIKey(ctx, key)
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return nil, fmt.Errorf("%w: no credential", authdomain.ErrUnauthorized)
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, fmt.Errorf("%w: malformed authorization header", authdomain.ErrUnauthorized)
	}
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "co_live_") {
		return s.authSvc.AuthenticateAPIKey(ctx, token)
	}
	return s.authSvc.AuthenticateBearer(ctx, token)
}

// RequireOrg rejects callers with no organization context. Bearer users who
// have not joined an org authenticate fine but cannot touch tenant data.
func (s *Server) RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if identity == nil || identity.OrgID == "" {
			AbortWithError(c, fmt.Errorf("%w: no organization context", ErrForbidden))
			return
		}
		c.Next()
	}
}

// RequirePermission gates a route on one permission. Denials are 403, never
// 404: the caller already proved who they are.
func (s *Server) RequirePermission(perm orgdomain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if !s.authSvc.HasPermission(c.Request.Context(), identity, perm) {
			AbortWithError(c, fmt.Errorf("%w: missing %s", ErrForbidden, perm))
			return
		}
		c.Next()
	}
}

// RateLimit enforces the tier sliding window. Authenticated callers are
// limited per org; anonymous callers fall back to a per-IP free-tier
// window. Redis trouble fails open so an outage does not take the API down
// with it.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead

		var decision *ratelimit.Decision
		var err error
		if identity := identityFrom(c); identity != nil && identity.OrgID != "" {
			decision, err = s.limiter.AllowOrg(c.Request.Context(), identity.OrgID, isRead)
		} else {
			decision, err = s.limiter.AllowIP(c.Request.Context(), c.ClientIP(), isRead)
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

// RedactPII masks sensitive fields in JSON responses for callers without
// the view_pii permission. The handler output is buffered, rewritten, and
// only then flushed; non-JSON responses pass through untouched.
func (s *Server) RedactPII() gin.HandlerFunc {
	return func(c *gin.Context) {
		original := c.Writer
		buffered := &bufferedWriter{ResponseWriter: original}
		c.Writer = buffered

		c.Next()

		c.Writer = original
		body := buffered.buf.Bytes()
		if len(body) == 0 {
			return
		}

		if !s.shouldRedact(c) {
			_, _ = original.Write(body)
			return
		}

		redacted, err := redact.Body(body)
		if err != nil {
			// Fail closed: better an opaque error than leaked PII.
			logger.FromContext(c.Request.Context()).Error("response redaction failed", zap.Error(err))
			original.WriteHeader(http.StatusInternalServerError)
			_, _ = original.Write([]byte(`{"status":"internal_error","message":"internal server error"}`))
			return
		}
		_, _ = original.Write(redacted)
	}
}

func (s *Server) shouldRedact(c *gin.Context) bool {
	if c.Writer.Status() >= http.StatusBadRequest {
		return false
	}
	contentType := c.Writer.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return false
	}
	identity := identityFrom(c)
	return !s.authSvc.HasPermission(c.Request.Context(), identity, orgdomain.PermViewPII)
}
