// Package orgcontext stores request identity on the context: the resolved
// organization, the authenticated user (bearer path only), and the auth type.
package orgcontext

import (
	"context"
	"strings"
)

// AuthType distinguishes the two identity classes.
type AuthType string

const (
	AuthTypeUser   AuthType = "user"
	AuthTypeAPIKey AuthType = "api_key"
)

type orgKey struct{}
type userKey struct{}
type authTypeKey struct{}

// WithOrgID stores the organization ID in the context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// OrgIDFromContext returns the organization ID from context, if set.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(orgKey{}).(string)
	return value, ok && value != ""
}

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the authenticated user ID, if any. API-key
// requests carry no user.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(userKey{}).(string)
	return value, ok && value != ""
}

// WithAuthType records which identity path authenticated the request.
func WithAuthType(ctx context.Context, at AuthType) context.Context {
	return context.WithValue(ctx, authTypeKey{}, at)
}

// AuthTypeFromContext returns the identity path for the request.
func AuthTypeFromContext(ctx context.Context) (AuthType, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(authTypeKey{}).(AuthType)
	return value, ok
}
