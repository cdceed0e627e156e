package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apikeydomain "github.com/smallbiznis/chatorder/internal/apikey/domain"
	"github.com/smallbiznis/chatorder/internal/auth/domain"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Identity is the resolved caller after authentication. UserID is empty on
// the API-key path.
type Identity struct {
	OrgID    string
	UserID   string
	AuthType orgcontext.AuthType
}

// API keys are machine credentials: they operate on data but cannot
// administer the tenant.
var apiKeyPermissions = map[orgdomain.Permission]struct{}{
	orgdomain.PermViewOrders:    {},
	orgdomain.PermEditOrders:    {},
	orgdomain.PermDeleteOrders:  {},
	orgdomain.PermViewPII:       {},
	orgdomain.PermViewAnalytics: {},
}

// fallbackRoles applies when a tenant has not defined its own role rows.
var fallbackRoles = map[string][]orgdomain.Permission{
	"admin": {
		orgdomain.PermViewOrders, orgdomain.PermEditOrders, orgdomain.PermDeleteOrders,
		orgdomain.PermViewPII, orgdomain.PermManageUsers, orgdomain.PermManageBilling,
		orgdomain.PermManageAPIKeys, orgdomain.PermViewAnalytics,
	},
	"member": {
		orgdomain.PermViewOrders, orgdomain.PermEditOrders, orgdomain.PermViewAnalytics,
	},
	"viewer": {
		orgdomain.PermViewOrders,
	},
}

// Service authenticates requests and answers permission checks.
type Service struct {
	db       *gorm.DB
	verifier *Verifier
	log      *zap.Logger
}

func NewService(conn *gorm.DB, verifier *Verifier, log *zap.Logger) *Service {
	return &Service{db: conn, verifier: verifier, log: log.Named("auth.service")}
}

// AuthenticateBearer verifies the token and provisions the user just in
// time: the IdP owns identity, this side only mirrors it.
func (s *Service) AuthenticateBearer(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.upsertUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	identity := &Identity{UserID: user.ID, AuthType: orgcontext.AuthTypeUser}
	if user.OrganizationID != nil {
		identity.OrgID = *user.OrganizationID
	}
	return identity, nil
}

// AuthenticateAPIKey resolves a raw key to its organization. Inactive and
// unknown keys fail identically.
func (s *Service) AuthenticateAPIKey(ctx context.Context, rawKey string) (*Identity, error) {
	hash := apikeydomain.HashAPIKey(rawKey)

	var key apikeydomain.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invalid api key", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	// Usage tracking is best effort; a failed touch never blocks the request.
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&apikeydomain.APIKey{}).
		Where("id = ?", key.ID).
		Update("last_used_at", now).Error; err != nil {
		s.log.Warn("api key touch failed", zap.String("key_id", key.ID), zap.Error(err))
	}

	return &Identity{OrgID: key.OrganizationID, AuthType: orgcontext.AuthTypeAPIKey}, nil
}

// HasPermission answers whether the caller may perform the operation.
// Unknown roles and lookup failures deny.
func (s *Service) HasPermission(ctx context.Context, identity *Identity, perm orgdomain.Permission) bool {
	if identity == nil {
		return false
	}
	if identity.AuthType == orgcontext.AuthTypeAPIKey {
		_, ok := apiKeyPermissions[perm]
		return ok
	}

	var user domain.User
	err := s.db.WithContext(ctx).Where("id = ?", identity.UserID).First(&user).Error
	if err != nil {
		s.log.Warn("permission check user lookup failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err),
		)
		return false
	}

	var role orgdomain.Role
	err = s.db.WithContext(ctx).
		Where("organization_id = ? AND name = ?", identity.OrgID, user.Role).
		First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallbackHasPermission(user.Role, perm)
	}
	if err != nil {
		s.log.Warn("permission check role lookup failed",
			zap.String("org_id", identity.OrgID),
			zap.String("role", user.Role),
			zap.Error(err),
		)
		return false
	}

	var perms []orgdomain.Permission
	if err := json.Unmarshal(role.Permissions, &perms); err != nil {
		s.log.Warn("role permissions unparseable, denying",
			zap.String("role_id", role.ID),
			zap.Error(err),
		)
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func fallbackHasPermission(roleName string, perm orgdomain.Permission) bool {
	for _, p := range fallbackRoles[roleName] {
		if p == perm {
			return true
		}
	}
	return false
}

func (s *Service) upsertUser(ctx context.Context, claims *domain.Claims) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("id = ?", claims.Subject).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		user = domain.User{
			ID:        claims.Subject,
			Email:     claims.Email,
			Name:      claims.Name,
			Role:      "member",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if createErr := s.db.WithContext(ctx).Create(&user).Error; createErr != nil {
			return nil, createErr
		}
		s.log.Info("user provisioned", zap.String("user_id", user.ID))
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if user.Email != claims.Email || user.Name != claims.Name {
		updates := map[string]any{
			"email":      claims.Email,
			"name":       claims.Name,
			"updated_at": time.Now().UTC(),
		}
		if err := s.db.WithContext(ctx).Model(&domain.User{}).
			Where("id = ?", user.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		user.Email = claims.Email
		user.Name = claims.Name
	}
	return &user, nil
}
