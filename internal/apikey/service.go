// Package apikey manages machine credentials: creation, listing, and
// revocation of organization-scoped API keys.
package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/chatorder/internal/apikey/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("api key not found")

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(conn *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: conn, log: log.Named("apikey")}
}

// Create mints a new key. The raw value is returned exactly once; only the
// hash and a display mask are stored.
func (s *Service) Create(ctx context.Context, orgID, name string) (*domain.APIKey, string, error) {
	raw, hash, mask, err := domain.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	key := domain.APIKey{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		KeyHash:        hash,
		KeyMask:        mask,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, "", err
	}

	s.log.Info("api key created",
		zap.String("org_id", orgID),
		zap.String("key_id", key.ID),
	)
	return &key, raw, nil
}

// List returns the organization's keys, newest first. Hashes never leave the
// database; the model serializes only the mask.
func (s *Service) List(ctx context.Context, orgID string) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&keys).Error
	return keys, err
}

// Revoke deactivates a key. Revocation is immediate: the authentication path
// only matches active keys.
func (s *Service) Revoke(ctx context.Context, orgID, id string) error {
	result := s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ? AND organization_id = ? AND is_active = ?", id, orgID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.log.Info("api key revoked",
		zap.String("org_id", orgID),
		zap.String("key_id", id),
	)
	return nil
}
