package domain

import (
	"time"
)

// APIKey stores hashed API credentials scoped to an organization. The raw
// key value never appears at rest; only its SHA-256 hash and a display-safe
// mask are stored.
type APIKey struct {
	ID             string     `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string     `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name           string     `gorm:"type:text;not null" json:"name"`
	KeyHash        string     `gorm:"column:key_hash;type:text;not null;uniqueIndex" json:"-"`
	KeyMask        string     `gorm:"column:key_mask;type:text;not null" json:"key_mask"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	LastUsedAt     *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
