// Package domain contains the tenant root entities. Organizations are
// created externally; the core references them and never deletes them.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Tier determines an organization's rate-limit class.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Permission is the closed enumeration of role capabilities.
type Permission string

const (
	PermViewOrders    Permission = "view_orders"
	PermEditOrders    Permission = "edit_orders"
	PermDeleteOrders  Permission = "delete_orders"
	PermViewPII       Permission = "view_pii"
	PermManageUsers   Permission = "manage_users"
	PermManageBilling Permission = "manage_billing"
	PermManageAPIKeys Permission = "manage_api_keys"
	PermViewAnalytics Permission = "view_analytics"
)

// Organization is the top-level isolation boundary.
type Organization struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	GSTNumber string    `gorm:"column:gst_number" json:"gst_number,omitempty"`
	Tier      Tier      `gorm:"type:text;not null;default:'free'" json:"tier"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// BusinessProfile holds the issuer identity used by the invoice engine.
type BusinessProfile struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string    `gorm:"column:organization_id;not null;uniqueIndex" json:"organization_id"`
	BusinessName   string    `gorm:"not null" json:"business_name"`
	GSTNumber      string    `gorm:"column:gst_number" json:"gst_number,omitempty"`
	TaxRatePercent float64   `gorm:"not null;default:18" json:"tax_rate_percent"`
	Currency       string    `gorm:"type:text;not null;default:'INR'" json:"currency"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BusinessProfile) TableName() string { return "business_profiles" }

// Role is a named permission set scoped to one organization.
type Role struct {
	ID             string         `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string         `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name           string         `gorm:"not null" json:"name"`
	Permissions    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"permissions"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// ValidTier reports whether the tier is one of the known classes.
func ValidTier(t Tier) bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}
