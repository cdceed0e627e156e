package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a customer is absent under org scope.
var ErrNotFound = errors.New("customer not found")

// Customer is an org-scoped contact. Phone is unique only within an
// organization; the same number may exist across tenants.
type Customer struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string    `gorm:"column:organization_id;not null;index;uniqueIndex:ux_customers_org_phone,priority:1" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	Phone          *string   `gorm:"uniqueIndex:ux_customers_org_phone,priority:2" json:"phone,omitempty"`
	Address        string    `gorm:"type:text" json:"address,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
