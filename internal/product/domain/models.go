package domain

import (
	"time"

	"github.com/smallbiznis/chatorder/internal/money"
)

// Product is an optional org-scoped catalog entry.
type Product struct {
	ID             string      `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string      `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name           string      `gorm:"not null" json:"name"`
	Unit           string      `gorm:"type:text" json:"unit,omitempty"`
	PricePerUnit   money.Money `gorm:"column:price_per_unit;not null;default:0" json:"price_per_unit"`
	CreatedAt      time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
