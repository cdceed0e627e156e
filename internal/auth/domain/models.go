package domain

import (
	"errors"
	"time"
)

var (
	// ErrUnauthorized covers missing, invalid, and expired credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// User mirrors the identity provider's subject. organization_id stays null
// until the user joins an organization.
type User struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	Email          string    `gorm:"type:text;not null" json:"email"`
	Name           string    `gorm:"type:text" json:"name,omitempty"`
	OrganizationID *string   `gorm:"column:organization_id;index" json:"organization_id,omitempty"`
	Role           string    `gorm:"type:text;not null;default:'member'" json:"role"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Claims are the token fields the core consumes after verification.
type Claims struct {
	Subject string
	Email   string
	Name    string
}
