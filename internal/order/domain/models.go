// Package domain contains the order aggregate produced by the extraction
// pipeline and consumed by the invoice engine.
package domain

import (
	"errors"
	"time"

	"github.com/smallbiznis/chatorder/internal/money"
	"gorm.io/datatypes"
)

var (
	// ErrNotFound covers absent, soft-deleted, and cross-tenant rows alike;
	// callers cannot distinguish the three.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus rejects status values outside the enumeration.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrSequenceConflict is returned when sequence allocation loses the
	// unique-index race too many times.
	ErrSequenceConflict = errors.New("invoice sequence conflict")
	// ErrInvoiceExists is returned when generation hits an order that
	// already carries an invoice.
	ErrInvoiceExists = errors.New("invoice already attached")
)

// ExtractionType discriminates how the order was captured.
type ExtractionType string

const (
	ExtractionSingleMessage ExtractionType = "single_message"
	ExtractionChatLog       ExtractionType = "chat_log"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is one of the four enumerated states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFulfilled, StatusCancelled:
		return true
	}
	return false
}

// Confidence buckets for chat-log extractions.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Order carries the structured result of one extraction plus its audit
// trail. rawAiResponse and rawMessages are retained even when downstream
// steps fail.
type Order struct {
	ID             string         `gorm:"primaryKey;type:text" json:"id"`
	OrganizationID string         `gorm:"column:organization_id;not null;index;uniqueIndex:ux_orders_org_invoice_seq,priority:1" json:"organization_id"`
	CustomerID     string         `gorm:"column:customer_id;not null;index" json:"customer_id"`
	CustomerName   string         `gorm:"-" json:"customer_name,omitempty"`
	ExtractionType ExtractionType `gorm:"column:extraction_type;type:text;not null;index" json:"extraction_type"`
	Status         Status         `gorm:"type:text;not null;default:'pending';index" json:"status"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	TotalAmount     money.Money `gorm:"column:total_amount;not null;default:0" json:"total_amount"`
	DeliveryAddress string      `gorm:"column:delivery_address;type:text" json:"delivery_address,omitempty"`
	DeliveryDate    string      `gorm:"column:delivery_date;type:text" json:"delivery_date,omitempty"`

	Confidence      Confidence `gorm:"type:text" json:"confidence,omitempty"`
	ConfidenceScore *float64   `gorm:"column:confidence_score" json:"confidence_score,omitempty"`

	RawAIResponse datatypes.JSON `gorm:"column:raw_ai_response;type:jsonb" json:"raw_ai_response,omitempty"`
	RawMessages   datatypes.JSON `gorm:"column:raw_messages;type:jsonb" json:"raw_messages,omitempty"`

	Invoice         datatypes.JSON `gorm:"column:invoice;type:jsonb" json:"invoice,omitempty"`
	InvoiceSequence *int64         `gorm:"column:invoice_sequence;uniqueIndex:ux_orders_org_invoice_seq,priority:2" json:"invoice_sequence,omitempty"`

	DeletedAt *time.Time `gorm:"column:deleted_at;index" json:"-"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is a normalized line. ProductName is denormalized on purpose;
// the catalog may not contain the product at all.
type OrderItem struct {
	ID             string       `gorm:"primaryKey;type:text" json:"id"`
	OrderID        string       `gorm:"column:order_id;not null;index" json:"order_id"`
	OrganizationID string       `gorm:"column:organization_id;not null;index" json:"organization_id"`
	ProductName    string       `gorm:"column:product_name;not null" json:"product_name"`
	Quantity       float64      `gorm:"not null;default:1" json:"quantity"`
	Unit           string       `gorm:"type:text" json:"unit,omitempty"`
	PricePerUnit   *money.Money `gorm:"column:price_per_unit" json:"price_per_unit,omitempty"`
	TotalPrice     money.Money  `gorm:"column:total_price;not null;default:0" json:"total_price"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }
