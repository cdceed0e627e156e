package domain

import (
	"context"

	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
	"github.com/smallbiznis/chatorder/internal/money"
	"github.com/smallbiznis/chatorder/pkg/db/pagination"
)

// ListFilter narrows order listings. Zero values mean "no constraint".
type ListFilter struct {
	Status         Status
	ExtractionType ExtractionType
}

// ItemInput is one line of a new or updated order.
type ItemInput struct {
	ProductName  string       `json:"product_name"`
	Quantity     float64      `json:"quantity"`
	Unit         string       `json:"unit"`
	PricePerUnit *money.Money `json:"price_per_unit"`
}

// CreateInput captures everything needed to persist one extraction result.
type CreateInput struct {
	ExtractionType  ExtractionType
	CustomerName    string
	CustomerPhone   *string
	DeliveryAddress string
	DeliveryDate    string
	Items           []ItemInput
	Confidence      Confidence
	ConfidenceScore *float64
	RawAIResponse   []byte
	RawMessages     []byte
}

// UpdateInput carries the editable fields. Nil means "leave unchanged";
// anything not listed here cannot be modified after creation.
type UpdateInput struct {
	DeliveryAddress *string      `json:"delivery_address"`
	DeliveryDate    *string      `json:"delivery_date"`
	CustomerName    *string      `json:"customer_name"`
	Items           *[]ItemInput `json:"items"`
}

// Stats aggregates the dashboard counters for one organization.
type Stats struct {
	TotalOrders     int64       `json:"total_orders"`
	PendingOrders   int64       `json:"pending_orders"`
	ConfirmedOrders int64       `json:"confirmed_orders"`
	TotalRevenue    money.Money `json:"total_revenue"`
}

// Repository is the tenant-scoped order store. Every method takes the
// organization ID first and never returns rows outside it.
type Repository interface {
	List(ctx context.Context, orgID string, filter ListFilter, page pagination.Pagination) ([]*Order, error)
	Count(ctx context.Context, orgID string, filter ListFilter) (int64, error)
	Get(ctx context.Context, orgID, id string) (*Order, error)
	Create(ctx context.Context, orgID string, input CreateInput) (*Order, error)
	UpdateStatus(ctx context.Context, orgID, id string, status Status) (*Order, error)
	Update(ctx context.Context, orgID, id string, input UpdateInput) (*Order, error)
	Delete(ctx context.Context, orgID, id string) error
	Stats(ctx context.Context, orgID string) (*Stats, error)

	// GenerateInvoice allocates the next invoice sequence inside a
	// transaction and attaches the rendered invoice to the order. Repeating
	// the call for an order that already carries an invoice returns the
	// stored invoice without allocating a new sequence.
	GenerateInvoice(ctx context.Context, orgID, id string, render func(order *Order, sequence int64) (*invoicedomain.Invoice, error)) (*invoicedomain.Invoice, error)
}
