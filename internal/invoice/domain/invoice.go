// Package domain holds the invoice value object. Once attached to an order
// it is an immutable snapshot; edits to the order do not rewrite it.
package domain

import (
	"github.com/smallbiznis/chatorder/internal/money"
)

// Line is one invoice row with its extended amount.
type Line struct {
	Name         string      `json:"name"`
	Quantity     float64     `json:"quantity"`
	Unit         string      `json:"unit,omitempty"`
	PricePerUnit money.Money `json:"price_per_unit"`
	Amount       money.Money `json:"amount"`
}

// Invoice is the computed, tax-compliant record embedded in an order.
type Invoice struct {
	InvoiceNumber string       `json:"invoice_number"`
	Date          string       `json:"date"`
	CustomerName  string       `json:"customer_name"`
	Items         []Line       `json:"items"`
	Subtotal      money.Money  `json:"subtotal"`
	CGST          money.Money  `json:"cgst"`
	SGST          money.Money  `json:"sgst"`
	IGST          *money.Money `json:"igst,omitempty"`
	Total         money.Money  `json:"total"`
	BusinessName  string       `json:"business_name"`
	GSTNumber     string       `json:"gst_number,omitempty"`
}
