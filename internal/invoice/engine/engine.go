// Package engine deterministically computes invoice totals from an order
// using fixed-precision paise arithmetic. GST splits evenly into CGST/SGST
// for intra-state supplies and collapses into IGST across state lines.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
	"github.com/smallbiznis/chatorder/internal/money"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
)

// DefaultTaxRatePercent applies when the business profile carries no rate.
const DefaultTaxRatePercent = 18

// Options parameterize one invoice computation.
type Options struct {
	BusinessName    string
	GSTNumber       string
	InvoiceSequence int64
	TaxRatePercent  float64
	IsInterstate    bool
	Now             time.Time
}

// Generate computes a fully populated invoice for the order. Null line
// prices are treated as zero; they contribute nothing to the subtotal.
func Generate(order *orderdomain.Order, opts Options) (*invoicedomain.Invoice, error) {
	if order == nil {
		return nil, errors.New("order is required")
	}
	if opts.InvoiceSequence <= 0 {
		return nil, errors.New("invoice sequence must be a positive integer")
	}

	rate := opts.TaxRatePercent
	if rate <= 0 {
		rate = DefaultTaxRatePercent
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	lines := make([]invoicedomain.Line, 0, len(order.Items))
	var subtotal money.Money
	for _, item := range order.Items {
		var price money.Money
		if item.PricePerUnit != nil {
			price = *item.PricePerUnit
		}
		amount := price.MulQuantity(item.Quantity)
		subtotal += amount
		lines = append(lines, invoicedomain.Line{
			Name:         item.ProductName,
			Quantity:     item.Quantity,
			Unit:         item.Unit,
			PricePerUnit: price,
			Amount:       amount,
		})
	}

	bps := int64(math.Floor(rate*100 + 0.5))
	inv := &invoicedomain.Invoice{
		InvoiceNumber: Number(now.Year(), opts.InvoiceSequence),
		Date:          now.Format("02/01/2006"),
		CustomerName:  order.CustomerName,
		Items:         lines,
		Subtotal:      subtotal,
		BusinessName:  opts.BusinessName,
		GSTNumber:     opts.GSTNumber,
	}

	if opts.IsInterstate {
		igst := subtotal.PercentBasisPoints(bps)
		inv.IGST = &igst
		inv.Total = subtotal + igst
	} else {
		half := subtotal.HalfPercentBasisPoints(bps)
		inv.CGST = half
		inv.SGST = half
		inv.Total = subtotal + half + half
	}

	return inv, nil
}

// Number formats INV-YYYY-NNN. The sequence is zero-padded to three digits
// but never truncated beyond them.
func Number(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%03d", year, seq)
}
