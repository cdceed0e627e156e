// Package pdf renders invoices into downloadable PDF documents.
package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
)

// Renderer turns an invoice snapshot into PDF bytes.
type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

// RenderInvoice lays out a tax invoice: issuer block, invoice meta, line
// items, and the GST totals that the invoice already carries. The renderer
// never recomputes amounts.
func (r *Renderer) RenderInvoice(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, fmt.Errorf("render invoice: nil invoice")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Tax Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(inv.BusinessName, props.Text{Style: fontstyle.Bold}),
			text.New(gstLine(inv.GSTNumber), props.Text{Top: 5, Size: 9}),
		),
		col.New(6).Add(
			text.New("Invoice number: "+inv.InvoiceNumber, props.Text{Align: align.Right}),
			text.New("Date: "+inv.Date, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(16,
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(inv.CustomerName, props.Text{Top: 5}),
		),
		col.New(6),
	)

	m.AddRow(8,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range inv.Items {
		m.AddRow(8,
			text.NewCol(6, line.Name, props.Text{Size: 9}),
			text.NewCol(2, quantityLabel(line), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, "₹"+line.PricePerUnit.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, "₹"+line.Amount.String(), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, "₹"+inv.Subtotal.String(), props.Text{Size: 9, Align: align.Right}),
	)
	if inv.IGST != nil {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "IGST", props.Text{Size: 9}),
			text.NewCol(2, "₹"+inv.IGST.String(), props.Text{Size: 9, Align: align.Right}),
		)
	} else {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "CGST", props.Text{Size: 9}),
			text.NewCol(2, "₹"+inv.CGST.String(), props.Text{Size: 9, Align: align.Right}),
		)
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "SGST", props.Text{Size: 9}),
			text.NewCol(2, "₹"+inv.SGST.String(), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(2, "₹"+inv.Total.String(), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return doc.GetBytes(), nil
}

func gstLine(gstin string) string {
	if gstin == "" {
		return "Unregistered"
	}
	return "GSTIN: " + gstin
}

func quantityLabel(line invoicedomain.Line) string {
	label := fmt.Sprintf("%g", line.Quantity)
	if line.Unit != "" {
		label += " " + line.Unit
	}
	return label
}
