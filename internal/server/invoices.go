package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
	"github.com/smallbiznis/chatorder/internal/invoice/engine"
	"github.com/smallbiznis/chatorder/internal/observability/logger"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type generateInvoiceRequest struct {
	OrderID    string `json:"order_id"`
	Interstate bool   `json:"interstate"`
}

// GenerateInvoice allocates the next per-org sequence, computes and
// attaches the invoice, and uploads the PDF artifact. Repeating the call
// for an already-invoiced order returns the stored invoice unchanged.
func (s *Server) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if req.OrderID == "" {
		AbortWithError(c, newValidationError("order_id", "order_id is required"))
		return
	}

	ctx := c.Request.Context()
	org := orgID(c)
	profile := s.businessProfile(c, org)

	inv, err := s.orders.GenerateInvoice(ctx, org, req.OrderID, func(order *orderdomain.Order, sequence int64) (*invoicedomain.Invoice, error) {
		return engine.Generate(order, engine.Options{
			BusinessName:    profile.BusinessName,
			GSTNumber:       profile.GSTNumber,
			InvoiceSequence: sequence,
			TaxRatePercent:  profile.TaxRatePercent,
			IsInterstate:    req.Interstate,
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The PDF artifact is best effort: a storage hiccup must not undo an
	// allocated sequence. Regeneration re-uploads the same blob name.
	s.uploadInvoicePDF(c, org, inv)

	c.JSON(http.StatusCreated, gin.H{
		"invoice":      inv,
		"download_url": "/api/orders/" + req.OrderID + "/download",
	})
}

// DownloadInvoice verifies ownership, then redirects to a short-lived
// signed URL. The direct blob URL is never part of the API surface.
func (s *Server) DownloadInvoice(c *gin.Context) {
	ctx := c.Request.Context()
	org := orgID(c)

	order, err := s.orders.Get(ctx, org, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(order.Invoice) == 0 {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	var inv invoicedomain.Invoice
	if err := json.Unmarshal(order.Invoice, &inv); err != nil {
		AbortWithError(c, err)
		return
	}

	url, err := s.blobs.InvoiceURL(org, inv.InvoiceNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (s *Server) uploadInvoicePDF(c *gin.Context, org string, inv *invoicedomain.Invoice) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	data, err := s.renderer.RenderInvoice(ctx, inv)
	if err != nil {
		log.Warn("invoice pdf render failed",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Error(err),
		)
		return
	}
	if _, err := s.blobs.UploadInvoicePDF(ctx, org, inv.InvoiceNumber, data); err != nil {
		log.Warn("invoice pdf upload failed",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Error(err),
		)
	}
}

// businessProfile resolves the issuer identity, falling back to the
// configured defaults for tenants that never completed onboarding.
func (s *Server) businessProfile(c *gin.Context, org string) orgdomain.BusinessProfile {
	var profile orgdomain.BusinessProfile
	err := s.db.WithContext(c.Request.Context()).
		Where("organization_id = ?", org).
		First(&profile).Error
	if err == nil {
		return profile
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.FromContext(c.Request.Context()).Warn("business profile lookup failed",
			zap.String("org_id", org),
			zap.Error(err),
		)
	}
	return orgdomain.BusinessProfile{
		OrganizationID: org,
		BusinessName:   s.cfg.DefaultBusinessName,
		GSTNumber:      s.cfg.DefaultGSTNumber,
		TaxRatePercent: engine.DefaultTaxRatePercent,
	}
}
