package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	customerdomain "github.com/smallbiznis/chatorder/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
	"github.com/smallbiznis/chatorder/internal/money"
	"github.com/smallbiznis/chatorder/internal/order/domain"
	productdomain "github.com/smallbiznis/chatorder/internal/product/domain"
	"github.com/smallbiznis/chatorder/pkg/db"
	"github.com/smallbiznis/chatorder/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sequence allocation retries this many times before giving up with
// ErrSequenceConflict. Each retry recomputes max(invoice_sequence), so a
// lost race converges quickly.
const maxSequenceRetries = 5

type repo struct {
	db  *gorm.DB
	log *zap.Logger
}

func Provide(conn *gorm.DB, log *zap.Logger) domain.Repository {
	return &repo{db: conn, log: log.Named("order.repository")}
}

func (r *repo) List(ctx context.Context, orgID string, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Order, error) {
	page = page.Normalize()

	var orders []*domain.Order
	stmt := r.scoped(ctx, orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ExtractionType != "" {
		stmt = stmt.Where("extraction_type = ?", filter.ExtractionType)
	}
	err := stmt.
		Preload("Items").
		Order("created_at desc, id desc").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	if err := r.fillCustomerNames(ctx, orgID, orders); err != nil {
		return nil, err
	}
	fillFallbackItems(orders)
	return orders, nil
}

func (r *repo) Count(ctx context.Context, orgID string, filter domain.ListFilter) (int64, error) {
	var count int64
	stmt := r.scoped(ctx, orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ExtractionType != "" {
		stmt = stmt.Where("extraction_type = ?", filter.ExtractionType)
	}
	err := stmt.Count(&count).Error
	return count, err
}

func (r *repo) Get(ctx context.Context, orgID, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.scoped(ctx, orgID).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.fillCustomerNames(ctx, orgID, []*domain.Order{&order}); err != nil {
		return nil, err
	}
	fillFallbackItems([]*domain.Order{&order})
	return &order, nil
}

func (r *repo) Create(ctx context.Context, orgID string, input domain.CreateInput) (*domain.Order, error) {
	now := time.Now().UTC()

	order := &domain.Order{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		ExtractionType:  input.ExtractionType,
		Status:          domain.StatusPending,
		DeliveryAddress: input.DeliveryAddress,
		DeliveryDate:    input.DeliveryDate,
		Confidence:      input.Confidence,
		ConfidenceScore: input.ConfidenceScore,
		RawAIResponse:   input.RawAIResponse,
		RawMessages:     input.RawMessages,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := r.resolveCustomer(tx, orgID, input)
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID
		order.CustomerName = customer.Name

		if err := fillCatalogPrices(tx, orgID, input.Items); err != nil {
			return err
		}
		items, total := buildItems(order, input.Items, now)
		order.TotalAmount = total
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("org_id", orgID),
		zap.String("extraction_type", string(order.ExtractionType)),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

func (r *repo) UpdateStatus(ctx context.Context, orgID, id string, status domain.Status) (*domain.Order, error) {
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	res := r.scoped(ctx, orgID).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return r.Get(ctx, orgID, id)
}

func (r *repo) Update(ctx context.Context, orgID, id string, input domain.UpdateInput) (*domain.Order, error) {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order domain.Order
		err := tx.Where("organization_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
			First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Only the editable columns move; everything else is immutable
		// after extraction.
		updates := map[string]any{"updated_at": now}
		if input.DeliveryAddress != nil {
			updates["delivery_address"] = *input.DeliveryAddress
		}
		if input.DeliveryDate != nil {
			updates["delivery_date"] = *input.DeliveryDate
		}
		if input.CustomerName != nil {
			customer, err := findOrCreateCustomer(tx, orgID, *input.CustomerName, nil, now)
			if err != nil {
				return err
			}
			updates["customer_id"] = customer.ID
		}

		if input.Items != nil {
			if err := tx.Where("order_id = ?", order.ID).Delete(&domain.OrderItem{}).Error; err != nil {
				return err
			}
			items, total := buildItems(&order, *input.Items, now)
			if len(items) > 0 {
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
			updates["total_amount"] = total
		}

		return tx.Model(&domain.Order{}).
			Where("id = ?", order.ID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, orgID, id)
}

func (r *repo) Delete(ctx context.Context, orgID, id string) error {
	// Soft delete keeps the row (and its invoice_sequence) so numbering
	// stays dense and audit data survives.
	res := r.scoped(ctx, orgID).
		Where("id = ?", id).
		Updates(map[string]any{
			"deleted_at": time.Now().UTC(),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Stats(ctx context.Context, orgID string) (*domain.Stats, error) {
	stats := &domain.Stats{}

	if err := r.scoped(ctx, orgID).Count(&stats.TotalOrders).Error; err != nil {
		return nil, err
	}
	if err := r.scoped(ctx, orgID).Where("status = ?", domain.StatusPending).Count(&stats.PendingOrders).Error; err != nil {
		return nil, err
	}
	if err := r.scoped(ctx, orgID).Where("status = ?", domain.StatusConfirmed).Count(&stats.ConfirmedOrders).Error; err != nil {
		return nil, err
	}

	var revenue struct{ Total int64 }
	err := r.scoped(ctx, orgID).
		Where("status <> ?", domain.StatusCancelled).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Scan(&revenue).Error
	if err != nil {
		return nil, err
	}
	stats.TotalRevenue = money.Money(revenue.Total)
	return stats, nil
}

func (r *repo) GenerateInvoice(ctx context.Context, orgID, id string, render func(order *domain.Order, sequence int64) (*invoicedomain.Invoice, error)) (*invoicedomain.Invoice, error) {
	var result *invoicedomain.Invoice

	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var order domain.Order
			err := tx.Preload("Items").
				Where("organization_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
				First(&order).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}

			// Retried generation is idempotent: the stored invoice wins.
			if len(order.Invoice) > 0 {
				var existing invoicedomain.Invoice
				if err := json.Unmarshal(order.Invoice, &existing); err != nil {
					return fmt.Errorf("decode stored invoice: %w", err)
				}
				result = &existing
				return nil
			}

			var customer customerdomain.Customer
			if err := tx.Where("id = ?", order.CustomerID).First(&customer).Error; err == nil {
				order.CustomerName = customer.Name
			}

			// Soft-deleted rows keep their sequence, so the scan must not
			// filter on deleted_at.
			var maxSeq struct{ Max int64 }
			err = tx.Model(&domain.Order{}).
				Where("organization_id = ?", orgID).
				Select("COALESCE(MAX(invoice_sequence), 0) AS max").
				Scan(&maxSeq).Error
			if err != nil {
				return err
			}
			sequence := maxSeq.Max + 1

			invoice, err := render(&order, sequence)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(invoice)
			if err != nil {
				return err
			}

			res := tx.Model(&domain.Order{}).
				Where("id = ? AND organization_id = ?", order.ID, orgID).
				Updates(map[string]any{
					"invoice":          payload,
					"invoice_sequence": sequence,
					"status":           domain.StatusConfirmed,
					"updated_at":       time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			result = invoice
			return nil
		})
		if err == nil {
			return result, nil
		}
		if db.IsDuplicateKeyErr(err) {
			r.log.Warn("invoice sequence race lost, retrying",
				zap.String("order_id", id),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, err
	}
	return nil, domain.ErrSequenceConflict
}

// scoped returns the base query every read and write goes through: the
// caller's organization, live rows only.
func (r *repo) scoped(ctx context.Context, orgID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("organization_id = ? AND deleted_at IS NULL", orgID)
}

func (r *repo) resolveCustomer(tx *gorm.DB, orgID string, input domain.CreateInput) (*customerdomain.Customer, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		name = "Unknown Customer"
	}
	now := time.Now().UTC()

	// Chat transcripts identify repeat customers; a lone message does not,
	// so the single path always creates a fresh contact.
	if input.ExtractionType == domain.ExtractionChatLog {
		return findOrCreateCustomer(tx, orgID, name, input.CustomerPhone, now)
	}
	customer := &customerdomain.Customer{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Phone:          input.CustomerPhone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Create(customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

func findOrCreateCustomer(tx *gorm.DB, orgID, name string, phone *string, now time.Time) (*customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := tx.Where("organization_id = ? AND name = ?", orgID, name).
		First(&customer).Error
	if err == nil {
		return &customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer = customerdomain.Customer{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Phone:          phone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// fillCatalogPrices backfills missing unit prices from the org's product
// catalog. Extraction leaves the price nil when the conversation never
// mentions one; a catalog match is the next best source. Items the catalog
// does not know stay unpriced.
func fillCatalogPrices(tx *gorm.DB, orgID string, inputs []domain.ItemInput) error {
	for i := range inputs {
		if inputs[i].PricePerUnit != nil || strings.TrimSpace(inputs[i].ProductName) == "" {
			continue
		}
		var product productdomain.Product
		err := tx.Where("organization_id = ? AND LOWER(name) = LOWER(?)", orgID, inputs[i].ProductName).
			First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		price := product.PricePerUnit
		inputs[i].PricePerUnit = &price
		if inputs[i].Unit == "" {
			inputs[i].Unit = product.Unit
		}
	}
	return nil
}

func buildItems(order *domain.Order, inputs []domain.ItemInput, now time.Time) ([]domain.OrderItem, money.Money) {
	items := make([]domain.OrderItem, 0, len(inputs))
	var total money.Money
	for _, in := range inputs {
		qty := in.Quantity
		if qty <= 0 {
			qty = 1
		}
		item := domain.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			OrganizationID: order.OrganizationID,
			ProductName:    in.ProductName,
			Quantity:       qty,
			Unit:           in.Unit,
			PricePerUnit:   in.PricePerUnit,
			CreatedAt:      now,
		}
		if in.PricePerUnit != nil {
			item.TotalPrice = in.PricePerUnit.MulQuantity(qty)
		}
		total += item.TotalPrice
		items = append(items, item)
	}
	return items, total
}

// fillFallbackItems renders line items out of the stored model response
// when an order has no item rows, so records written before item
// persistence (or with items stripped) still list what was ordered. The
// synthesized items are display-only and never written back.
func fillFallbackItems(orders []*domain.Order) {
	for _, o := range orders {
		if len(o.Items) > 0 || len(o.RawAIResponse) == 0 {
			continue
		}
		var raw struct {
			Items []struct {
				ProductName string   `json:"product_name"`
				Quantity    float64  `json:"quantity"`
				Unit        string   `json:"unit"`
				Price       *float64 `json:"price"`
			} `json:"items"`
		}
		if err := json.Unmarshal(o.RawAIResponse, &raw); err != nil {
			continue
		}
		items := make([]domain.OrderItem, 0, len(raw.Items))
		for _, it := range raw.Items {
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			item := domain.OrderItem{
				OrderID:        o.ID,
				OrganizationID: o.OrganizationID,
				ProductName:    it.ProductName,
				Quantity:       qty,
				Unit:           it.Unit,
			}
			if it.Price != nil {
				price := money.FromRupees(*it.Price)
				item.PricePerUnit = &price
				item.TotalPrice = price.MulQuantity(qty)
			}
			items = append(items, item)
		}
		o.Items = items
	}
}

func (r *repo) fillCustomerNames(ctx context.Context, orgID string, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.CustomerID)
	}

	var customers []customerdomain.Customer
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Find(&customers).Error
	if err != nil {
		return err
	}

	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}
	for _, o := range orders {
		o.CustomerName = names[o.CustomerID]
	}
	return nil
}
