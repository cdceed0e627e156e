package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	"github.com/smallbiznis/chatorder/pkg/db/pagination"
)

func orgID(c *gin.Context) string {
	if identity := identityFrom(c); identity != nil {
		return identity.OrgID
	}
	return ""
}

type listOrdersQuery struct {
	pagination.Pagination
	Status string `form:"status"`
	Type   string `form:"type"`
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("query", "invalid query parameters"))
		return
	}
	query.Pagination = query.Pagination.Normalize()

	filter := orderdomain.ListFilter{}
	if query.Status != "" {
		if !orderdomain.ValidStatus(orderdomain.Status(query.Status)) {
			AbortWithError(c, newValidationError("status", "unknown status"))
			return
		}
		filter.Status = orderdomain.Status(query.Status)
	}
	if query.Type != "" {
		filter.ExtractionType = orderdomain.ExtractionType(query.Type)
	}

	ctx := c.Request.Context()
	org := orgID(c)

	orders, err := s.orders.List(ctx, org, filter, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total, err := s.orders.Count(ctx, org, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.orders.Get(c.Request.Context(), orgID(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	var body struct {
		Status orderdomain.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if body.Status == "" {
		AbortWithError(c, newValidationError("status", "status is required"))
		return
	}

	order, err := s.orders.UpdateStatus(c.Request.Context(), orgID(c), c.Param("id"), body.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// EditOrder patches the allow-listed fields. Unknown fields are a hard
// reject, not a silent drop.
func (s *Server) EditOrder(c *gin.Context) {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()

	var input orderdomain.UpdateInput
	if err := decoder.Decode(&input); err != nil {
		AbortWithError(c, newValidationError("body", "unknown or malformed fields"))
		return
	}

	order, err := s.orders.Update(c.Request.Context(), orgID(c), c.Param("id"), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) DeleteOrder(c *gin.Context) {
	if err := s.orders.Delete(c.Request.Context(), orgID(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Stats(c *gin.Context) {
	stats, err := s.orders.Stats(c.Request.Context(), orgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
