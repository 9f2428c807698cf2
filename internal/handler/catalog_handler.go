package handler

import (
	"net/http"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *zap.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func (h *CatalogHandler) CreateItem(c *gin.Context) {
	var req domain.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	item, err := h.catalog.CreateItem(c.Request.Context(), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to create item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *CatalogHandler) ListItems(c *gin.Context) {
	items, err := h.catalog.ListItems(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list items", err)
		return
	}
	if items == nil {
		items = []domain.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *CatalogHandler) GetItem(c *gin.Context) {
	item, err := h.catalog.GetItem(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to get item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) UpdateItem(c *gin.Context) {
	var req domain.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	item, err := h.catalog.UpdateItem(c.Request.Context(), c.Param("id"), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to update item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) DeleteItem(c *gin.Context) {
	if err := h.catalog.DeleteItem(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		respondError(c, h.logger, "Failed to delete item", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	var req domain.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	item, err := h.catalog.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to adjust stock", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *CatalogHandler) CreateCustomer(c *gin.Context) {
	var req domain.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	customer, err := h.catalog.CreateCustomer(c.Request.Context(), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to create customer", err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *CatalogHandler) GetCustomer(c *gin.Context) {
	customer, err := h.catalog.GetCustomer(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to get customer", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CatalogHandler) ListCustomers(c *gin.Context) {
	customers, err := h.catalog.ListCustomers(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list customers", err)
		return
	}
	if customers == nil {
		customers = []domain.Customer{}
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers, "count": len(customers)})
}

func (h *CatalogHandler) UpdateCustomer(c *gin.Context) {
	var req domain.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}
	customer, err := h.catalog.UpdateCustomer(c.Request.Context(), c.Param("id"), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to update customer", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CatalogHandler) DeleteCustomer(c *gin.Context) {
	if err := h.catalog.DeleteCustomer(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		respondError(c, h.logger, "Failed to delete customer", err)
		return
	}
	c.Status(http.StatusNoContent)
}
