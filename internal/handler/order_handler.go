package handler

import (
	"context"
	"net/http"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/events"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/service"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// requestContext carries the request id into the service so published events can reference it.
func requestContext(c *gin.Context) context.Context {
	return events.ContextWithRequestID(c.Request.Context(), c.GetString(middleware.RequestIDKey))
}

func userID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	order, err := h.orderService.CreateOrder(requestContext(c), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to create order", err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to get order", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req domain.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	order, err := h.orderService.UpdateOrder(requestContext(c), c.Param("id"), req, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to update order", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) SetStatus(c *gin.Context) {
	var req domain.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	order, err := h.orderService.SetStatus(requestContext(c), c.Param("id"), req.Status, userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to change order status", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	entry, err := h.orderService.DeleteOrder(requestContext(c), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to delete order", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	entry, err := h.orderService.GetOrderHistory(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to get order history", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
