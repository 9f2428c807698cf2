package handler

import (
	"errors"
	"net/http"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal failures are logged and not echoed back.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	requestID := c.GetString(middleware.RequestIDKey)
	status := statusFor(err)

	body := gin.H{"error": msg, "request_id": requestID}
	if status == http.StatusInternalServerError {
		logger.Error(msg,
			zap.String("request_id", requestID),
			zap.String("user_id", c.GetString(middleware.UserIDKey)),
			zap.Error(err))
	} else {
		body["details"] = err.Error()
	}

	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		body["item_id"] = stockErr.ItemID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}

	c.JSON(status, body)
}

func bindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Debug("Invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request format",
		"details": err.Error(),
	})
}
