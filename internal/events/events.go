package events

import (
	"context"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderCreated       OrderEventType = "order.created"
	OrderUpdated       OrderEventType = "order.updated"
	OrderStatusChanged OrderEventType = "order.status_changed"
	OrderDeleted       OrderEventType = "order.deleted"
)

type OrderEvent struct {
	EventID     string             `json:"event_id"`
	Type        OrderEventType     `json:"type"`
	OrderID     string             `json:"order_id"`
	OwnerID     string             `json:"owner_id"`
	CustomerID  string             `json:"customer_id"`
	Status      string             `json:"status"`
	FinalAmount decimal.Decimal    `json:"final_amount"`
	Lines       []domain.OrderLine `json:"lines"`
	ArchiveID   string             `json:"archive_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	RequestID   string             `json:"request_id,omitempty"`
}

// CompensationEvent asks an operator or a repair job to fix an order whose
// deletion did not complete.
type CompensationEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type requestIDKey struct{}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }

func (NopPublisher) PublishCompensation(context.Context, CompensationEvent) error { return nil }
