package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus maps user input onto the closed set of order statuses.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch s := OrderStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// CanTransitionTo reports whether an explicit status update from s to next is allowed.
// Re-applying the current status is accepted as a no-op.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusPending:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	case OrderStatusCompleted, OrderStatusCancelled:
		return false
	default:
		return false
	}
}

type Order struct {
	OrderID         string          `json:"order_id"`
	CustomerID      string          `json:"customer_id"`
	OwnerID         string          `json:"owner_id"`
	OrderedAt       time.Time       `json:"ordered_at"`
	Lines           []OrderLine     `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	Status          OrderStatus     `json:"status"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderLine is the snapshot of an item taken when the order was placed.
type OrderLine struct {
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Line returns the line for itemID, or nil when the order does not carry it.
func (o *Order) Line(itemID string) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			return &o.Lines[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate lines without touching shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}

type OrderLineRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	OrderID         string             `json:"order_id" binding:"required"`
	CustomerID      string             `json:"customer_id" binding:"required"`
	Lines           []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
}

// LineUpdate sets the quantity of the order line holding ItemID.
type LineUpdate struct {
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

// UpdateOrderRequest carries a partial update; nil fields are left untouched.
type UpdateOrderRequest struct {
	Lines           []LineUpdate     `json:"lines"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	CustomerID      *string          `json:"customer_id"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
