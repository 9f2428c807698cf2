package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownCustomerName is recorded when the customer no longer exists at archive time.
const UnknownCustomerName = "Unknown"

// OrderHistoryEntry is the immutable snapshot of an order taken when it was deleted.
type OrderHistoryEntry struct {
	ArchiveID       string          `json:"archive_id"`
	OriginalOrderID string          `json:"original_order_id"`
	OrderedAt       time.Time       `json:"ordered_at"`
	CustomerID      string          `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	Lines           []OrderLine     `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	Status          OrderStatus     `json:"status"`
	OwnerID         string          `json:"owner_id"`
	ArchivedAt      time.Time       `json:"archived_at"`
}
