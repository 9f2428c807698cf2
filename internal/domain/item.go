package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Customer struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	NIC        string    `json:"nic"`
	Address    string    `json:"address"`
	ContactNo  string    `json:"contact_no"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateItemRequest struct {
	ItemID    string          `json:"item_id" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" binding:"min=0"`
}

// UpdateItemRequest never carries a quantity: stock only moves through the ledger.
type UpdateItemRequest struct {
	Name      *string          `json:"name"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

type CreateCustomerRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	NIC        string `json:"nic" binding:"required"`
	Address    string `json:"address" binding:"required"`
	ContactNo  string `json:"contact_no" binding:"required"`
}

// UpdateCustomerRequest changes only the fields that are set.
type UpdateCustomerRequest struct {
	Name      *string `json:"name"`
	NIC       *string `json:"nic"`
	Address   *string `json:"address"`
	ContactNo *string `json:"contact_no"`
}
