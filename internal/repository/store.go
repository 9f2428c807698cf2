package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
)

var (
	ErrAlreadyExists   = errors.New("record already exists")
	ErrVersionMismatch = errors.New("record version changed")
	ErrTooManyWrites   = errors.New("mutation exceeds the transaction write limit")
)

// IsRetryable reports whether a failed Commit may succeed when re-run against fresh data.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionMismatch) || errors.Is(err, domain.ErrInsufficientStock)
}

// StockDelta is a signed adjustment of an item's available quantity.
type StockDelta struct {
	ItemID string
	Delta  int
}

type OrderOp int

const (
	// OrderCreate fails with ErrAlreadyExists when the order id is taken.
	OrderCreate OrderOp = iota + 1
	// OrderReplace requires the stored version to equal Order.Version and bumps it.
	OrderReplace
	// OrderDelete requires the stored version to equal Order.Version.
	OrderDelete
)

type OrderWrite struct {
	Op    OrderOp
	Order *domain.Order
}

// DeleteIntent marks an order whose deletion has started. ArchiveID names the history
// entry that the deletion commits, so an older archive of a reused order id does not
// count as the deletion having finished.
type DeleteIntent struct {
	OrderID   string
	ArchiveID string
	CreatedAt time.Time
}

// Mutation is applied by Commit as a single unit: every part succeeds or nothing is written.
type Mutation struct {
	Deltas      []StockDelta
	Order       *OrderWrite
	History     *domain.OrderHistoryEntry
	PutIntent   *DeleteIntent
	ClearIntent string
}

func (m Mutation) writeCount() int {
	n := len(m.Deltas)
	if m.Order != nil {
		n++
	}
	if m.History != nil {
		n++
	}
	if m.PutIntent != nil {
		n++
	}
	if m.ClearIntent != "" {
		n++
	}
	return n
}

// MergeDeltas folds deltas of the same item together and sorts them by item id,
// which keeps lock acquisition order stable across concurrent transactions.
func MergeDeltas(deltas []StockDelta) []StockDelta {
	sums := make(map[string]int, len(deltas))
	for _, d := range deltas {
		sums[d.ItemID] += d.Delta
	}
	merged := make([]StockDelta, 0, len(sums))
	for id, delta := range sums {
		if delta == 0 {
			continue
		}
		merged = append(merged, StockDelta{ItemID: id, Delta: delta})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ItemID < merged[j].ItemID })
	return merged
}

// CommitResult carries the post-commit quantity of items touched by the mutation.
// A store that cannot read a quantity back after a durable commit leaves it out.
type CommitResult struct {
	Quantities map[string]int
	Order      *domain.Order
}

type ItemStore interface {
	CreateItem(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	// UpdateItemDetails writes name and price only; quantity is owned by the ledger.
	UpdateItemDetails(ctx context.Context, item *domain.Item) error
	ListItems(ctx context.Context, ownerID string) ([]domain.Item, error)
	DeleteItem(ctx context.Context, itemID string) error
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error)
	// UpdateCustomer replaces name, NIC, address and contact number. A NIC held by
	// another customer fails with ErrAlreadyExists.
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error
	DeleteCustomer(ctx context.Context, customerID string) error
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error)
}

type HistoryStore interface {
	// FindHistory returns the most recent archive entry of an order id.
	FindHistory(ctx context.Context, originalOrderID string) (*domain.OrderHistoryEntry, error)
	// ListHistory returns every archive entry of an order id, oldest first.
	ListHistory(ctx context.Context, originalOrderID string) ([]domain.OrderHistoryEntry, error)
}

type IntentStore interface {
	ListDeleteIntents(ctx context.Context) ([]DeleteIntent, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DynamoStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Store is the persistence boundary of the service.
type Store interface {
	ItemStore
	CustomerStore
	OrderStore
	HistoryStore
	IntentStore
	Commit(ctx context.Context, m Mutation) (CommitResult, error)
}
