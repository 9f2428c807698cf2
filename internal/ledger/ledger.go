// Package ledger owns the available quantity of every item. Quantities only move
// through signed deltas that are checked and applied inside one store commit.
package ledger

import (
	"context"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
)

type Store interface {
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	Commit(ctx context.Context, m repository.Mutation) (repository.CommitResult, error)
}

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Quantity returns the currently available quantity of itemID.
func (l *Ledger) Quantity(ctx context.Context, itemID string) (int, error) {
	item, err := l.store.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.Quantity, nil
}

// TryApplyDelta adds delta to the item's quantity and returns the new value.
// A delta that would leave the quantity negative fails with a *domain.StockError
// and leaves the item untouched.
func (l *Ledger) TryApplyDelta(ctx context.Context, itemID string, delta int) (int, error) {
	before, err := l.Quantity(ctx, itemID)
	if err != nil || delta == 0 {
		return before, err
	}
	result, err := l.store.Commit(ctx, repository.Mutation{
		Deltas: []repository.StockDelta{{ItemID: itemID, Delta: delta}},
	})
	if err != nil {
		return 0, err
	}
	if qty, ok := result.Quantities[itemID]; ok {
		return qty, nil
	}
	// The commit is durable but the store could not read the item back.
	return before + delta, nil
}
