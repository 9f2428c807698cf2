// Package history keeps the archive of deleted orders. Entries are written once and
// never modified.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/google/uuid"
)

type Store interface {
	FindHistory(ctx context.Context, originalOrderID string) (*domain.OrderHistoryEntry, error)
	ListHistory(ctx context.Context, originalOrderID string) ([]domain.OrderHistoryEntry, error)
	Commit(ctx context.Context, m repository.Mutation) (repository.CommitResult, error)
}

type Archive struct {
	store Store
}

func New(store Store) *Archive {
	return &Archive{store: store}
}

// Snapshot copies o into a new archive entry.
func Snapshot(o *domain.Order, customerName string, now time.Time) domain.OrderHistoryEntry {
	if customerName == "" {
		customerName = domain.UnknownCustomerName
	}
	return domain.OrderHistoryEntry{
		ArchiveID:       uuid.NewString(),
		OriginalOrderID: o.OrderID,
		OrderedAt:       o.OrderedAt,
		CustomerID:      o.CustomerID,
		CustomerName:    customerName,
		Lines:           append([]domain.OrderLine(nil), o.Lines...),
		Subtotal:        o.Subtotal,
		DiscountPercent: o.DiscountPercent,
		FinalAmount:     o.FinalAmount,
		Status:          o.Status,
		OwnerID:         o.OwnerID,
		ArchivedAt:      now.UTC(),
	}
}

// Attach adds entry to m so that it is archived by the same commit.
func (a *Archive) Attach(m *repository.Mutation, entry domain.OrderHistoryEntry) error {
	if entry.ArchiveID == "" || entry.OriginalOrderID == "" {
		return domain.InvalidInputError("archive entry needs an archive id and an order id")
	}
	if m.History != nil {
		return domain.InvalidInputError("mutation already archives order %s", m.History.OriginalOrderID)
	}
	m.History = &entry
	return nil
}

// Append archives entry on its own.
func (a *Archive) Append(ctx context.Context, entry domain.OrderHistoryEntry) error {
	var m repository.Mutation
	if err := a.Attach(&m, entry); err != nil {
		return err
	}
	if _, err := a.store.Commit(ctx, m); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return fmt.Errorf("%w: archive entry %s is already written", domain.ErrInvalidInput, entry.ArchiveID)
		}
		return err
	}
	return nil
}

// FindByOriginalOrderID returns the most recent entry archived for orderID.
func (a *Archive) FindByOriginalOrderID(ctx context.Context, orderID string) (*domain.OrderHistoryEntry, error) {
	return a.store.FindHistory(ctx, orderID)
}

// ListByOriginalOrderID returns every entry archived for orderID, oldest first.
func (a *Archive) ListByOriginalOrderID(ctx context.Context, orderID string) ([]domain.OrderHistoryEntry, error) {
	return a.store.ListHistory(ctx, orderID)
}

// Contains reports whether archiveID was written for orderID.
func (a *Archive) Contains(ctx context.Context, orderID, archiveID string) (bool, error) {
	entries, err := a.store.ListHistory(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ArchiveID == archiveID {
			return true, nil
		}
	}
	return false, nil
}
