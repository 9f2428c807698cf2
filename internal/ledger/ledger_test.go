package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func newItem(t require.TestingT, store *repository.MemoryStore, id string, qty int) *domain.Item {
	item := &domain.Item{
		ItemID:    id,
		Name:      "item " + id,
		UnitPrice: decimal.NewFromInt(10),
		Quantity:  qty,
		OwnerID:   "user-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateItem(context.Background(), item))
	return item
}

func TestTryApplyDelta(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	newItem(t, store, "I1", 5)
	l := New(store)

	qty, err := l.TryApplyDelta(ctx, "I1", -3)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	_, err = l.TryApplyDelta(ctx, "I1", -3)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	qty, err = l.Quantity(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, 2, qty, "rejected delta must not change stock")

	qty, err = l.TryApplyDelta(ctx, "I1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	_, err = l.TryApplyDelta(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// quietStore commits like the memory store but reports no quantities back.
type quietStore struct {
	*repository.MemoryStore
}

func (s quietStore) Commit(ctx context.Context, m repository.Mutation) (repository.CommitResult, error) {
	res, err := s.MemoryStore.Commit(ctx, m)
	res.Quantities = nil
	return res, err
}

func TestTryApplyDeltaWithoutReportedQuantity(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	newItem(t, store, "I1", 5)
	l := New(quietStore{store})

	qty, err := l.TryApplyDelta(ctx, "I1", -2)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	item, err := store.GetItem(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
}

func TestTryApplyDeltaConcurrentDecrements(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := repository.NewMemoryStore()
	newItem(t, store, "I1", 10)
	l := New(store)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryApplyDelta(ctx, "I1", -1); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	qty, err := l.Quantity(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestPlanMergesAndValidates(t *testing.T) {
	a := &domain.Item{ItemID: "B", Name: "bolt", Quantity: 4}
	b := &domain.Item{ItemID: "A", Name: "anchor", Quantity: 1}

	p := NewPlan()
	p.Reserve(a, 3)
	p.Reserve(a, 1)
	p.Release(b, 2)
	require.NoError(t, p.Validate())
	assert.Equal(t, []repository.StockDelta{{ItemID: "A", Delta: 2}, {ItemID: "B", Delta: -4}}, p.Deltas())

	p.Reserve(a, 1)
	var stockErr *domain.StockError
	require.True(t, errors.As(p.Validate(), &stockErr))
	assert.Equal(t, domain.StockError{ItemID: "B", ItemName: "bolt", Requested: 5, Available: 4}, *stockErr)

	empty := NewPlan()
	empty.Add(a, 2)
	empty.Add(a, -2)
	assert.True(t, empty.Empty())
	assert.NoError(t, empty.Validate())
}

func TestLedgerNeverGoesNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		start := rapid.IntRange(0, 20).Draw(t, "start")
		newItem(t, store, "I1", start)
		l := New(store)

		expected := start
		steps := rapid.SliceOfN(rapid.IntRange(-10, 10), 1, 30).Draw(t, "deltas")
		for _, d := range steps {
			qty, err := l.TryApplyDelta(ctx, "I1", d)
			if expected+d < 0 {
				if !errors.Is(err, domain.ErrInsufficientStock) {
					t.Fatalf("delta %d on %d: expected insufficient stock, got %v", d, expected, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("delta %d on %d: %v", d, expected, err)
			}
			expected += d
			if qty != expected {
				t.Fatalf("quantity %d, want %d", qty, expected)
			}
		}
	})
}
