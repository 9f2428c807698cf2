package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/events"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/pricing"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

const owner = "user-1"

type recordingPublisher struct {
	mu            sync.Mutex
	orders        []events.OrderEvent
	compensations []events.CompensationEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, e)
	return nil
}

func (p *recordingPublisher) PublishCompensation(_ context.Context, e events.CompensationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compensations = append(p.compensations, e)
	return nil
}

func (p *recordingPublisher) orderTypes() []events.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.OrderEventType, len(p.orders))
	for i, e := range p.orders {
		types[i] = e.Type
	}
	return types
}

// faultyStore fails commits selected by fail and delegates everything else.
type faultyStore struct {
	*repository.MemoryStore
	fail  func(m repository.Mutation) error
	calls int
}

func (f *faultyStore) Commit(ctx context.Context, m repository.Mutation) (repository.CommitResult, error) {
	f.calls++
	if f.fail != nil {
		if err := f.fail(m); err != nil {
			return repository.CommitResult{}, err
		}
	}
	return f.MemoryStore.Commit(ctx, m)
}

type fixture struct {
	store     *repository.MemoryStore
	orders    *OrderService
	catalog   *CatalogService
	publisher *recordingPublisher
}

func newFixture(t require.TestingT) *fixture {
	store := repository.NewMemoryStore()
	return newFixtureWithStore(t, store, store)
}

func newFixtureWithStore(t require.TestingT, mem *repository.MemoryStore, store repository.Store) *fixture {
	publisher := &recordingPublisher{}
	logger := zap.NewNop()
	return &fixture{
		store:     mem,
		orders:    NewOrderService(store, publisher, publisher, logger, RetryPolicy{Attempts: 3, Delay: time.Millisecond}),
		catalog:   NewCatalogService(store, logger),
		publisher: publisher,
	}
}

func (f *fixture) addItem(t require.TestingT, id, price string, qty int) {
	_, err := f.catalog.CreateItem(context.Background(), domain.CreateItemRequest{
		ItemID:    id,
		Name:      "item " + id,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}, owner)
	require.NoError(t, err)
}

func (f *fixture) addCustomer(t require.TestingT, id, name string) {
	_, err := f.catalog.CreateCustomer(context.Background(), domain.CreateCustomerRequest{
		CustomerID: id,
		Name:       name,
		NIC:        "123456789V",
		Address:    "1 Main Street",
		ContactNo:  "0771234567",
	}, owner)
	require.NoError(t, err)
}

func (f *fixture) stock(t require.TestingT, id string) int {
	item, err := f.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item.Quantity
}

func orderRequest(id string, discount int64, lines ...domain.OrderLineRequest) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		OrderID:         id,
		CustomerID:      "C1",
		Lines:           lines,
		DiscountPercent: decimal.NewFromInt(discount),
	}
}

func lineReq(itemID string, qty int) domain.OrderLineRequest {
	return domain.OrderLineRequest{ItemID: itemID, Quantity: qty}
}

func TestOrderLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)
	f.addCustomer(t, "C1", "Alice")

	order, err := f.orders.CreateOrder(ctx, orderRequest("O1", 10, lineReq("I1", 3)), owner)
	require.NoError(t, err)
	assert.Equal(t, "30", order.Subtotal.String())
	assert.Equal(t, "27", order.FinalAmount.String())
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(1), order.Version)
	assert.Equal(t, 2, f.stock(t, "I1"))

	entry, err := f.orders.DeleteOrder(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, "I1"))
	assert.Equal(t, "Alice", entry.CustomerName)
	assert.Equal(t, "27", entry.FinalAmount.String())

	_, err = f.orders.GetOrder(ctx, "O1", owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	archived, err := f.orders.GetOrderHistory(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, entry.ArchiveID, archived.ArchiveID)
	assert.Equal(t, []domain.OrderLine{{ItemID: "I1", ItemName: "item I1", Quantity: 3, UnitPrice: decimal.NewFromInt(10)}}, archived.Lines)

	intents, err := f.store.ListDeleteIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)

	assert.Equal(t, []events.OrderEventType{events.OrderCreated, events.OrderDeleted}, f.publisher.orderTypes())
}

func TestCreateOrderInsufficientStockChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)
	f.addItem(t, "I2", "4", 1)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 2), lineReq("I2", 3)), owner)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "I2", stockErr.ItemID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, f.stock(t, "I1"))
	assert.Equal(t, 1, f.stock(t, "I2"))
	_, err = f.store.GetOrder(ctx, "O1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	tests := []struct {
		name string
		req  domain.CreateOrderRequest
		want error
	}{
		{"missing id", orderRequest("", 0, lineReq("I1", 1)), domain.ErrInvalidInput},
		{"no lines", orderRequest("O1", 0), domain.ErrInvalidInput},
		{"zero quantity", orderRequest("O1", 0, lineReq("I1", 0)), domain.ErrInvalidInput},
		{"duplicate item", orderRequest("O1", 0, lineReq("I1", 1), lineReq("I1", 1)), domain.ErrInvalidInput},
		{"discount above 100", orderRequest("O1", 101, lineReq("I1", 1)), domain.ErrInvalidInput},
		{"unknown item", orderRequest("O1", 0, lineReq("nope", 1)), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tt.req, owner)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 5, f.stock(t, "I1"))
}

func TestCreateOrderRejectsExistingID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "already exists")
	assert.Equal(t, 4, f.stock(t, "I1"))
}

func TestConcurrentCreatesForLastUnits(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orders.CreateOrder(ctx, orderRequest(fmt.Sprintf("O%d", i), 0, lineReq("I1", 3)), owner)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, 2, f.stock(t, "I1"))
}

func TestConcurrentCreatesWithSameID(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 10)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, f.stock(t, "I1"))
}

func TestUpdateOrderQuantities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)
	f.addItem(t, "I2", "2.50", 10)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 10, lineReq("I1", 3), lineReq("I2", 2)), owner)
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, "I1"))
	require.Equal(t, 8, f.stock(t, "I2"))

	updated, err := f.orders.UpdateOrderQuantities(ctx, "O1", []domain.LineUpdate{
		{ItemID: "I1", Quantity: 5},
		{ItemID: "I2", Quantity: 1},
		{ItemID: "not-on-order", Quantity: 4},
	}, owner)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, "I1"))
	assert.Equal(t, 9, f.stock(t, "I2"))
	assert.Equal(t, "52.5", updated.Subtotal.String())
	assert.Equal(t, "47.25", updated.FinalAmount.String())
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.orders.UpdateOrderQuantities(ctx, "O1", []domain.LineUpdate{{ItemID: "I1", Quantity: 6}}, owner)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1, stockErr.Requested)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 0, f.stock(t, "I1"))

	stored, err := f.orders.GetOrder(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Line("I1").Quantity)

	_, err = f.orders.UpdateOrderQuantities(ctx, "O1", []domain.LineUpdate{{ItemID: "I1", Quantity: 0}}, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateKeepsCapturedPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)

	price := decimal.NewFromInt(99)
	_, err = f.catalog.UpdateItem(ctx, "I1", domain.UpdateItemRequest{UnitPrice: &price}, owner)
	require.NoError(t, err)

	updated, err := f.orders.UpdateOrderQuantities(ctx, "O1", []domain.LineUpdate{{ItemID: "I1", Quantity: 2}}, owner)
	require.NoError(t, err)
	assert.Equal(t, "20", updated.Subtotal.String())
}

func TestUpdateDiscountLeavesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 3)), owner)
	require.NoError(t, err)

	updated, err := f.orders.UpdateDiscount(ctx, "O1", decimal.NewFromInt(50), owner)
	require.NoError(t, err)
	assert.Equal(t, "15", updated.FinalAmount.String())
	assert.Equal(t, 2, f.stock(t, "I1"))

	_, err = f.orders.UpdateDiscount(ctx, "O1", decimal.NewFromInt(-5), owner)
	assert.ErrorIs(t, err, pricing.ErrInvalidDiscount)

	customer := "C2"
	updated, err = f.orders.UpdateOrder(ctx, "O1", domain.UpdateOrderRequest{CustomerID: &customer}, owner)
	require.NoError(t, err)
	assert.Equal(t, "C2", updated.CustomerID)
	assert.Equal(t, 2, f.stock(t, "I1"))
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 3)), owner)
	require.NoError(t, err)

	_, err = f.orders.SetStatus(ctx, "O1", "shipped", owner)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	order, err := f.orders.SetStatus(ctx, "O1", "Completed", owner)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, 2, f.stock(t, "I1"))

	again, err := f.orders.SetStatus(ctx, "O1", "completed", owner)
	require.NoError(t, err)
	assert.Equal(t, order.Version, again.Version)

	_, err = f.orders.SetStatus(ctx, "O1", "pending", owner)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	entry, err := f.orders.DeleteOrder(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, entry.Status)
	assert.Equal(t, 5, f.stock(t, "I1"))
}

func TestDeleteOrderWithMissingCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)
	f.addCustomer(t, "C1", "Alice")

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteCustomer(ctx, "C1", owner))

	entry, err := f.orders.DeleteOrder(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownCustomerName, entry.CustomerName)
}

func TestDeleteOrderIsAtomic(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	faulty := &faultyStore{MemoryStore: mem}
	f := newFixtureWithStore(t, mem, faulty)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 3)), owner)
	require.NoError(t, err)

	storageFailure := fmt.Errorf("%w: disk full", domain.ErrStorage)
	faulty.fail = func(m repository.Mutation) error {
		if m.History != nil {
			return storageFailure
		}
		return nil
	}

	_, err = f.orders.DeleteOrder(ctx, "O1", owner)
	assert.ErrorIs(t, err, domain.ErrStorage)

	assert.Equal(t, 2, f.stock(t, "I1"))
	_, err = mem.GetOrder(ctx, "O1")
	assert.NoError(t, err)
	_, err = mem.FindHistory(ctx, "O1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	intents, err := mem.ListDeleteIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestDeleteOrderRollsBackWhenStockRestoreFails(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, mem *repository.MemoryStore, faulty *faultyStore)
		wantErr error
	}{
		{
			name: "restored item no longer exists",
			setup: func(t *testing.T, mem *repository.MemoryStore, _ *faultyStore) {
				require.NoError(t, mem.DeleteItem(context.Background(), "I2"))
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "store rejects the stock deltas",
			setup: func(_ *testing.T, _ *repository.MemoryStore, faulty *faultyStore) {
				faulty.fail = func(m repository.Mutation) error {
					if m.History != nil && len(m.Deltas) > 0 {
						return fmt.Errorf("%w: item I2 is locked", domain.ErrStorage)
					}
					return nil
				}
			},
			wantErr: domain.ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := repository.NewMemoryStore()
			faulty := &faultyStore{MemoryStore: mem}
			f := newFixtureWithStore(t, mem, faulty)
			f.addItem(t, "I1", "10", 5)
			f.addItem(t, "I2", "4", 5)

			_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 3), lineReq("I2", 2)), owner)
			require.NoError(t, err)
			tt.setup(t, mem, faulty)

			_, err = f.orders.DeleteOrder(ctx, "O1", owner)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, 2, f.stock(t, "I1"), "no line may be restored on its own")
			_, err = mem.GetOrder(ctx, "O1")
			assert.NoError(t, err)
			_, err = mem.FindHistory(ctx, "O1")
			assert.ErrorIs(t, err, domain.ErrNotFound)
			intents, err := mem.ListDeleteIntents(ctx)
			require.NoError(t, err)
			assert.Empty(t, intents)
		})
	}
}

func TestCommitRetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	faulty := &faultyStore{MemoryStore: mem}
	f := newFixtureWithStore(t, mem, faulty)
	f.addItem(t, "I1", "10", 5)

	conflicts := 2
	faulty.fail = func(m repository.Mutation) error {
		if m.Order != nil && conflicts > 0 {
			conflicts--
			return repository.ErrVersionMismatch
		}
		return nil
	}
	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)
	assert.Equal(t, 3, faulty.calls)

	conflicts = 3
	_, err = f.orders.UpdateDiscount(ctx, "O1", decimal.NewFromInt(5), owner)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 4, f.stock(t, "I1"))
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 5)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, "O1", "intruder")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.orders.DeleteOrder(ctx, "O1", "intruder")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.orders.CreateOrder(ctx, orderRequest("O2", 0, lineReq("I1", 1)), "intruder")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.orders.ListOrders(ctx, "intruder")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.orders.DeleteOrder(ctx, "O1", owner)
	require.NoError(t, err)
	_, err = f.orders.GetOrderHistory(ctx, "O1", "intruder")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 10)

	for _, id := range []string{"live", "finished", "broken"} {
		_, err := f.orders.CreateOrder(ctx, orderRequest(id, 0, lineReq("I1", 1)), owner)
		require.NoError(t, err)
	}

	// an intent whose order is still live
	_, err := f.store.Commit(ctx, repository.Mutation{PutIntent: &repository.DeleteIntent{OrderID: "live", ArchiveID: "a-live"}})
	require.NoError(t, err)

	// a deletion that committed but whose intent survived
	entry, err := f.orders.DeleteOrder(ctx, "finished", owner)
	require.NoError(t, err)
	_, err = f.store.Commit(ctx, repository.Mutation{PutIntent: &repository.DeleteIntent{OrderID: "finished", ArchiveID: entry.ArchiveID}})
	require.NoError(t, err)

	// an order that disappeared without an archive entry
	vanish(t, f.store, "broken", "a-broken")

	report, err := f.orders.Reconcile(ctx)
	assert.ErrorIs(t, err, domain.ErrIncompleteDelete)
	assert.ElementsMatch(t, []string{"live", "finished"}, report.Cleared)
	assert.Equal(t, []string{"broken"}, report.Incomplete)

	intents, err := f.store.ListDeleteIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "broken", intents[0].OrderID)

	_, err = f.store.GetOrder(ctx, "live")
	assert.NoError(t, err, "reconcile must not resume a deletion")

	require.Len(t, f.publisher.compensations, 1)
	assert.Equal(t, "broken", f.publisher.compensations[0].OrderID)
}

// vanish removes an order the way a crash after the intent write would leave it:
// gone from live storage with no archive entry.
func vanish(t require.TestingT, store *repository.MemoryStore, orderID, archiveID string) {
	ctx := context.Background()
	order, err := store.GetOrder(ctx, orderID)
	require.NoError(t, err)
	_, err = store.Commit(ctx, repository.Mutation{
		PutIntent: &repository.DeleteIntent{OrderID: orderID, ArchiveID: archiveID},
		Order:     &repository.OrderWrite{Op: repository.OrderDelete, Order: order},
	})
	require.NoError(t, err)
}

func TestReconcileIgnoresOlderArchiveOfReusedOrderID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addItem(t, "I1", "10", 10)

	_, err := f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 1)), owner)
	require.NoError(t, err)
	first, err := f.orders.DeleteOrder(ctx, "O1", owner)
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(ctx, orderRequest("O1", 0, lineReq("I1", 2)), owner)
	require.NoError(t, err)
	vanish(t, f.store, "O1", "a-second")

	report, err := f.orders.Reconcile(ctx)
	assert.ErrorIs(t, err, domain.ErrIncompleteDelete)
	assert.Equal(t, []string{"O1"}, report.Incomplete)
	assert.Empty(t, report.Cleared)

	latest, err := f.orders.GetOrderHistory(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, first.ArchiveID, latest.ArchiveID)

	intents, err := f.store.ListDeleteIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "a-second", intents[0].ArchiveID)
}

func TestReconcileWithNothingPending(t *testing.T) {
	f := newFixture(t)
	report, err := f.orders.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Cleared)
	assert.Empty(t, report.Incomplete)
}

func TestLifecyclePreservesStockAndTotals(t *testing.T) {
	itemIDs := []string{"I1", "I2", "I3"}

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		f := newFixture(t)
		initial := make(map[string]int, len(itemIDs))
		for _, id := range itemIDs {
			initial[id] = rapid.IntRange(0, 12).Draw(t, "stock-"+id)
			cents := rapid.Int64Range(0, 10_000).Draw(t, "price-"+id)
			f.addItem(t, id, decimal.New(cents, -2).String(), initial[id])
		}

		var live []string
		next := 0
		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for step := 0; step < steps; step++ {
			switch op := rapid.IntRange(0, 2).Draw(t, "op"); {
			case op == 0 || len(live) == 0:
				var lines []domain.OrderLineRequest
				for _, id := range itemIDs {
					if rapid.Bool().Draw(t, "include-"+id) {
						lines = append(lines, lineReq(id, rapid.IntRange(1, 5).Draw(t, "qty-"+id)))
					}
				}
				if len(lines) == 0 {
					continue
				}
				orderID := fmt.Sprintf("O%d", next)
				next++
				discount := rapid.Int64Range(0, 100).Draw(t, "discount")
				_, err := f.orders.CreateOrder(ctx, orderRequest(orderID, discount, lines...), owner)
				if err == nil {
					live = append(live, orderID)
				} else if !errors.Is(err, domain.ErrInsufficientStock) {
					t.Fatalf("create %s: %v", orderID, err)
				}

			case op == 1:
				idx := rapid.IntRange(0, len(live)-1).Draw(t, "order")
				update := domain.LineUpdate{
					ItemID:   rapid.SampledFrom(itemIDs).Draw(t, "item"),
					Quantity: rapid.IntRange(1, 8).Draw(t, "new-qty"),
				}
				_, err := f.orders.UpdateOrderQuantities(ctx, live[idx], []domain.LineUpdate{update}, owner)
				if err != nil && !errors.Is(err, domain.ErrInsufficientStock) {
					t.Fatalf("update %s: %v", live[idx], err)
				}

			default:
				idx := rapid.IntRange(0, len(live)-1).Draw(t, "order")
				if _, err := f.orders.DeleteOrder(ctx, live[idx], owner); err != nil {
					t.Fatalf("delete %s: %v", live[idx], err)
				}
				live = append(live[:idx], live[idx+1:]...)
			}

			reserved := make(map[string]int, len(itemIDs))
			orders, err := f.orders.ListOrders(ctx, owner)
			if err != nil {
				t.Fatalf("list orders: %v", err)
			}
			if len(orders) != len(live) {
				t.Fatalf("%d live orders, want %d", len(orders), len(live))
			}
			for _, o := range orders {
				totals, err := pricing.ComputeTotals(o.Lines, o.DiscountPercent)
				if err != nil {
					t.Fatalf("order %s: %v", o.OrderID, err)
				}
				if !totals.Subtotal.Equal(o.Subtotal) || !totals.FinalAmount.Equal(o.FinalAmount) {
					t.Fatalf("order %s totals %s/%s, want %s/%s", o.OrderID, o.Subtotal, o.FinalAmount, totals.Subtotal, totals.FinalAmount)
				}
				for _, l := range o.Lines {
					reserved[l.ItemID] += l.Quantity
				}
			}
			for _, id := range itemIDs {
				qty := f.stock(t, id)
				if qty < 0 {
					t.Fatalf("item %s went negative: %d", id, qty)
				}
				if qty+reserved[id] != initial[id] {
					t.Fatalf("item %s: stock %d + reserved %d != initial %d", id, qty, reserved[id], initial[id])
				}
			}
		}
	})
}
