package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
)

// MemoryStore keeps every record in process memory. Commit holds a single lock while it
// validates and applies a mutation, which makes each commit serializable.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]domain.Item
	customers map[string]domain.Customer
	orders    map[string]*domain.Order
	history   map[string]domain.OrderHistoryEntry // by archive id
	byOrder   map[string][]string                 // original order id -> archive ids, oldest first
	intents   map[string]DeleteIntent
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]domain.Item),
		customers: make(map[string]domain.Customer),
		orders:    make(map[string]*domain.Order),
		history:   make(map[string]domain.OrderHistoryEntry),
		byOrder:   make(map[string][]string),
		intents:   make(map[string]DeleteIntent),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateItem(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ItemID]; ok {
		return fmt.Errorf("%w: item %s", ErrAlreadyExists, item.ItemID)
	}
	s.items[item.ItemID] = *item
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, itemID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, domain.NotFoundError("item", itemID)
	}
	return &item, nil
}

func (s *MemoryStore) UpdateItemDetails(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[item.ItemID]
	if !ok {
		return domain.NotFoundError("item", item.ItemID)
	}
	stored.Name = item.Name
	stored.UnitPrice = item.UnitPrice
	stored.UpdatedAt = item.UpdatedAt
	s.items[item.ItemID] = stored
	return nil
}

func (s *MemoryStore) ListItems(_ context.Context, ownerID string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Item
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return domain.NotFoundError("item", itemID)
	}
	delete(s.items, itemID)
	return nil
}

func (s *MemoryStore) CreateCustomer(_ context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.CustomerID]; ok {
		return fmt.Errorf("%w: customer %s", ErrAlreadyExists, customer.CustomerID)
	}
	for _, c := range s.customers {
		if c.NIC == customer.NIC {
			return fmt.Errorf("%w: customer with NIC %s", ErrAlreadyExists, customer.NIC)
		}
	}
	s.customers[customer.CustomerID] = *customer
	return nil
}

func (s *MemoryStore) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return nil, domain.NotFoundError("customer", customerID)
	}
	return &c, nil
}

func (s *MemoryStore) ListCustomers(_ context.Context, ownerID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var customers []domain.Customer
	for _, c := range s.customers {
		if c.OwnerID == ownerID {
			customers = append(customers, c)
		}
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].CustomerID < customers[j].CustomerID })
	return customers, nil
}

func (s *MemoryStore) UpdateCustomer(_ context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.customers[customer.CustomerID]
	if !ok {
		return domain.NotFoundError("customer", customer.CustomerID)
	}
	for id, c := range s.customers {
		if id != customer.CustomerID && c.NIC == customer.NIC {
			return fmt.Errorf("%w: customer with NIC %s", ErrAlreadyExists, customer.NIC)
		}
	}
	stored.Name = customer.Name
	stored.NIC = customer.NIC
	stored.Address = customer.Address
	stored.ContactNo = customer.ContactNo
	s.customers[customer.CustomerID] = stored
	return nil
}

func (s *MemoryStore) DeleteCustomer(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customerID]; !ok {
		return domain.NotFoundError("customer", customerID)
	}
	delete(s.customers, customerID)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NotFoundError("order", orderID)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(_ context.Context, ownerID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []domain.Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			orders = append(orders, *o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderedAt.After(orders[j].OrderedAt) })
	return orders, nil
}

func (s *MemoryStore) FindHistory(_ context.Context, originalOrderID string) (*domain.OrderHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	archived := s.byOrder[originalOrderID]
	if len(archived) == 0 {
		return nil, domain.NotFoundError("order history", originalOrderID)
	}
	entry := s.history[archived[len(archived)-1]]
	entry.Lines = append([]domain.OrderLine(nil), entry.Lines...)
	return &entry, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, originalOrderID string) ([]domain.OrderHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	archived := s.byOrder[originalOrderID]
	entries := make([]domain.OrderHistoryEntry, 0, len(archived))
	for _, id := range archived {
		entry := s.history[id]
		entry.Lines = append([]domain.OrderLine(nil), entry.Lines...)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *MemoryStore) ListDeleteIntents(_ context.Context) ([]DeleteIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intents := make([]DeleteIntent, 0, len(s.intents))
	for _, intent := range s.intents {
		intents = append(intents, intent)
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].OrderID < intents[j].OrderID })
	return intents, nil
}

// Commit checks every condition of m before writing anything.
func (s *MemoryStore) Commit(_ context.Context, m Mutation) (CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := MergeDeltas(m.Deltas)
	for _, d := range deltas {
		item, ok := s.items[d.ItemID]
		if !ok {
			return CommitResult{}, domain.NotFoundError("item", d.ItemID)
		}
		if item.Quantity+d.Delta < 0 {
			return CommitResult{}, &domain.StockError{
				ItemID:    item.ItemID,
				ItemName:  item.Name,
				Requested: -d.Delta,
				Available: item.Quantity,
			}
		}
	}

	if w := m.Order; w != nil {
		stored, exists := s.orders[w.Order.OrderID]
		switch w.Op {
		case OrderCreate:
			if exists {
				return CommitResult{}, fmt.Errorf("%w: order %s", ErrAlreadyExists, w.Order.OrderID)
			}
		case OrderReplace, OrderDelete:
			if !exists {
				return CommitResult{}, domain.NotFoundError("order", w.Order.OrderID)
			}
			if stored.Version != w.Order.Version {
				return CommitResult{}, fmt.Errorf("%w: order %s", ErrVersionMismatch, w.Order.OrderID)
			}
		default:
			return CommitResult{}, fmt.Errorf("unknown order operation %d", w.Op)
		}
	}

	if h := m.History; h != nil {
		if _, ok := s.history[h.ArchiveID]; ok {
			return CommitResult{}, fmt.Errorf("%w: archive entry %s", ErrAlreadyExists, h.ArchiveID)
		}
	}

	result := CommitResult{Quantities: make(map[string]int, len(deltas))}
	now := s.now()
	for _, d := range deltas {
		item := s.items[d.ItemID]
		item.Quantity += d.Delta
		item.UpdatedAt = now
		s.items[d.ItemID] = item
		result.Quantities[d.ItemID] = item.Quantity
	}

	if w := m.Order; w != nil {
		switch w.Op {
		case OrderCreate:
			o := w.Order.Clone()
			o.Version = 1
			s.orders[o.OrderID] = o
			result.Order = o.Clone()
		case OrderReplace:
			o := w.Order.Clone()
			o.Version++
			s.orders[o.OrderID] = o
			result.Order = o.Clone()
		case OrderDelete:
			delete(s.orders, w.Order.OrderID)
		}
	}

	if h := m.History; h != nil {
		entry := *h
		entry.Lines = append([]domain.OrderLine(nil), h.Lines...)
		s.history[entry.ArchiveID] = entry
		s.byOrder[entry.OriginalOrderID] = append(s.byOrder[entry.OriginalOrderID], entry.ArchiveID)
	}
	if m.PutIntent != nil {
		intent := *m.PutIntent
		intent.CreatedAt = now
		s.intents[intent.OrderID] = intent
	}
	if m.ClearIntent != "" {
		delete(s.intents, m.ClearIntent)
	}
	return result, nil
}
