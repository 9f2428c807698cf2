package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/ledger"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"go.uber.org/zap"
)

var (
	nicPattern     = regexp.MustCompile(`^(?:[0-9]{9}[VXvx]|[0-9]{12})$`)
	contactPattern = regexp.MustCompile(`^[0-9]{10}$`)
)

// CatalogService manages the items and customers that orders refer to.
type CatalogService struct {
	store  repository.Store
	ledger *ledger.Ledger
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalogService(store repository.Store, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		ledger: ledger.New(store),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogService) CreateItem(ctx context.Context, req domain.CreateItemRequest, ownerID string) (*domain.Item, error) {
	if strings.TrimSpace(req.ItemID) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, domain.InvalidInputError("item id and name are required")
	}
	if req.UnitPrice.IsNegative() {
		return nil, domain.InvalidInputError("unit price must not be negative")
	}
	if req.Quantity < 0 {
		return nil, domain.InvalidInputError("quantity must not be negative")
	}

	now := s.now()
	item := &domain.Item{
		ItemID:    req.ItemID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.InvalidInputError("item %s already exists", req.ItemID)
		}
		return nil, err
	}

	s.logger.Info("Item created",
		zap.String("item_id", item.ItemID),
		zap.String("user_id", ownerID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID, ownerID string) (*domain.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, domain.NotFoundError("item", itemID)
	}
	return item, nil
}

func (s *CatalogService) ListItems(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return s.store.ListItems(ctx, ownerID)
}

// UpdateItem changes name and price. Orders keep the price they captured.
func (s *CatalogService) UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest, ownerID string) (*domain.Item, error) {
	item, err := s.GetItem(ctx, itemID, ownerID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, domain.InvalidInputError("item name must not be empty")
		}
		item.Name = *req.Name
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, domain.InvalidInputError("unit price must not be negative")
		}
		item.UnitPrice = *req.UnitPrice
	}
	item.UpdatedAt = s.now()

	if err := s.store.UpdateItemDetails(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item that no live order of the owner refers to. Orders keep
// their own line snapshot, but deleting their order puts stock back onto the item.
func (s *CatalogService) DeleteItem(ctx context.Context, itemID, ownerID string) error {
	if _, err := s.GetItem(ctx, itemID, ownerID); err != nil {
		return err
	}
	orders, err := s.store.ListOrders(ctx, ownerID)
	if err != nil {
		return err
	}
	for i := range orders {
		if orders[i].Line(itemID) != nil {
			return domain.InvalidInputError("item %s is still on order %s", itemID, orders[i].OrderID)
		}
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.logger.Info("Item deleted",
		zap.String("item_id", itemID),
		zap.String("user_id", ownerID))
	return nil
}

// AdjustStock restocks or writes off units of an item through the ledger.
func (s *CatalogService) AdjustStock(ctx context.Context, itemID string, delta int, ownerID string) (*domain.Item, error) {
	item, err := s.GetItem(ctx, itemID, ownerID)
	if err != nil {
		return nil, err
	}
	qty, err := s.ledger.TryApplyDelta(ctx, itemID, delta)
	if err != nil {
		return nil, err
	}
	item.Quantity = qty

	s.logger.Info("Stock adjusted",
		zap.String("item_id", itemID),
		zap.Int("delta", delta),
		zap.Int("quantity", qty))
	return item, nil
}

func validateCustomer(c *domain.Customer) error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Address) == "" {
		return domain.InvalidInputError("customer name and address are required")
	}
	if !nicPattern.MatchString(c.NIC) {
		return domain.InvalidInputError("NIC %q is not valid", c.NIC)
	}
	if !contactPattern.MatchString(c.ContactNo) {
		return domain.InvalidInputError("contact number must have 10 digits")
	}
	return nil
}

func (s *CatalogService) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest, ownerID string) (*domain.Customer, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, domain.InvalidInputError("customer id is required")
	}

	customer := &domain.Customer{
		CustomerID: req.CustomerID,
		Name:       req.Name,
		NIC:        req.NIC,
		Address:    req.Address,
		ContactNo:  req.ContactNo,
		OwnerID:    ownerID,
		CreatedAt:  s.now(),
	}
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.InvalidInputError("customer %s or NIC %s already exists", req.CustomerID, req.NIC)
		}
		return nil, err
	}

	s.logger.Info("Customer created",
		zap.String("customer_id", customer.CustomerID),
		zap.String("user_id", ownerID))
	return customer, nil
}

func (s *CatalogService) GetCustomer(ctx context.Context, customerID, ownerID string) (*domain.Customer, error) {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.OwnerID != ownerID {
		return nil, domain.NotFoundError("customer", customerID)
	}
	return customer, nil
}

func (s *CatalogService) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	return s.store.ListCustomers(ctx, ownerID)
}

// UpdateCustomer applies the fields set in req and validates the result as a whole.
func (s *CatalogService) UpdateCustomer(ctx context.Context, customerID string, req domain.UpdateCustomerRequest, ownerID string) (*domain.Customer, error) {
	customer, err := s.GetCustomer(ctx, customerID, ownerID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.NIC != nil {
		customer.NIC = *req.NIC
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.ContactNo != nil {
		customer.ContactNo = *req.ContactNo
	}
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}

	if err := s.store.UpdateCustomer(ctx, customer); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, domain.InvalidInputError("NIC %s already exists", customer.NIC)
		case errors.Is(err, repository.ErrVersionMismatch):
			return nil, fmt.Errorf("%w: customer %s changed during update", domain.ErrConflict, customerID)
		}
		return nil, err
	}

	s.logger.Info("Customer updated",
		zap.String("customer_id", customerID),
		zap.String("user_id", ownerID))
	return customer, nil
}

func (s *CatalogService) DeleteCustomer(ctx context.Context, customerID, ownerID string) error {
	if _, err := s.GetCustomer(ctx, customerID, ownerID); err != nil {
		return err
	}
	if err := s.store.DeleteCustomer(ctx, customerID); err != nil {
		return err
	}
	s.logger.Info("Customer deleted", zap.String("customer_id", customerID))
	return nil
}
