package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/events"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/history"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/ledger"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/pricing"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/cloud-wave-best-zizon/stock-order-service/internal/service"

type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
}

type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event events.OrderEvent) error
}

type CompensationPublisher interface {
	PublishCompensation(ctx context.Context, event events.CompensationEvent) error
}

type OrderService struct {
	store        repository.Store
	archive      *history.Archive
	customers    CustomerLookup
	publisher    OrderEventPublisher
	compensation CompensationPublisher
	retry        RetryPolicy
	tracer       trace.Tracer
	logger       *zap.Logger
	now          func() time.Time
}

func NewOrderService(store repository.Store, publisher OrderEventPublisher, compensation CompensationPublisher, logger *zap.Logger, retry RetryPolicy) *OrderService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if compensation == nil {
		compensation = events.NopPublisher{}
	}
	return &OrderService{
		store:        store,
		archive:      history.New(store),
		customers:    store,
		publisher:    publisher,
		compensation: compensation,
		retry:        retry,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "OrderService."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// loadOwned returns the order only when ownerID owns it; otherwise it does not exist.
func (s *OrderService) loadOwned(ctx context.Context, orderID, ownerID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != ownerID {
		return nil, domain.NotFoundError("order", orderID)
	}
	return order, nil
}

func (s *OrderService) loadOwnedItem(ctx context.Context, itemID, ownerID string) (*domain.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, domain.NotFoundError("item", itemID)
	}
	return item, nil
}

func validateCreate(req domain.CreateOrderRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.InvalidInputError("order id is required")
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return domain.InvalidInputError("customer id is required")
	}
	if len(req.Lines) == 0 {
		return domain.InvalidInputError("order must contain at least one line")
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if strings.TrimSpace(l.ItemID) == "" {
			return domain.InvalidInputError("item id is required on every line")
		}
		if l.Quantity < 1 {
			return domain.InvalidInputError("quantity for item %s must be at least 1", l.ItemID)
		}
		if _, dup := seen[l.ItemID]; dup {
			return domain.InvalidInputError("item %s appears on more than one line", l.ItemID)
		}
		seen[l.ItemID] = struct{}{}
	}
	return pricing.ValidateDiscount(req.DiscountPercent)
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest, ownerID string) (order *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CreateOrder",
		attribute.String("order.id", req.OrderID),
		attribute.Int("order.lines", len(req.Lines)))
	defer func() { endSpan(span, err) }()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetOrder(ctx, req.OrderID); err == nil {
		return nil, domain.InvalidInputError("order %s already exists", req.OrderID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	orderedAt := s.now()
	result, err := s.commit(ctx, "create order", func(ctx context.Context) (repository.Mutation, error) {
		plan := ledger.NewPlan()
		lines := make([]domain.OrderLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			item, err := s.loadOwnedItem(ctx, l.ItemID, ownerID)
			if err != nil {
				return repository.Mutation{}, err
			}
			plan.Reserve(item, l.Quantity)
			lines = append(lines, domain.OrderLine{
				ItemID:    item.ItemID,
				ItemName:  item.Name,
				Quantity:  l.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
		if err := plan.Validate(); err != nil {
			return repository.Mutation{}, err
		}

		o := &domain.Order{
			OrderID:         req.OrderID,
			CustomerID:      req.CustomerID,
			OwnerID:         ownerID,
			OrderedAt:       orderedAt,
			Lines:           lines,
			DiscountPercent: req.DiscountPercent,
			Status:          domain.OrderStatusPending,
			CreatedAt:       orderedAt,
			UpdatedAt:       orderedAt,
		}
		if err := pricing.Apply(o); err != nil {
			return repository.Mutation{}, err
		}
		return repository.Mutation{
			Deltas: plan.Deltas(),
			Order:  &repository.OrderWrite{Op: repository.OrderCreate, Order: o},
		}, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.InvalidInputError("order %s already exists", req.OrderID)
		}
		s.logger.Warn("Failed to create order",
			zap.String("order_id", req.OrderID),
			zap.String("user_id", ownerID),
			zap.Error(err))
		return nil, err
	}

	order = result.Order
	s.publish(ctx, events.OrderCreated, order, "")

	s.logger.Info("Order created successfully",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", ownerID),
		zap.String("final_amount", order.FinalAmount.String()))

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID, ownerID string) (*domain.Order, error) {
	return s.loadOwned(ctx, orderID, ownerID)
}

func (s *OrderService) ListOrders(ctx context.Context, ownerID string) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, ownerID)
}

func validateUpdate(req domain.UpdateOrderRequest) error {
	seen := make(map[string]struct{}, len(req.Lines))
	for _, u := range req.Lines {
		if u.Quantity < 1 {
			return domain.InvalidInputError("quantity for item %s must be at least 1", u.ItemID)
		}
		if _, dup := seen[u.ItemID]; dup {
			return domain.InvalidInputError("item %s is updated more than once", u.ItemID)
		}
		seen[u.ItemID] = struct{}{}
	}
	if req.DiscountPercent != nil {
		if err := pricing.ValidateDiscount(*req.DiscountPercent); err != nil {
			return err
		}
	}
	if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) == "" {
		return domain.InvalidInputError("customer id must not be empty")
	}
	return nil
}

// UpdateOrder changes line quantities, the discount or the customer of an order.
// Line updates for items that are not on the order are ignored. Stock moves by the
// difference between the old and the new quantity of each line.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, req domain.UpdateOrderRequest, ownerID string) (order *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "UpdateOrder", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	result, err := s.commit(ctx, "update order", func(ctx context.Context) (repository.Mutation, error) {
		current, err := s.loadOwned(ctx, orderID, ownerID)
		if err != nil {
			return repository.Mutation{}, err
		}
		next := current.Clone()
		plan := ledger.NewPlan()

		for _, u := range req.Lines {
			line := next.Line(u.ItemID)
			if line == nil {
				s.logger.Debug("Skipping update for item not on order",
					zap.String("order_id", orderID),
					zap.String("item_id", u.ItemID))
				continue
			}
			if line.Quantity == u.Quantity {
				continue
			}
			item, err := s.store.GetItem(ctx, u.ItemID)
			if err != nil {
				return repository.Mutation{}, err
			}
			plan.Add(item, line.Quantity-u.Quantity)
			line.Quantity = u.Quantity
		}
		if err := plan.Validate(); err != nil {
			return repository.Mutation{}, err
		}

		if req.DiscountPercent != nil {
			next.DiscountPercent = *req.DiscountPercent
		}
		if req.CustomerID != nil {
			next.CustomerID = *req.CustomerID
		}
		if err := pricing.Apply(next); err != nil {
			return repository.Mutation{}, err
		}
		next.UpdatedAt = s.now()

		return repository.Mutation{
			Deltas: plan.Deltas(),
			Order:  &repository.OrderWrite{Op: repository.OrderReplace, Order: next},
		}, nil
	})
	if err != nil {
		s.logger.Warn("Failed to update order",
			zap.String("order_id", orderID),
			zap.String("user_id", ownerID),
			zap.Error(err))
		return nil, err
	}

	order = result.Order
	s.publish(ctx, events.OrderUpdated, order, "")

	s.logger.Info("Order updated",
		zap.String("order_id", orderID),
		zap.String("final_amount", order.FinalAmount.String()),
		zap.Int64("version", order.Version))

	return order, nil
}

func (s *OrderService) UpdateOrderQuantities(ctx context.Context, orderID string, lines []domain.LineUpdate, ownerID string) (*domain.Order, error) {
	return s.UpdateOrder(ctx, orderID, domain.UpdateOrderRequest{Lines: lines}, ownerID)
}

func (s *OrderService) UpdateDiscount(ctx context.Context, orderID string, discountPercent decimal.Decimal, ownerID string) (*domain.Order, error) {
	return s.UpdateOrder(ctx, orderID, domain.UpdateOrderRequest{DiscountPercent: &discountPercent}, ownerID)
}

// SetStatus moves an order along pending -> completed or pending -> cancelled.
// Stock and totals are left as they are.
func (s *OrderService) SetStatus(ctx context.Context, orderID, rawStatus, ownerID string) (order *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "SetStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.status", rawStatus))
	defer func() { endSpan(span, err) }()

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	var unchanged *domain.Order
	result, err := s.commit(ctx, "set status", func(ctx context.Context) (repository.Mutation, error) {
		current, err := s.loadOwned(ctx, orderID, ownerID)
		if err != nil {
			return repository.Mutation{}, err
		}
		if !current.Status.CanTransitionTo(status) {
			return repository.Mutation{}, fmt.Errorf("%w: cannot move order %s from %s to %s",
				domain.ErrInvalidStatus, orderID, current.Status, status)
		}
		if current.Status == status {
			unchanged = current
			return repository.Mutation{}, nil
		}
		next := current.Clone()
		next.Status = status
		next.UpdatedAt = s.now()
		return repository.Mutation{
			Order: &repository.OrderWrite{Op: repository.OrderReplace, Order: next},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if unchanged != nil {
		return unchanged, nil
	}

	order = result.Order
	s.publish(ctx, events.OrderStatusChanged, order, "")

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("status", string(status)))

	return order, nil
}

func (s *OrderService) customerName(ctx context.Context, customerID string) (string, error) {
	customer, err := s.customers.GetCustomer(ctx, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UnknownCustomerName, nil
	}
	if err != nil {
		return "", err
	}
	return customer.Name, nil
}

// DeleteOrder archives the order, puts its stock back and removes it, all in one
// commit. A deletion intent naming the archive id is recorded first so that a crash
// between the two writes can be found by Reconcile.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID, ownerID string) (entry *domain.OrderHistoryEntry, err error) {
	ctx, span := s.startSpan(ctx, "DeleteOrder", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	order, err := s.loadOwned(ctx, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	name, err := s.customerName(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}

	archiveID := uuid.NewString()
	intent := &repository.DeleteIntent{OrderID: orderID, ArchiveID: archiveID}
	if _, err := s.store.Commit(ctx, repository.Mutation{PutIntent: intent}); err != nil {
		return nil, err
	}

	_, err = s.commit(ctx, "delete order", func(ctx context.Context) (repository.Mutation, error) {
		current := order
		if entry != nil {
			// a previous attempt lost a race; re-read what is being deleted
			reloaded, err := s.loadOwned(ctx, orderID, ownerID)
			if err != nil {
				return repository.Mutation{}, err
			}
			current = reloaded
		}
		snapshot := history.Snapshot(current, name, s.now())
		snapshot.ArchiveID = archiveID
		entry = &snapshot

		m := repository.Mutation{
			Order:       &repository.OrderWrite{Op: repository.OrderDelete, Order: current},
			ClearIntent: orderID,
		}
		for _, line := range current.Lines {
			m.Deltas = append(m.Deltas, repository.StockDelta{ItemID: line.ItemID, Delta: line.Quantity})
		}
		if err := s.archive.Attach(&m, snapshot); err != nil {
			return repository.Mutation{}, err
		}
		return m, nil
	})
	if err != nil {
		if _, clearErr := s.store.Commit(context.WithoutCancel(ctx), repository.Mutation{ClearIntent: orderID}); clearErr != nil {
			s.logger.Error("Failed to clear deletion intent",
				zap.String("order_id", orderID),
				zap.Error(clearErr))
		}
		s.logger.Warn("Failed to delete order",
			zap.String("order_id", orderID),
			zap.String("user_id", ownerID),
			zap.Error(err))
		return nil, err
	}

	s.publish(ctx, events.OrderDeleted, order, entry.ArchiveID)

	s.logger.Info("Order archived and deleted",
		zap.String("order_id", orderID),
		zap.String("archive_id", entry.ArchiveID),
		zap.String("customer_name", entry.CustomerName))

	return entry, nil
}

func (s *OrderService) GetOrderHistory(ctx context.Context, orderID, ownerID string) (*domain.OrderHistoryEntry, error) {
	entry, err := s.archive.FindByOriginalOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, domain.NotFoundError("order history", orderID)
	}
	return entry, nil
}

type ReconcileReport struct {
	Cleared    []string
	Incomplete []string
}

// Reconcile resolves deletion intents left behind by an interrupted process. It never
// resumes a deletion: orders that vanished without the intent's archive entry are
// reported. An older archive of a reused order id does not count.
func (s *OrderService) Reconcile(ctx context.Context) (report ReconcileReport, err error) {
	ctx, span := s.startSpan(ctx, "Reconcile")
	defer func() { endSpan(span, err) }()

	intents, err := s.store.ListDeleteIntents(ctx)
	if err != nil {
		return report, err
	}

	for _, intent := range intents {
		orderID := intent.OrderID
		_, err := s.store.GetOrder(ctx, orderID)
		switch {
		case err == nil:
			// deletion never happened
		case errors.Is(err, domain.ErrNotFound):
			archived, herr := s.archivedBy(ctx, intent)
			if herr != nil {
				return report, herr
			}
			if !archived {
				report.Incomplete = append(report.Incomplete, orderID)
				s.reportIncompleteDelete(ctx, orderID)
				continue
			}
		default:
			return report, err
		}

		if _, err := s.store.Commit(ctx, repository.Mutation{ClearIntent: orderID}); err != nil {
			return report, err
		}
		report.Cleared = append(report.Cleared, orderID)
	}

	s.logger.Info("Deletion intents reconciled",
		zap.Int("cleared", len(report.Cleared)),
		zap.Int("incomplete", len(report.Incomplete)))

	if len(report.Incomplete) > 0 {
		return report, fmt.Errorf("%w: orders %s", domain.ErrIncompleteDelete, strings.Join(report.Incomplete, ", "))
	}
	return report, nil
}

// archivedBy reports whether the deletion behind intent reached the archive. Intents
// without an archive id fall back to any entry archived after the intent was written.
func (s *OrderService) archivedBy(ctx context.Context, intent repository.DeleteIntent) (bool, error) {
	if intent.ArchiveID != "" {
		return s.archive.Contains(ctx, intent.OrderID, intent.ArchiveID)
	}
	entries, err := s.archive.ListByOriginalOrderID(ctx, intent.OrderID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.ArchivedAt.Before(intent.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (s *OrderService) reportIncompleteDelete(ctx context.Context, orderID string) {
	s.logger.Error("Order removed without archive entry",
		zap.String("order_id", orderID))

	event := events.CompensationEvent{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		Reason:    "order deleted without history entry",
		Timestamp: s.now(),
	}
	if err := s.compensation.PublishCompensation(ctx, event); err != nil {
		s.logger.Error("Failed to publish compensation event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// publish is best effort: the commit already succeeded.
func (s *OrderService) publish(ctx context.Context, eventType events.OrderEventType, order *domain.Order, archiveID string) {
	event := events.OrderEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     order.OrderID,
		OwnerID:     order.OwnerID,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		FinalAmount: order.FinalAmount,
		Lines:       order.Lines,
		ArchiveID:   archiveID,
		Timestamp:   s.now(),
		RequestID:   events.RequestIDFromContext(ctx),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("order_id", order.OrderID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
