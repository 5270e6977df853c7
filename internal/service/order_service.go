package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mzziin/PrimeCart/internal/apperror"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/internal/repository"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	outboxDomain "github.com/mzziin/PrimeCart/pkg/outbox/domain"
	"github.com/mzziin/PrimeCart/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const orderEventsTopic = "order_events"

// TxBeginner is the slice of pgxpool.Pool the service needs to open
// transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PlaceOrderItemInput struct {
	ProductID string
	Quantity  int32
}

type PlaceOrderInput struct {
	CustomerID string
	Items      []PlaceOrderItemInput
}

type OrderService interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	UpdateOrderItemStatus(ctx context.Context, itemID string, status domain.OrderItemStatus) (*domain.OrderItem, error)
	CancelOrderItem(ctx context.Context, itemID string) (*domain.OrderItem, error)
}

type orderService struct {
	pool         TxBeginner
	orderRepo    repository.OrderRepository
	productRepo  repository.ProductRepository
	customerRepo repository.CustomerRepository
	outboxRepo   worker.OutboxRepository
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewOrderService(
	pool TxBeginner,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	customerRepo repository.CustomerRepository,
	outboxRepo worker.OutboxRepository,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		pool:         pool,
		orderRepo:    orderRepo,
		productRepo:  productRepo,
		customerRepo: customerRepo,
		outboxRepo:   outboxRepo,
		logger:       logger,
		tracer:       otel.Tracer("order-service"),
	}
}

// PlaceOrder validates the request against the catalog and the customer base,
// then reserves stock and writes the whole aggregate in one transaction. The
// transaction either lands completely (order, items, stock decrements, outbox
// event) or not at all.
func (s *orderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", input.CustomerID),
		attribute.Int("items_count", len(input.Items)),
	)

	if len(input.Items) == 0 {
		return nil, apperror.Validation("order must contain at least one item")
	}

	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, apperror.Validation(
				"quantity must be positive for product %s, got %d",
				item.ProductID, item.Quantity,
			)
		}
	}

	exists, err := s.customerRepo.Exists(ctx, input.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to verify customer", err)
	}
	if !exists {
		return nil, apperror.NotFound("customer %s not found", input.CustomerID)
	}

	productIDs := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.productRepo.ResolveProducts(ctx, productIDs)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to resolve products", err)
	}

	var missing []string
	for _, item := range input.Items {
		if _, ok := products[item.ProductID]; !ok {
			missing = append(missing, item.ProductID)
		}
	}
	if len(missing) > 0 {
		return nil, apperror.NotFound("products not found: %s", strings.Join(missing, ", "))
	}

	// Advisory precheck against the snapshot just read. The real guarantee is
	// the guarded decrement inside the transaction below; this pass only
	// produces a complete list of offenders for the caller.
	var short []string
	for _, item := range input.Items {
		p := products[item.ProductID]
		if p.Stock < item.Quantity {
			short = append(short, fmt.Sprintf(
				"%s (%s): requested %d, available %d",
				p.Name, p.ID, item.Quantity, p.Stock,
			))
		}
	}
	if len(short) > 0 {
		return nil, apperror.Conflict("insufficient stock: %s", strings.Join(short, "; "))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return nil, apperror.Internal("failed to begin transaction", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				s.logger,
				"Failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	order := &domain.Order{
		ID:         uuid.NewString(),
		CustomerID: input.CustomerID,
		OrderDate:  time.Now().UTC(),
		Items:      make([]domain.OrderItem, 0, len(input.Items)),
	}

	for _, item := range input.Items {
		price, err := s.productRepo.DecreaseStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				// A concurrent placement won the race after our precheck.
				p := products[item.ProductID]
				return nil, apperror.Conflict(
					"insufficient stock: %s (%s): requested %d",
					p.Name, p.ID, item.Quantity,
				)
			}

			span.RecordError(err)
			return nil, apperror.Internal("failed to reserve stock", err)
		}

		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: products[item.ProductID].Name,
			Status:      domain.StatusPending,
			Quantity:    item.Quantity,
			UnitPrice:   price,
		})
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to create order", err)
	}

	if err := s.saveOrderPlacedEvent(ctx, tx, order); err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to save outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return nil, apperror.Internal("failed to commit transaction", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order placed",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.Int64("total_amount", order.TotalAmount()),
	)

	return order, nil
}

func (s *orderService) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrderByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.NotFound("order %s not found", orderID)
		}

		span.RecordError(err)
		return nil, apperror.Internal("failed to get order", err)
	}

	return order, nil
}

func (s *orderService) GetOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrdersByCustomer")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
	)

	exists, err := s.customerRepo.Exists(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to verify customer", err)
	}
	if !exists {
		return nil, apperror.NotFound("customer %s not found", customerID)
	}

	orders, err := s.orderRepo.GetOrdersByCustomer(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to list orders", err)
	}

	return orders, nil
}

// UpdateOrderItemStatus moves one item through its lifecycle. Terminal states
// reject everything except a repeat of themselves, which is treated as an
// idempotent no-op. Moving to cancelled goes through the cancellation path so
// stock is returned.
func (s *orderService) UpdateOrderItemStatus(ctx context.Context, itemID string, status domain.OrderItemStatus) (*domain.OrderItem, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderItemStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_item_id", itemID),
		attribute.String("status", string(status)),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to begin transaction", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				s.logger,
				"Failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	item, err := s.orderRepo.GetOrderItemForUpdate(ctx, tx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderItemNotFound) {
			return nil, apperror.NotFound("order item %s not found", itemID)
		}

		span.RecordError(err)
		return nil, apperror.Internal("failed to load order item", err)
	}

	if item.Status == status {
		// Already there; nothing to write, nothing to publish.
		return item, nil
	}

	if !domain.CanTransition(item.Status, status) {
		return nil, apperror.Conflict(
			"order item %s is %s and cannot move to %s",
			itemID, item.Status, status,
		)
	}

	if status == domain.StatusCancelled {
		return s.cancelItemLocked(ctx, tx, item)
	}

	var deliveredAt *time.Time
	if status == domain.StatusDelivered && item.DeliveredAt == nil {
		now := time.Now().UTC()
		deliveredAt = &now
	}

	if err := s.orderRepo.UpdateOrderItemStatus(ctx, tx, itemID, status, deliveredAt); err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to update order item", err)
	}

	item.Status = status
	if deliveredAt != nil {
		item.DeliveredAt = deliveredAt
	}

	if err := s.saveStatusChangedEvent(ctx, tx, item); err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to save outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to commit transaction", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order item status updated",
		zap.String("order_item_id", itemID),
		zap.String("status", string(status)),
	)

	return item, nil
}

// CancelOrderItem cancels one item and returns its quantity to stock, both in
// the same transaction. Unlike a repeated status update, cancelling an already
// cancelled item is a conflict here.
func (s *orderService) CancelOrderItem(ctx context.Context, itemID string) (*domain.OrderItem, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrderItem")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_item_id", itemID),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal("failed to begin transaction", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				s.logger,
				"Failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	item, err := s.orderRepo.GetOrderItemForUpdate(ctx, tx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderItemNotFound) {
			return nil, apperror.NotFound("order item %s not found", itemID)
		}

		span.RecordError(err)
		return nil, apperror.Internal("failed to load order item", err)
	}

	if item.Status == domain.StatusCancelled {
		return nil, apperror.Conflict("order item %s is already cancelled", itemID)
	}
	if item.Status == domain.StatusDelivered {
		return nil, apperror.Conflict("order item %s is delivered and cannot be cancelled", itemID)
	}

	return s.cancelItemLocked(ctx, tx, item)
}

// cancelItemLocked finishes a cancellation on an item already locked by the
// caller's transaction, then commits it.
func (s *orderService) cancelItemLocked(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) (*domain.OrderItem, error) {
	if err := s.productRepo.IncreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
		return nil, apperror.Internal("failed to restock product", err)
	}

	if err := s.orderRepo.UpdateOrderItemStatus(ctx, tx, item.ID, domain.StatusCancelled, nil); err != nil {
		return nil, apperror.Internal("failed to update order item", err)
	}

	item.Status = domain.StatusCancelled

	if err := s.saveCancelledEvent(ctx, tx, item); err != nil {
		return nil, apperror.Internal("failed to save outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return nil, apperror.Internal("failed to commit transaction", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order item cancelled",
		zap.String("order_item_id", item.ID),
		zap.String("product_id", item.ProductID),
		zap.Int32("restocked", item.Quantity),
	)

	return item, nil
}

func (s *orderService) saveOrderPlacedEvent(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	items := make([]domain.OrderPlacedEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.OrderPlacedEventItem{
			OrderItemID: item.ID,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount(),
		PlacedAt:    order.OrderDate,
		Items:       items,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   order.ID,
		EventType:     "OrderPlaced",
		Payload:       payload,
		Topic:         orderEventsTopic,
	})
}

func (s *orderService) saveStatusChangedEvent(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error {
	payload, err := json.Marshal(domain.OrderItemStatusChangedEvent{
		OrderItemID: item.ID,
		OrderID:     item.OrderID,
		Status:      string(item.Status),
		DeliveredAt: item.DeliveredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
		AggregateType: "OrderItem",
		AggregateID:   item.ID,
		EventType:     "OrderItemStatusChanged",
		Payload:       payload,
		Topic:         orderEventsTopic,
	})
}

func (s *orderService) saveCancelledEvent(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error {
	payload, err := json.Marshal(domain.OrderItemCancelledEvent{
		OrderItemID: item.ID,
		OrderID:     item.OrderID,
		ProductID:   item.ProductID,
		Quantity:    item.Quantity,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
		AggregateType: "OrderItem",
		AggregateID:   item.ID,
		EventType:     "OrderItemCancelled",
		Payload:       payload,
		Topic:         orderEventsTopic,
	})
}
