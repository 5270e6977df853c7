package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	GetOrderItemForUpdate(ctx context.Context, tx pgx.Tx, itemID string) (*domain.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, tx pgx.Tx, itemID string, status domain.OrderItemStatus, deliveredAt *time.Time) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/order_repo"),
	}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (id, customer_id, order_date)
		VALUES ($1, $2, $3)
	`

	if _, err := tx.Exec(ctx, queryOrder, order.ID, order.CustomerID, order.OrderDate); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, status, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, item := range order.Items {
		_, err := tx.Exec(
			ctx,
			queryItem,
			item.ID,
			order.ID,
			item.ProductID,
			string(item.Status),
			item.Quantity,
			item.UnitPrice,
		)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.String("order_item_id", item.ID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetOrderByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	queryOrder := `
		SELECT id, customer_id, order_date
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	if err := r.pool.QueryRow(ctx, queryOrder, orderID).
		Scan(&order.ID, &order.CustomerID, &order.OrderDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting order: %w", err)
	}

	items, err := r.queryItems(ctx, `WHERE oi.order_id = $1`, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *orderRepo) GetOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetOrdersByCustomer")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
	)

	queryOrders := `
		SELECT id, customer_id, order_date
		FROM orders
		WHERE customer_id = $1
		ORDER BY order_date DESC
	`

	rows, err := r.pool.Query(ctx, queryOrders, customerID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query customer orders",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.OrderDate); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for i := range orders {
		items, err := r.queryItems(ctx, `WHERE oi.order_id = $1`, orders[i].ID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// queryItems loads order items joined with the catalog for display names.
func (r *orderRepo) queryItems(ctx context.Context, where string, arg any) ([]domain.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.status, oi.quantity, oi.unit_price, oi.delivered_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		` + where + `
		ORDER BY oi.id
	`

	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error querying order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&status,
			&item.Quantity,
			&item.UnitPrice,
			&item.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}
		item.Status = domain.OrderItemStatus(status)
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetOrderItemForUpdate locks the item row for the rest of the transaction so a
// concurrent transition or cancellation serializes behind this one.
func (r *orderRepo) GetOrderItemForUpdate(ctx context.Context, tx pgx.Tx, itemID string) (*domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetOrderItemForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_item_id", itemID),
	)

	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.status, oi.quantity, oi.unit_price, oi.delivered_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.id = $1
		FOR UPDATE OF oi
	`

	var item domain.OrderItem
	var status string
	if err := tx.QueryRow(ctx, query, itemID).Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.ProductName,
		&status,
		&item.Quantity,
		&item.UnitPrice,
		&item.DeliveredAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderItemNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock order item",
			zap.String("order_item_id", itemID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error locking order item: %w", err)
	}
	item.Status = domain.OrderItemStatus(status)

	return &item, nil
}

func (r *orderRepo) UpdateOrderItemStatus(ctx context.Context, tx pgx.Tx, itemID string, status domain.OrderItemStatus, deliveredAt *time.Time) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateOrderItemStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_item_id", itemID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE order_items
		SET status = $1, delivered_at = COALESCE($2, delivered_at)
		WHERE id = $3
	`

	commandTag, err := tx.Exec(ctx, query, string(status), deliveredAt, itemID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order item status",
			zap.String("order_item_id", itemID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order item: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Order item not found",
			zap.String("order_item_id", itemID),
		)

		return ErrOrderItemNotFound
	}

	return nil
}
