package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	ResolveProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	DecreaseStock(ctx context.Context, tx pgx.Tx, id string, quantity int32) (int64, error)
	IncreaseStock(ctx context.Context, tx pgx.Tx, id string, quantity int32) error
}

type productRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/product_repo"),
	}
}

// ResolveProducts batch-resolves the requested ids; absent ids are simply
// missing from the returned map.
func (r *productRepo) ResolveProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ResolveProducts")
	defer span.End()

	span.SetAttributes(
		attribute.Int("requested_count", len(ids)),
	)

	query := `
		SELECT id, name, price, stock
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query products",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error resolving products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan product row",
				zap.Error(err),
			)

			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	span.SetAttributes(
		attribute.Int("resolved_count", len(products)),
	)

	return products, nil
}

// DecreaseStock reserves stock with a guarded compare-and-decrement: the UPDATE
// only matches while enough stock remains, so two placements racing on the same
// product cannot both win. It returns the live price read inside the same
// transaction, which becomes the order item's price snapshot.
func (r *productRepo) DecreaseStock(ctx context.Context, tx pgx.Tx, id string, quantity int32) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.DecreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING price
	`

	var price int64
	if err := tx.QueryRow(ctx, query, id, quantity).Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Stock decrement rejected",
				zap.String("product_id", id),
				zap.Int32("quantity", quantity),
			)

			return 0, ErrInsufficientStock
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error decreasing stock",
			zap.String("product_id", id),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return 0, fmt.Errorf("error decreasing stock for product %s: %w", id, err)
	}

	return price, nil
}

func (r *productRepo) IncreaseStock(ctx context.Context, tx pgx.Tx, id string, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.IncreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to increase stock",
			zap.String("product_id", id),
			zap.Error(err),
		)

		return err
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Product not found", zap.String("product_id", id))
		return ErrProductNotFound
	}

	return nil
}
