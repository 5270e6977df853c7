package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CustomerRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type customerRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewCustomerRepository(pool *pgxpool.Pool, logger *zap.Logger) CustomerRepository {
	return &customerRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/customer_repo"),
	}
}

func (r *customerRepo) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "CustomerRepository.Exists")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", id),
	)

	query := `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to check customer existence",
			zap.String("customer_id", id),
			zap.Error(err),
		)

		return false, fmt.Errorf("error checking customer %s: %w", id, err)
	}

	return exists, nil
}
