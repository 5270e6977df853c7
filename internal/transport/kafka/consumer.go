package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mzziin/PrimeCart/internal/apperror"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/internal/service"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	outboxUtils "github.com/mzziin/PrimeCart/pkg/outbox/utils"
	"go.uber.org/zap"
)

// fulfillmentMessage is the envelope the warehouse publishes on the fulfillment
// topic. EventID comes from the producer's outbox and drives deduplication.
type fulfillmentMessage struct {
	EventID     int64  `json:"event_id"`
	EventType   string `json:"event_type"`
	OrderItemID string `json:"order_item_id"`
}

var fulfillmentStatuses = map[string]domain.OrderItemStatus{
	"ItemPacked":    domain.StatusPacked,
	"ItemShipped":   domain.StatusShipped,
	"ItemDelivered": domain.StatusDelivered,
}

// FulfillmentConsumer applies warehouse progress events to order items.
type FulfillmentConsumer struct {
	svc    service.OrderService
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewFulfillmentConsumer(svc service.OrderService, pool *pgxpool.Pool, logger *zap.Logger) *FulfillmentConsumer {
	return &FulfillmentConsumer{
		svc:    svc,
		pool:   pool,
		logger: logger,
	}
}

func (c *FulfillmentConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event fulfillmentMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Failed to unmarshal fulfillment event",
			zap.Error(err),
		)

		// A malformed message never becomes parseable; drop it.
		return nil
	}

	status, ok := fulfillmentStatuses[event.EventType]
	if !ok {
		mylogger.Warn(
			ctx,
			c.logger,
			"Unknown fulfillment event type, skipping",
			zap.String("event_type", event.EventType),
			zap.Int64("event_id", event.EventID),
		)

		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, c.pool, c.logger, event.EventID, func() error {
		_, err := c.svc.UpdateOrderItemStatus(ctx, event.OrderItemID, status)
		if err == nil {
			return nil
		}

		// Business rejections are final for this event; only infrastructure
		// failures are worth a redelivery.
		if apperror.KindOf(err) != apperror.KindInternal {
			mylogger.Warn(
				ctx,
				c.logger,
				"Fulfillment event rejected",
				zap.Int64("event_id", event.EventID),
				zap.String("order_item_id", event.OrderItemID),
				zap.String("status", string(status)),
				zap.Error(err),
			)

			return nil
		}

		return fmt.Errorf("failed to apply fulfillment event %d: %w", event.EventID, err)
	})
}
