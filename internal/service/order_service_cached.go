package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/redis/go-redis/v9"
)

type cachedOrderService struct {
	next        OrderService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewCachedOrderService wraps the service with a read-through cache on single
// order reads. Every mutation drops the affected order's cache entry; once an
// order's items are all terminal the entry just ages out.
func NewCachedOrderService(next OrderService, redisClient *redis.Client) OrderService {
	return &cachedOrderService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func orderCacheKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func (s *cachedOrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	return s.next.PlaceOrder(ctx, input)
}

func (s *cachedOrderService) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	key := orderCacheKey(orderID)

	val, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		var order domain.Order
		if err := json.Unmarshal([]byte(val), &order); err == nil {
			return &order, nil
		}
	}

	order, err := s.next.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(order); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return order, nil
}

func (s *cachedOrderService) GetOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return s.next.GetOrdersByCustomer(ctx, customerID)
}

func (s *cachedOrderService) UpdateOrderItemStatus(ctx context.Context, itemID string, status domain.OrderItemStatus) (*domain.OrderItem, error) {
	item, err := s.next.UpdateOrderItemStatus(ctx, itemID, status)
	if err != nil {
		return nil, err
	}

	s.redisClient.Del(ctx, orderCacheKey(item.OrderID))
	return item, nil
}

func (s *cachedOrderService) CancelOrderItem(ctx context.Context, itemID string) (*domain.OrderItem, error) {
	item, err := s.next.CancelOrderItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	s.redisClient.Del(ctx, orderCacheKey(item.OrderID))
	return item, nil
}
