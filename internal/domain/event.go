package domain

import "time"

// Outbox payloads, published after commit by the outbox processor.

type OrderPlacedEvent struct {
	OrderID     string                 `json:"order_id"`
	CustomerID  string                 `json:"customer_id"`
	TotalAmount int64                  `json:"total_amount"`
	PlacedAt    time.Time              `json:"placed_at"`
	Items       []OrderPlacedEventItem `json:"items"`
}

type OrderPlacedEventItem struct {
	OrderItemID string `json:"order_item_id"`
	ProductID   string `json:"product_id"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type OrderItemStatusChangedEvent struct {
	OrderItemID string     `json:"order_item_id"`
	OrderID     string     `json:"order_id"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type OrderItemCancelledEvent struct {
	OrderItemID string `json:"order_item_id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	Quantity    int32  `json:"quantity"`
}

// FulfillmentEvent arrives from the warehouse on the fulfillment topic and
// drives item status transitions.
type FulfillmentEvent struct {
	OrderItemID string `json:"order_item_id"`
}
