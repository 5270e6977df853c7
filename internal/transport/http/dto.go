package http

import (
	"time"

	"github.com/mzziin/PrimeCart/internal/domain"
)

type PlaceOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

type ShippingAddressRequest struct {
	Line1      string `json:"line1" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// PlaceOrderRequest requires a shipping address for intake validation even
// though fulfilment currently reads addresses from the customer profile.
type PlaceOrderRequest struct {
	CustomerID      string                  `json:"customer_id" validate:"required,uuid"`
	ShippingAddress ShippingAddressRequest  `json:"shipping_address" validate:"required"`
	Items           []PlaceOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderItemStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderItemResponse struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	Status      string     `json:"status"`
	Quantity    int32      `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	LineTotal   int64      `json:"line_total"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	OrderDate   time.Time           `json:"order_date"`
	TotalAmount int64               `json:"total_amount"`
	Items       []OrderItemResponse `json:"items"`
}

func toOrderItemResponse(item *domain.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:          item.ID,
		OrderID:     item.OrderID,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Status:      string(item.Status),
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		LineTotal:   item.LineTotal(),
		DeliveredAt: item.DeliveredAt,
	}
}

func toOrderResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for i := range order.Items {
		items = append(items, toOrderItemResponse(&order.Items[i]))
	}

	return OrderResponse{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		OrderDate:   order.OrderDate,
		TotalAmount: order.TotalAmount(),
		Items:       items,
	}
}
