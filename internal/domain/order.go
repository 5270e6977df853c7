package domain

import "time"

// Order is the aggregate root created once at placement. Only the status and
// delivery date of its items ever change afterwards; everything else is frozen.
type Order struct {
	ID         string      `db:"id"`
	CustomerID string      `db:"customer_id"`
	OrderDate  time.Time   `db:"order_date"`
	Items      []OrderItem `db:"items"`
}

// OrderItem carries a price snapshot taken at placement time; it is decoupled
// from the live product price on purpose.
type OrderItem struct {
	ID          string          `db:"id"`
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Status      OrderItemStatus `db:"status"`
	Quantity    int32           `db:"quantity"`
	UnitPrice   int64           `db:"unit_price"`
	DeliveredAt *time.Time      `db:"delivered_at"`
}

// TotalAmount is always derived from the items, never stored.
func (o *Order) TotalAmount() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	return total
}

func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}
