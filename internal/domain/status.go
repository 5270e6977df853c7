package domain

import "fmt"

type OrderItemStatus string

const (
	StatusPending   OrderItemStatus = "pending"
	StatusPacked    OrderItemStatus = "packed"
	StatusShipped   OrderItemStatus = "shipped"
	StatusDelivered OrderItemStatus = "delivered"
	StatusCancelled OrderItemStatus = "cancelled"
)

func ParseOrderItemStatus(s string) (OrderItemStatus, error) {
	switch OrderItemStatus(s) {
	case StatusPending, StatusPacked, StatusShipped, StatusDelivered, StatusCancelled:
		return OrderItemStatus(s), nil
	default:
		return "", fmt.Errorf("unknown order item status %q", s)
	}
}

// Terminal reports whether no further transition is permitted from s.
func (s OrderItemStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition is the single source of truth for status legality. Repeating the
// current status is always allowed (idempotent no-op); terminal states admit
// nothing else; any other move, forward skips included, is accepted.
func CanTransition(from, to OrderItemStatus) bool {
	if from == to {
		return true
	}
	return !from.Terminal()
}
