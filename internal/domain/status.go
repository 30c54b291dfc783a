package domain

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCanceled  OrderStatus = "canceled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCanceled: true},
	OrderStatusPaid:      {OrderStatusShipped: true, OrderStatusCanceled: true},
	OrderStatusShipped:   {OrderStatusDelivered: true},
	OrderStatusDelivered: {},
	OrderStatusCanceled:  {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Cancelable reports whether an order in this status may still be canceled.
// Shipped and delivered orders are past the point of no return.
func (s OrderStatus) Cancelable() bool {
	return s == OrderStatusPending || s == OrderStatusPaid
}

func (s OrderStatus) Terminal() bool {
	return len(validNext[s]) == 0
}
