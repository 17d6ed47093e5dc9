package enums

// OrderStatus is an order's fulfilment stage.
//
//	pending -> processing -> shipped -> delivered
//	pending | processing -> cancelled
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = newSet("order status",
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
)

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.has(s) }

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}
