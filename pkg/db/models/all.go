package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&InventoryItem{},
		&StockReservation{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderLineItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
