package models

// All lists every persisted model in dependency order for schema bootstrap.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
