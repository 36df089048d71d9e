package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderPlaced NotificationType = "order_placed"
	NotificationTypeNewOrder    NotificationType = "new_order"
	NotificationTypeOrderStatus NotificationType = "order_status"
)

var notificationTypes = newSet("notification type",
	NotificationTypeOrderPlaced,
	NotificationTypeNewOrder,
	NotificationTypeOrderStatus,
)

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
