package enums

// NotificationType classifies inbox entries.
type NotificationType string

const (
	NotificationTypeOrderUpdate    NotificationType = "order_update"
	NotificationTypePaymentAlert   NotificationType = "payment_alert"
	NotificationTypeShippingUpdate NotificationType = "shipping_update"
)

var notificationTypes = newSet("notification type",
	NotificationTypeOrderUpdate,
	NotificationTypePaymentAlert,
	NotificationTypeShippingUpdate,
)

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse(value)
}
