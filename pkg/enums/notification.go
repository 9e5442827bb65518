package enums

// NotificationType groups inbox entries. Offer notifications follow the
// barter flow; wallet notifications follow incoming coins.
type NotificationType string

const (
	NotificationTypeOffer  NotificationType = "offer"
	NotificationTypeWallet NotificationType = "wallet"
)

var notificationTypes = set[NotificationType]{NotificationTypeOffer, NotificationTypeWallet}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse(value, "notification type")
}
