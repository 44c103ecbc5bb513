package enums

// NotificationType categorizes user-facing notifications.
type NotificationType string

const (
	NotificationOrderPlaced       NotificationType = "order_placed"
	NotificationOrderCancelled    NotificationType = "order_cancelled"
	NotificationOrderPaid         NotificationType = "order_paid"
	NotificationWalletToppedUp    NotificationType = "wallet_topped_up"
	NotificationWalletWithdrawal  NotificationType = "wallet_withdrawal"
	NotificationAdBudgetExhausted NotificationType = "ad_budget_exhausted"
	NotificationSubscriptionBill  NotificationType = "subscription_billed"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderPlaced,
	NotificationOrderCancelled,
	NotificationOrderPaid,
	NotificationWalletToppedUp,
	NotificationWalletWithdrawal,
	NotificationAdBudgetExhausted,
	NotificationSubscriptionBill,
}

func (t NotificationType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known NotificationType.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
