package enums

// OutboxEventType identifies a domain event emitted via the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventOrderPaid             OutboxEventType = "order.paid"
	EventWalletToppedUp        OutboxEventType = "wallet.topped_up"
	EventWalletWithdrawal      OutboxEventType = "wallet.withdrawal_requested"
	EventAdBudgetExhausted     OutboxEventType = "ad.budget_exhausted"
	EventSubscriptionProcessed OutboxEventType = "subscription.processed"
	EventLedgerShortfall       OutboxEventType = "ledger.shortfall"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderPaid,
	EventWalletToppedUp,
	EventWalletWithdrawal,
	EventAdBudgetExhausted,
	EventSubscriptionProcessed,
	EventLedgerShortfall,
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrderGroup   OutboxAggregateType = "order_group"
	AggregateWallet       OutboxAggregateType = "wallet"
	AggregateAd           OutboxAggregateType = "ad"
	AggregateSubscription OutboxAggregateType = "subscription"
)
