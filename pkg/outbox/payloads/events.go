package payloads

import "github.com/google/uuid"

// OrderGroupCreated is emitted once per checkout, after every vendor
// order in the group has been created and paid for.
type OrderGroupCreated struct {
	GroupID    string      `json:"groupId"`
	UserID     uuid.UUID   `json:"userId"`
	VendorIDs  []uuid.UUID `json:"vendorIds"`
	OrderIDs   []uuid.UUID `json:"orderIds"`
	TotalCents int64       `json:"totalCents"`
}

// OrderCancelled is emitted for each cancelled order, refund included.
type OrderCancelled struct {
	OrderID       uuid.UUID `json:"orderId"`
	GroupID       string    `json:"groupId"`
	UserID        uuid.UUID `json:"userId"`
	VendorID      uuid.UUID `json:"vendorId"`
	RefundedCents int64     `json:"refundedCents"`
}

// OrderPaid is emitted when a gateway webhook settles an order group.
type OrderPaid struct {
	GroupID    string    `json:"groupId"`
	UserID     uuid.UUID `json:"userId"`
	TotalCents int64     `json:"totalCents"`
}

// WalletToppedUp is emitted after a gateway top-up lands in a wallet.
type WalletToppedUp struct {
	WalletID    uuid.UUID `json:"walletId"`
	OwnerID     uuid.UUID `json:"ownerId"`
	OwnerKind   string    `json:"ownerKind"`
	AmountCents int64     `json:"amountCents"`
	EventID     string    `json:"eventId"`
}

// WalletWithdrawalRequested is emitted when an owner drains their
// wallet. The actual payout transfer happens downstream.
type WalletWithdrawalRequested struct {
	WalletID    uuid.UUID `json:"walletId"`
	OwnerID     uuid.UUID `json:"ownerId"`
	OwnerKind   string    `json:"ownerKind"`
	AmountCents int64     `json:"amountCents"`
}

// AdBudgetExhausted is emitted when click billing deactivates an ad.
type AdBudgetExhausted struct {
	AdID            uuid.UUID `json:"adId"`
	VendorID        uuid.UUID `json:"vendorId"`
	RemainingBudget int64     `json:"remainingBudgetCents"`
}

// SubscriptionProcessed is emitted per successfully billed box.
type SubscriptionProcessed struct {
	BoxID      uuid.UUID   `json:"boxId"`
	UserID     uuid.UUID   `json:"userId"`
	TotalCents int64       `json:"totalCents"`
	VendorIDs  []uuid.UUID `json:"vendorIds"`
}

// LedgerShortfall flags a forced debit that overdrew a wallet. These
// require operator follow-up.
type LedgerShortfall struct {
	WalletID     uuid.UUID `json:"walletId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	OwnerKind    string    `json:"ownerKind"`
	AmountCents  int64     `json:"amountCents"`
	BalanceCents int64     `json:"balanceCents"`
	Reference    string    `json:"reference"`
}
