package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

// WalletTransaction is the immutable ledger entry paired with every
// balance change. Rows are never updated or deleted.
type WalletTransaction struct {
	ID                uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID          uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;index"`
	Kind              enums.WalletTransactionKind `gorm:"column:kind;type:text;not null"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                       `gorm:"column:balance_after_cents;not null"`
	Description       string                      `gorm:"column:description;type:text;not null"`
	Reference         *string                     `gorm:"column:reference;type:text;index"`
	Metadata          json.RawMessage             `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
