package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

// Wallet holds the spendable balance for a single owner. Ownership is a
// tagged pair so user and vendor wallets live in one table without a
// polymorphic join. One wallet per (owner_id, owner_kind).
type Wallet struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID      uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:idx_wallets_owner"`
	OwnerKind    enums.WalletOwnerKind `gorm:"column:owner_kind;type:text;not null;uniqueIndex:idx_wallets_owner"`
	BalanceCents int64                 `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
