package models

import (
	"time"

	"github.com/google/uuid"
)

// AdTransaction is the billing record written alongside each budget
// deduction, immutable like wallet transactions.
type AdTransaction struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AdID             uuid.UUID `gorm:"column:ad_id;type:uuid;not null;index"`
	VendorID         uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index"`
	ClickID          uuid.UUID `gorm:"column:click_id;type:uuid;not null;uniqueIndex"`
	AmountCents      int64     `gorm:"column:amount_cents;not null"`
	BudgetAfterCents int64     `gorm:"column:budget_after_cents;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
