package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

// Ad is a vendor-funded promotion billed per click against a prepaid
// budget. BudgetCents only ever decreases; when it can no longer cover
// one click the ad flips to inactive.
type Ad struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID         uuid.UUID      `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductID        uuid.UUID      `gorm:"column:product_id;type:uuid;not null"`
	Title            string         `gorm:"column:title;type:text;not null"`
	ImageURL         *string        `gorm:"column:image_url;type:text"`
	CostPerClick     int64          `gorm:"column:cost_per_click_cents;not null"`
	BudgetCents      int64          `gorm:"column:budget_cents;not null"`
	TotalBudgetCents int64          `gorm:"column:total_budget_cents;not null"`
	Status           enums.AdStatus `gorm:"column:status;type:text;not null;default:'active';index"`
	Clicks           int64          `gorm:"column:clicks;not null;default:0"`
	Views            int64          `gorm:"column:views;not null;default:0"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
