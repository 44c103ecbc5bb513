package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a vendor catalog entry referenced by orders, ads and
// subscription items.
type Product struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;type:text;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	IsBoosted  bool      `gorm:"column:is_boosted;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
