package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

// SubscriptionBox is a recurring bundle billed on a fixed cadence.
// One user debit covers the box; each item's vendor is credited its
// share in the same transaction.
type SubscriptionBox struct {
	ID               uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Name             string                      `gorm:"column:name;type:text;not null"`
	Frequency        enums.SubscriptionFrequency `gorm:"column:frequency;type:text;not null"`
	PaymentMethod    enums.PaymentMethod         `gorm:"column:payment_method;type:text;not null"`
	NextDeliveryDate time.Time                   `gorm:"column:next_delivery_date;not null;index"`
	IsActive         bool                        `gorm:"column:is_active;not null;default:true"`
	Items            []SubscriptionItem          `gorm:"foreignKey:BoxID"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// SubscriptionItem is one product line in a box. PriceCents is locked
// in at subscription time, not read from the product at billing time.
type SubscriptionItem struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BoxID      uuid.UUID `gorm:"column:box_id;type:uuid;not null;index"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Quantity   int       `gorm:"column:quantity;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
}
