package models

import (
	"time"

	"github.com/google/uuid"
)

// Vendor is a selling party. Vendors hold their own wallets and fund
// their own ad budgets.
type Vendor struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;type:text;not null"`
	Email       string    `gorm:"column:email;type:text;not null"`
	DeviceToken *string   `gorm:"column:device_token"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
