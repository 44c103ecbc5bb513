package models

import (
	"time"

	"github.com/google/uuid"
)

// AdClick records one billed click. The ID is supplied by the caller
// so redelivered click reports collide on the primary key instead of
// billing twice.
type AdClick struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AdID      uuid.UUID  `gorm:"column:ad_id;type:uuid;not null;index"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid"`
	CostCents int64      `gorm:"column:cost_cents;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
