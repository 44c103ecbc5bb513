package models

import (
	"encoding/json"
	"time"
)

// GatewayEvent is the durable dedupe record for payment gateway
// webhooks. The gateway's event id is the primary key, so inserting it
// in the same transaction as the ledger effects makes redelivery a
// unique violation instead of a double credit.
type GatewayEvent struct {
	EventID     string          `gorm:"column:event_id;type:text;primaryKey"`
	Type        string          `gorm:"column:type;type:text;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	ProcessedAt time.Time       `gorm:"column:processed_at;autoCreateTime"`
}
