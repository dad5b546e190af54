package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentWebhookEvent is the dedup ledger for gateway webhooks. EventID is the
// webhook-id header and is unique across all deliveries.
type PaymentWebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	EventID         string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PaymentOrderID  *uint          `gorm:"index" json:"payment_order_id,omitempty"`
	Payload         datatypes.JSON `json:"payload"`
	Processed       bool           `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
