package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// PaymentWebhookEvent is the audit row for one inbound webhook delivery.
// EventKey is unique per provider so replays are detectable in storage too.
type PaymentWebhookEvent struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider        enums.WebhookProvider `gorm:"column:provider;not null"`
	EventKey        string                `gorm:"column:event_key;not null"`
	EventType       string                `gorm:"column:event_type;not null"`
	PaymentID       *uuid.UUID            `gorm:"column:payment_id;type:uuid"`
	Payload         json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	SignatureValid  bool                  `gorm:"column:signature_valid;not null;default:false"`
	ProcessedAt     *time.Time            `gorm:"column:processed_at"`
	ProcessingError *string               `gorm:"column:processing_error"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *PaymentWebhookEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
