package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// SettlementLedgerEvent records an immutable money movement applied by settlement.
// (payment_id, type) is unique so a replayed branch cannot book twice.
type SettlementLedgerEvent struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID      uuid.UUID             `gorm:"column:payment_id;type:uuid;not null"`
	PaymentType    enums.PaymentType     `gorm:"column:payment_type;not null"`
	Type           enums.LedgerEventType `gorm:"column:type;not null"`
	UserID         uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	ProfessionalID *uuid.UUID            `gorm:"column:professional_id;type:uuid"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata       json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementLedgerEvent) TableName() string { return "settlement_ledger_events" }

func (e *SettlementLedgerEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
