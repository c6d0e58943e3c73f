package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Service defines operations that record settlement money events.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.SettlementLedgerEvent, bool, error)
	HasEvent(ctx context.Context, paymentID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.SettlementLedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	PaymentID      uuid.UUID             `json:"payment_id"`
	PaymentType    enums.PaymentType     `json:"payment_type"`
	UserID         uuid.UUID             `json:"user_id"`
	ProfessionalID *uuid.UUID            `json:"professional_id,omitempty"`
	Type           enums.LedgerEventType `json:"type"`
	Amount         decimal.Decimal       `json:"amount"`
	Metadata       json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

// RecordEvent books the event once per (payment, type). A replay returns
// created=false and no error.
func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.SettlementLedgerEvent, bool, error) {
	if input.PaymentID == uuid.Nil {
		return nil, false, fmt.Errorf("payment id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, false, fmt.Errorf("user id is required")
	}
	if !input.PaymentType.IsValid() {
		return nil, false, fmt.Errorf("invalid payment type %q", input.PaymentType)
	}
	if !input.Type.IsValid() {
		return nil, false, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.Amount.IsNegative() {
		return nil, false, fmt.Errorf("ledger amount must not be negative")
	}

	event := &models.SettlementLedgerEvent{
		PaymentID:      input.PaymentID,
		PaymentType:    input.PaymentType,
		Type:           input.Type,
		UserID:         input.UserID,
		ProfessionalID: input.ProfessionalID,
		Amount:         input.Amount,
		Metadata:       input.Metadata,
	}

	created, err := s.repo.Append(ctx, event)
	if err != nil {
		return nil, false, err
	}
	return event, created, nil
}

func (s *service) HasEvent(ctx context.Context, paymentID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if paymentID == uuid.Nil {
		return false, fmt.Errorf("payment id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.Exists(ctx, paymentID, eventType)
}

func (s *service) ListForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.SettlementLedgerEvent, error) {
	if paymentID == uuid.Nil {
		return nil, fmt.Errorf("payment id is required")
	}
	return s.repo.ForPayment(ctx, paymentID)
}
