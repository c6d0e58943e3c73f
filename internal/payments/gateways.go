package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/midtrans"
	"github.com/angelmondragon/paysettle-backend/pkg/square"
)

// GatewayChargeRequest is what the gateway provider hands to a driver.
type GatewayChargeRequest struct {
	PaymentID    uuid.UUID
	Amount       decimal.Decimal
	Description  string
	PayerEmail   string
	PayerName    string
	Method       enums.PaymentMethod
	CardSourceID string
	Metadata     map[string]string
}

// GatewayCharge is the driver's answer for an accepted charge.
type GatewayCharge struct {
	ExternalTransactionID string
	Payload               string
	PaymentURL            string
	ReceiptURL            string
}

// GatewayClient is implemented by each delegated payment processor.
type GatewayClient interface {
	Driver() string
	Charge(ctx context.Context, req GatewayChargeRequest) (*GatewayCharge, error)
}

// amountChecker is implemented by drivers that cannot carry every amount the
// intent model allows. It runs before the intent is persisted.
type amountChecker interface {
	CheckAmount(amount decimal.Decimal) error
}

type snapClient interface {
	CreateTransaction(ctx context.Context, params midtrans.SnapParams) (*midtrans.SnapResult, error)
}

// MidtransGateway opens Snap checkout sessions keyed by the payment id.
type MidtransGateway struct {
	client snapClient
}

func NewMidtransGateway(client snapClient) *MidtransGateway {
	return &MidtransGateway{client: client}
}

func (g *MidtransGateway) Driver() string { return config.GatewayDriverMidtrans }

// CheckAmount refuses amounts Snap would have to round.
func (g *MidtransGateway) CheckAmount(amount decimal.Decimal) error {
	_, err := midtrans.GrossAmount(amount)
	return err
}

func (g *MidtransGateway) Charge(ctx context.Context, req GatewayChargeRequest) (*GatewayCharge, error) {
	res, err := g.client.CreateTransaction(ctx, midtrans.SnapParams{
		OrderID:      req.PaymentID.String(),
		Amount:       req.Amount,
		Description:  req.Description,
		PayerName:    req.PayerName,
		PayerEmail:   req.PayerEmail,
		PaymentType:  req.Metadata["payment_type"],
		ReferenceID:  req.Metadata["reference_id"],
		UserID:       req.Metadata["user_id"],
		CardPayments: req.Method == enums.PaymentMethodCard,
	})
	if err != nil {
		return nil, err
	}
	return &GatewayCharge{
		ExternalTransactionID: req.PaymentID.String(),
		Payload:               res.Token,
		PaymentURL:            res.RedirectURL,
	}, nil
}

type squareCharger interface {
	Charge(ctx context.Context, params square.ChargeParams) (*square.Payment, error)
}

// SquareGateway charges a tokenized card source. The payment id rides in
// reference_id so payment.updated notifications correlate back to the intent.
type SquareGateway struct {
	client squareCharger
}

func NewSquareGateway(client squareCharger) *SquareGateway {
	return &SquareGateway{client: client}
}

func (g *SquareGateway) Driver() string { return config.GatewayDriverSquare }

func (g *SquareGateway) Charge(ctx context.Context, req GatewayChargeRequest) (*GatewayCharge, error) {
	if strings.TrimSpace(req.CardSourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card_source_id is required for card payments")
	}
	payment, err := g.client.Charge(ctx, square.ChargeParams{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		SourceID:  req.CardSourceID,
		Note:      req.Description,
	})
	if err != nil {
		return nil, err
	}
	if payment.Declined() {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("square payment %s", strings.ToLower(payment.Status)))
	}
	return &GatewayCharge{
		ExternalTransactionID: payment.ID,
		Payload:               payment.ID,
		ReceiptURL:            payment.ReceiptURL,
	}, nil
}
