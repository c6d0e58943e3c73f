// Package webhooks receives asynchronous gateway notifications. Every
// handler verifies the provider signature before anything is parsed.
package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/paysettle-backend/api/responses"
	internalwebhooks "github.com/angelmondragon/paysettle-backend/internal/webhooks"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/security"
	"github.com/angelmondragon/paysettle-backend/pkg/square"
)

const defaultMaxBodyBytes int64 = 1 << 20

type deliveryProcessor interface {
	Process(ctx context.Context, d internalwebhooks.Delivery) (*internalwebhooks.Result, error)
	Reject(ctx context.Context, provider enums.WebhookProvider, payload []byte, reason string)
}

// Options carries the per-provider secrets.
type Options struct {
	GenericSecret         string
	MidtransServerKey     string
	SquareSignatureKey    string
	SquareNotificationURL string
	MaxBodyBytes          int64
}

type ackResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
	Applied   bool `json:"applied,omitempty"`
}

// GenericWebhook handles POST /api/v1/webhooks/payments.
func GenericWebhook(svc deliveryProcessor, opts Options, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, ok := readBody(w, r, svc, opts, logg)
		if !ok {
			return
		}
		if !security.VerifyHex(body, opts.GenericSecret, r.Header.Get(security.WebhookSignatureHeader)) {
			svc.Reject(ctx, enums.WebhookProviderGeneric, body, "signature mismatch")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature"))
			return
		}
		delivery, err := internalwebhooks.ParseGeneric(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		process(w, r, svc, delivery, logg)
	}
}

// MidtransWebhook handles POST /api/v1/webhooks/midtrans. The signature is
// embedded in the notification body.
func MidtransWebhook(svc deliveryProcessor, opts Options, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, ok := readBody(w, r, svc, opts, logg)
		if !ok {
			return
		}
		delivery, err := internalwebhooks.ParseMidtrans(body, opts.MidtransServerKey)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeSignature {
				svc.Reject(ctx, enums.WebhookProviderMidtrans, body, typed.Message())
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		process(w, r, svc, delivery, logg)
	}
}

// SquareWebhook handles POST /api/v1/webhooks/square.
func SquareWebhook(svc deliveryProcessor, opts Options, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, ok := readBody(w, r, svc, opts, logg)
		if !ok {
			return
		}
		if !square.VerifySignature(body, opts.SquareNotificationURL, opts.SquareSignatureKey, r.Header.Get(square.SignatureHeader)) {
			svc.Reject(ctx, enums.WebhookProviderSquare, body, "signature mismatch")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid square signature"))
			return
		}
		delivery, err := internalwebhooks.ParseSquare(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		process(w, r, svc, delivery, logg)
	}
}

func readBody(w http.ResponseWriter, r *http.Request, svc deliveryProcessor, opts Options, logg *logger.Logger) ([]byte, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
		return nil, false
	}
	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
			return nil, false
		}
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
		return nil, false
	}
	return body, true
}

// process answers 2xx only once the delivery is durably handled, so the
// gateway keeps retrying anything that failed.
func process(w http.ResponseWriter, r *http.Request, svc deliveryProcessor, d internalwebhooks.Delivery, logg *logger.Logger) {
	result, err := svc.Process(r.Context(), d)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	ack := ackResponse{Success: true, Duplicate: result.Duplicate, Ignored: result.Ignored}
	if result.Outcome != nil {
		ack.Applied = result.Outcome.Applied
	}
	responses.WriteBare(w, http.StatusOK, ack)
}
