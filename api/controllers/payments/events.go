package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/api/responses"
	"github.com/angelmondragon/paysettle-backend/internal/watcher"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

type ownershipChecker interface {
	Get(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error)
}

type statusWatcher interface {
	Watch(ctx context.Context, paymentID uuid.UUID, emit func(watcher.StatusUpdate) error) (enums.PaymentStatus, error)
}

type streamEnd struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	Status    enums.PaymentStatus `json:"status"`
	Terminal  bool                `json:"terminal"`
}

// PaymentEvents streams status changes for one payment as server-sent
// events. Each change is a "status" event; the stream closes with an "end"
// event once the payment is terminal or the watch times out.
func PaymentEvents(svc ownershipChecker, w statusWatcher, logg *logger.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || w == nil {
			responses.WriteError(ctx, logg, rw, pkgerrors.New(pkgerrors.CodeInternal, "payment stream unavailable"))
			return
		}
		userID, paymentID, err := ownedPaymentFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, rw, err)
			return
		}
		if _, err := svc.Get(ctx, userID, paymentID); err != nil {
			responses.WriteError(ctx, logg, rw, err)
			return
		}
		flusher, ok := rw.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, rw, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")
		rw.Header().Set("X-Accel-Buffering", "no")
		rw.WriteHeader(http.StatusOK)
		flusher.Flush()

		emit := func(update watcher.StatusUpdate) error {
			if err := writeEvent(rw, "status", update); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		last, err := w.Watch(ctx, paymentID, emit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if logg != nil {
				logg.Error(logg.WithPaymentID(ctx, paymentID.String()), "payment stream failed", err)
			}
			return
		}
		if err := writeEvent(rw, "end", streamEnd{PaymentID: paymentID, Status: last, Terminal: last.IsTerminal()}); err == nil {
			flusher.Flush()
		}
	}
}

func writeEvent(rw http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(rw, "event: %s\ndata: %s\n\n", name, data)
	return err
}
