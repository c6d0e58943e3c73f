package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/auth"
)

type payerKey struct{}

// WithPayer binds the authenticated caller to ctx.
func WithPayer(ctx context.Context, p auth.Payer) context.Context {
	return context.WithValue(ctx, payerKey{}, p)
}

func PayerFromContext(ctx context.Context) (auth.Payer, bool) {
	if ctx == nil {
		return auth.Payer{}, false
	}
	p, ok := ctx.Value(payerKey{}).(auth.Payer)
	return p, ok
}

// UserIDFromContext returns uuid.Nil for anonymous requests.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, _ := PayerFromContext(ctx)
	return p.UserID
}
