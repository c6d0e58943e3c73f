package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Payer identifies the authenticated caller. Tokens are minted by the
// identity service; the subject claim carries the user id.
type Payer struct {
	UserID uuid.UUID
	Email  string
}

// Claims is the verified JWT body.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Payer() (Payer, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return Payer{}, fmt.Errorf("token subject %q is not a user id", c.Subject)
	}
	return Payer{UserID: id, Email: c.Email}, nil
}
