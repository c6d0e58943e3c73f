package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// Keys verifies payer access tokens against the shared HS256 secret.
// Issue exists for tooling and tests; production tokens come from the
// identity service.
type Keys struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewKeys(cfg config.JWTConfig) (*Keys, error) {
	secret := strings.TrimSpace(cfg.Secret)
	issuer := strings.TrimSpace(cfg.Issuer)
	switch {
	case secret == "":
		return nil, errors.New("jwt secret is required")
	case issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Keys{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		now:    time.Now,
	}, nil
}

func (k *Keys) Issue(p Payer) (string, error) {
	if p.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	now := k.now().UTC()
	claims := Claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    k.issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry, then resolves the payer.
func (k *Keys) Verify(raw string) (Payer, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return k.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(k.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(k.now),
	)
	if err != nil {
		return Payer{}, err
	}
	return claims.Payer()
}
