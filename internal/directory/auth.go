package directory

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "batterypass/pkg/domain-errors"
)

// TokenMinter mints short-lived HS256 bearer tokens for directory requests.
// The directory authenticates the dashboard session, not the wallet; on-chain
// authorization is handled separately by typed-data signatures.
type TokenMinter struct {
	key     []byte
	subject string
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenMinter builds a minter for the given signing key and subject
// (normally the connected wallet address).
func NewTokenMinter(key []byte, subject string, ttl time.Duration) *TokenMinter {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &TokenMinter{key: key, subject: subject, ttl: ttl, now: time.Now}
}

// Mint returns a fresh signed token.
func (m *TokenMinter) Mint() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   m.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		Issuer:    "batterypass",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign directory token")
	}
	return token, nil
}

// VerifyToken parses and validates a token minted by Mint, returning its
// subject. Used by the dev server; the production directory does its own.
func VerifyToken(key []byte, raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid directory token")
	}
	claims := token.Claims.(*jwt.RegisteredClaims)
	return claims.Subject, nil
}
