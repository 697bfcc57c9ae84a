package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccountClaims are the JWT claims of a wallet session token.
type AccountClaims struct {
	jwt.RegisteredClaims
	Chain string `json:"chain,omitempty"` // e.g. "fhenix-helium"
}

// Account returns the wallet address carried in the subject.
func (c *AccountClaims) Account() string { return c.Subject }

// AccountTokens issues and verifies HS256 wallet session tokens.
type AccountTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAccountTokens creates an AccountTokens.
//
//	secret: shared HMAC key with the wallet gateway; must not be empty.
//	issuer: expected "iss" claim; empty disables the issuer check.
//	ttl: lifetime of issued tokens (default: 12 hours).
func NewAccountTokens(secret []byte, issuer string, ttl time.Duration) (*AccountTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("account tokens: secret is required")
	}
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &AccountTokens{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Issue signs a session token for the wallet address.
func (a *AccountTokens) Issue(address, chain string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("issue account token: address is required")
	}
	now := time.Now().UTC()
	claims := AccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.New().String(),
		},
		Chain: chain,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign account token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (a *AccountTokens) Verify(tokenStr string) (*AccountClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &AccountClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("verify account token: %w", err)
	}
	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid account token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("account token has no subject")
	}
	return claims, nil
}
