// Package jwt reads the claims of JWT-shaped bearer tokens without
// verifying them.
//
// The gateway forwards bearer tokens to the vault backend, which is the
// only party that checks signatures. Claims read here are used for logging
// and must never drive an access decision.
package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of registered claims the gateway logs.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time // zero when the token has no exp claim

	now func() time.Time
}

// Expired reports whether the exp claim is in the past. Tokens without exp
// never expire.
func (c Claims) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().After(c.ExpiresAt)
}

// Peek parses token without checking its signature.
func Peek(token string) (Claims, error) {
	return peek(token, time.Now)
}

func peek(token string, now func() time.Time) (Claims, error) {
	parser := jwtlib.NewParser()

	var registered jwtlib.RegisteredClaims
	if _, _, err := parser.ParseUnverified(token, &registered); err != nil {
		return Claims{}, fmt.Errorf("reading JWT claims: %w", err)
	}

	c := Claims{
		Subject: registered.Subject,
		Issuer:  registered.Issuer,
		now:     now,
	}
	if registered.ExpiresAt != nil {
		c.ExpiresAt = registered.ExpiresAt.Time
	}
	return c, nil
}
