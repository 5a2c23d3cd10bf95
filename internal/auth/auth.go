// Package auth validates bearer tokens for the read and sync API.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
	// Athlete, when set, rejects tokens issued for any other athlete.
	Athlete string
}

// Claims is the verified identity behind a request.
type Claims struct {
	Subject string
	// Athlete is the athlete_id claim, or the subject when the token has none.
	Athlete   string
	Scopes    []Scope
	ExpiresAt time.Time
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// ErrWrongAthlete is returned for a valid token issued to another athlete.
var ErrWrongAthlete = errors.New("token belongs to another athlete")

type tokenClaims struct {
	jwt.RegisteredClaims
	AthleteID string    `json:"athlete_id,omitempty"`
	Scopes    scopeList `json:"scopes,omitempty"`
}

// Parse validates an HS256 JWT carrying a subject and an expiry.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	var tc tokenClaims
	if _, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{
		Subject:   tc.Subject,
		Athlete:   tc.AthleteID,
		Scopes:    tc.Scopes,
		ExpiresAt: tc.ExpiresAt.Time,
	}
	if claims.Athlete == "" {
		claims.Athlete = tc.Subject
	}
	if cfg.Athlete != "" && claims.Athlete != cfg.Athlete {
		return nil, fmt.Errorf("%w: %s", ErrWrongAthlete, claims.Athlete)
	}
	return claims, nil
}

// HasScope reports whether the claims grant scope, directly or through
// ScopeAdmin.
func (c *Claims) HasScope(scope Scope) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Scopes, scope) || slices.Contains(c.Scopes, ScopeAdmin)
}
