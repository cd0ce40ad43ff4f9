// Package auth issues and checks the bearer tokens that carry a caller's
// identity and role into the grading engine.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"univ_erp/backend/internal/shared"
)

const issuer = "univ-erp-grading"

// ErrNoSecret is returned when no signing secret is configured
var ErrNoSecret = errors.New("token signing secret not configured")

// CustomClaims for JWT
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 token for the caller
func GenerateToken(secret string, caller shared.Caller, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, ErrNoSecret
	}
	if caller.UserID == "" {
		return "", time.Time{}, shared.NewValidationError("user_id", "user id is required")
	}

	now := time.Now()
	expirationTime := now.Add(ttl)
	claims := CustomClaims{
		UserID: caller.UserID,
		Role:   shared.NormalizeRole(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        shared.GenerateID("jti"),
			Subject:   caller.UserID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	return tokenString, expirationTime, err
}

// ParseToken validates the signature and expiry and returns the caller
func ParseToken(secret, tokenString string) (shared.Caller, error) {
	if secret == "" {
		return shared.Caller{}, ErrNoSecret
	}

	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return shared.Caller{}, err
	}
	if claims.UserID == "" {
		return shared.Caller{}, errors.New("token has no user id")
	}

	return shared.Caller{UserID: claims.UserID, Role: shared.NormalizeRole(claims.Role)}, nil
}
