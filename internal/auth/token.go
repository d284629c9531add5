// Package auth resolves the acting field operator from a signed token so
// every queued edit and conflict resolution carries a real identity.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator identity errors.
var (
	ErrEmptyToken      = errors.New("auth: empty token")
	ErrMissingOperator = errors.New("auth: missing operator_id")
)

// Claims are the operator claims carried by a station token.
type Claims struct {
	OperatorID  string `json:"operator_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// ParseOperatorToken validates a token and returns the operator claims.
func ParseOperatorToken(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.OperatorID == "" {
		return nil, ErrMissingOperator
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, errors.New("auth: token expired")
	}
	return claims, nil
}

// IssueOperatorToken signs a token for an operator. Stations use this when
// provisioning local accounts for offline shifts.
func IssueOperatorToken(operatorID, displayName string, secret []byte, ttl time.Duration) (string, error) {
	if operatorID == "" {
		return "", ErrMissingOperator
	}
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}

	now := time.Now().UTC()
	claims := Claims{
		OperatorID:  operatorID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type contextKey struct{}

// WithOperator stores operator claims on the context.
func WithOperator(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// OperatorFrom returns the operator claims from the context, if any.
func OperatorFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
