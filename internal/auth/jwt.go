// Package auth provides JWT session token generation and validation.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is a JWT?
// ────────────────────────────────────────────────────────────────────
// A JSON Web Token (JWT) is a compact, self-contained way to represent
// claims between two parties. It has three Base64-encoded sections:
//
//	HEADER.PAYLOAD.SIGNATURE
//
// The PAYLOAD carries our custom claims (user_id, role, branch_id) plus
// standard ones (expiry, issued-at). The SIGNATURE is an HMAC-SHA256 of
// HEADER+PAYLOAD keyed with a secret only the server knows, so the server
// can trust the role in a token without a database lookup per request.
//
// Note that QR check-in codes are NOT JWTs: they are short-lived plain
// JSON payloads (see package qr). Only login sessions are signed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims embedded in each session token.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	BranchID *int64 `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenDuration is how long a session token stays valid: one working
// shift plus margin, so front-desk staff log in once per day.
const TokenDuration = 12 * time.Hour

// GenerateToken creates a signed JWT for the given user.
func GenerateToken(userID, role string, branchID *int64, secret string) (string, error) {
	now := time.Now()
	return GenerateTokenWithExpiry(userID, role, branchID, secret, now, now.Add(TokenDuration))
}

// GenerateTokenWithExpiry creates a session token with explicit iat/exp.
// Tests use it to build already-expired tokens.
func GenerateTokenWithExpiry(userID, role string, branchID *int64, secret string, iat, exp time.Time) (string, error) {
	claims := Claims{
		UserID:   userID,
		Role:     role,
		BranchID: branchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a JWT string and returns the embedded claims.
// It rejects tokens with:
//   - wrong or missing signature
//   - expired tokens (ExpiresAt in the past)
//   - unexpected signing algorithm (algorithm confusion attack prevention)
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
