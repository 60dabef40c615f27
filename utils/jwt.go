package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenStatus is the outcome of checking a password reset token.
type TokenStatus string

const (
	TokenValid            TokenStatus = "valid"
	TokenExpired          TokenStatus = "expired"
	TokenInvalidSignature TokenStatus = "invalid_signature"
	TokenMalformed        TokenStatus = "malformed"
	TokenUnknownUser      TokenStatus = "unknown_user"
	TokenConsumed         TokenStatus = "consumed"
)

// ResetClaims carries the user id a password reset token was issued for.
type ResetClaims struct {
	UserID uint `json:"reset_password"`
	jwt.RegisteredClaims
}

// IssueResetToken signs an HS256 token for userID that expires after ttl.
func IssueResetToken(secret []byte, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseResetToken verifies signature and expiry. Claims are returned only for TokenValid.
func ParseResetToken(secret []byte, token string) (*ResetClaims, TokenStatus) {
	if token == "" {
		return nil, TokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &ResetClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, TokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, TokenInvalidSignature
	default:
		return nil, TokenMalformed
	}
	claims, ok := parsed.Claims.(*ResetClaims)
	if !ok || !parsed.Valid || claims.UserID == 0 {
		return nil, TokenMalformed
	}
	return claims, TokenValid
}

// ConsumeResetToken marks the token as used. It reports false if it was used before.
func ConsumeResetToken(kv *KVStore, claims *ResetClaims) bool {
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		if d := time.Until(claims.ExpiresAt.Time); d > 0 {
			ttl = d
		}
	}
	if claims.ID == "" {
		return false
	}
	return kv.SetNX("reset:used:"+claims.ID, "1", ttl)
}

// ResetTokenConsumed reports whether the token was already used.
func ResetTokenConsumed(kv *KVStore, claims *ResetClaims) bool {
	return claims.ID != "" && kv.Exists("reset:used:"+claims.ID)
}
