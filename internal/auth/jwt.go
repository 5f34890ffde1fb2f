package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer  = "concerts-bot"
	subject = "admin-api"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or issuer checks
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the Telegram user an admin token was issued to
type Claims struct {
	TelegramUserID int64 `json:"telegram_user_id"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 admin tokens
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager with the given secret
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// GenerateToken signs a token for the Telegram user valid for duration
func (j *JWTManager) GenerateToken(telegramUserID int64, duration time.Duration) (string, error) {
	if len(j.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}

	now := j.now()
	claims := &Claims{
		TelegramUserID: telegramUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a token and returns its claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
