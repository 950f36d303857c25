// Package auth issues and validates the JWT access/refresh token pairs the
// HTTP API authenticates with.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("token used for wrong purpose")
)

// TokenPair is what login and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 token pairs.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue mints a fresh access/refresh pair for the user.
func (tm *TokenManager) Issue(userID string) (TokenPair, error) {
	now := tm.now().UTC()
	accessExpiry := now.Add(tm.accessTTL)

	access, err := tm.sign(userID, TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := tm.sign(userID, TokenTypeRefresh, now, now.Add(tm.refreshTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (tm *TokenManager) sign(userID, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	c := claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(tm.secret)
}

// ParseAccess validates an access token and returns the user ID.
func (tm *TokenManager) ParseAccess(token string) (string, error) {
	return tm.parse(token, TokenTypeAccess)
}

// ParseRefresh validates a refresh token and returns the user ID.
func (tm *TokenManager) ParseRefresh(token string) (string, error) {
	return tm.parse(token, TokenTypeRefresh)
}

func (tm *TokenManager) parse(token, wantType string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if c.TokenType != wantType {
		return "", ErrWrongTokenUse
	}
	if c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
