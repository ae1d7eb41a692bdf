package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

// claims is the JWT payload shape for both access and refresh tokens,
// distinguished by Type.
type claims struct {
	jwt.RegisteredClaims
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
}

// TokenIssuer mints and verifies access/refresh JWTs, and tracks the
// revocation state SPEC_FULL.md §4.9 requires: a blacklist of revoked
// access tokens and a valid-set of live refresh tokens.
type TokenIssuer struct {
	secret           []byte
	accessTTL        time.Duration
	refreshTTL       time.Duration
	clock            clock.Clock

	mu               sync.Mutex
	revokedAccess    map[string]bool // jti
	validRefresh     map[string]string // jti -> user_id
}

func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration, c clock.Clock) *TokenIssuer {
	return &TokenIssuer{
		secret:        secret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         c,
		revokedAccess: make(map[string]bool),
		validRefresh:  make(map[string]string),
	}
}

// Issue mints a fresh access/refresh pair for userID.
func (t *TokenIssuer) Issue(userID string) (TokenPair, error) {
	now := t.clock.Now()

	accessJTI := randomJTI()
	access := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        accessJTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		Type: tokenTypeAccess,
	}
	accessTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(t.secret)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "sign access token", err)
	}

	refreshJTI := randomJTI()
	refresh := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
		Type:   tokenTypeRefresh,
		UserID: userID,
	}
	refreshTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(t.secret)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "sign refresh token", err)
	}

	t.mu.Lock()
	t.validRefresh[refreshJTI] = userID
	t.mu.Unlock()

	return TokenPair{AccessToken: accessTok, RefreshToken: refreshTok}, nil
}

// VerifyAccess checks signature, type=access, and the revocation blacklist,
// returning the bound subject (user_id) on success.
func (t *TokenIssuer) VerifyAccess(tokenString string) (string, error) {
	c, err := t.parse(tokenString)
	if err != nil {
		return "", err
	}
	if c.Type != tokenTypeAccess {
		return "", apperr.New(apperr.Unauthorized, "not an access token")
	}
	t.mu.Lock()
	revoked := t.revokedAccess[c.ID]
	t.mu.Unlock()
	if revoked {
		return "", apperr.New(apperr.Unauthorized, "access token has been revoked")
	}
	return c.Subject, nil
}

// RefreshAccessToken accepts refresh only if its jti is in the valid set
// and its bound user_id matches; mints a new pair and invalidates the old
// refresh token (single use).
func (t *TokenIssuer) RefreshAccessToken(refreshTokenString string) (TokenPair, error) {
	c, err := t.parse(refreshTokenString)
	if err != nil {
		return TokenPair{}, err
	}
	if c.Type != tokenTypeRefresh {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "not a refresh token")
	}

	t.mu.Lock()
	boundUser, ok := t.validRefresh[c.ID]
	t.mu.Unlock()
	if !ok || boundUser != c.UserID {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "refresh token is not valid")
	}

	t.mu.Lock()
	delete(t.validRefresh, c.ID)
	t.mu.Unlock()

	return t.Issue(c.UserID)
}

// RevokeToken adds an access token to the blacklist, or removes a refresh
// token from the valid set.
func (t *TokenIssuer) RevokeToken(tokenString string) error {
	c, err := t.parse(tokenString)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch c.Type {
	case tokenTypeAccess:
		t.revokedAccess[c.ID] = true
	case tokenTypeRefresh:
		delete(t.validRefresh, c.ID)
	}
	return nil
}

func (t *TokenIssuer) parse(tokenString string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Unauthorized, "unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "invalid token", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	return c, nil
}

func randomJTI() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
