package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStore holds the bearer token used against mesh endpoints. The
// token is issued and verified server-side; this client only inspects
// the expiry claim so callers can notice a stale session before
// dispatching.
type TokenStore struct {
	mu        sync.RWMutex
	raw       string
	expiresAt time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Set replaces the held token. The expiry claim is decoded without
// signature verification; tokens that do not parse keep a zero expiry.
func (s *TokenStore) Set(token string) {
	var expiresAt time.Time

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expiresAt = exp.Time
		}
	}

	s.mu.Lock()
	s.raw = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Clear drops the held token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.raw = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// Bearer returns the raw token, empty when none is set.
func (s *TokenStore) Bearer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw
}

// Expired reports whether the held token has a known, passed expiry.
// Tokens without a readable expiry claim are never reported expired.
func (s *TokenStore) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw != "" && !s.expiresAt.IsZero() && now.After(s.expiresAt)
}
