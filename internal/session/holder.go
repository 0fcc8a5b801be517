// Package session holds operator credentials and the per-operator workflow
// instances built on them.
package session

import (
	"errors"
	"sync"

	"furnace-optimizer/backend/pkg/models"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Token when nothing valid is held.
var ErrNoToken = errors.New("no valid token held")

// TokenHolder is a concurrency-safe holder for one bearer token. An expired
// token reads as absent.
type TokenHolder struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenHolder creates a holder, optionally seeded with a token.
func NewTokenHolder(token *oauth2.Token) *TokenHolder {
	return &TokenHolder{token: token}
}

// NewStaticHolder creates a holder for a token with no local expiry, as used
// for configured service-account tokens.
func NewStaticHolder(accessToken string) *TokenHolder {
	if accessToken == "" {
		return &TokenHolder{}
	}
	return &TokenHolder{token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}}
}

// Set replaces the held token.
func (h *TokenHolder) Set(token *oauth2.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// CurrentToken returns the credential if one is held and not expired.
func (h *TokenHolder) CurrentToken() (models.Credential, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.token.Valid() {
		return "", false
	}
	return models.Credential(h.token.AccessToken), true
}

// Invalidate discards the held token.
func (h *TokenHolder) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = nil
}

// Token implements oauth2.TokenSource.
func (h *TokenHolder) Token() (*oauth2.Token, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.token.Valid() {
		return nil, ErrNoToken
	}
	t := *h.token
	return &t, nil
}
