package marketo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// expirySlack is shaved off every cached lifetime so we refresh slightly
// before the token actually expires.
const expirySlack = 30 * time.Second

// GetAuthToken returns a valid bearer token. The in-process copy is
// preferred, then the shared external cache, and only then is a new
// token requested from the identity endpoint. A failure leaves the
// token unset and callers must treat it as "cannot proceed".
func (m *Marketo) GetAuthToken(ctx context.Context) (string, error) {
	m.token.mu.RLock()
	if m.token.accessToken != "" && time.Now().Before(m.token.expiresAt) {
		token := m.token.accessToken
		remaining := time.Until(m.token.expiresAt)
		m.token.mu.RUnlock()
		m.logger.Debug("Using in-process access token", zap.Duration("remaining", remaining))
		return token, nil
	}
	m.token.mu.RUnlock()

	if m.cache != nil {
		token, ttl, ok, err := m.cache.Get(ctx)
		if err != nil {
			m.logger.Warn("Token cache lookup failed", zap.Error(err))
		} else if ok {
			m.storeToken(token, ttl)
			m.logger.Debug("Using access token from shared cache", zap.Duration("ttl", ttl))
			return token, nil
		}
	}

	m.logger.Info("Access token expired or not available, authenticating")
	authResp, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(authResp.ExpiresIn) * time.Second
	if ttl == 0 {
		ttl = time.Duration(m.config.AuthTokenTTL) * time.Second
	}

	m.storeToken(authResp.AccessToken, ttl)

	if m.cache != nil {
		// Last writer wins; a racing refresh just overwrites with an
		// equally valid token.
		if err := m.cache.Set(ctx, authResp.AccessToken, ttl); err != nil {
			m.logger.Warn("Failed to store access token in shared cache", zap.Error(err))
		}
	}

	m.logger.Info("Successfully authenticated and cached access token",
		zap.Duration("expires_in", ttl))

	return authResp.AccessToken, nil
}

// authenticate issues the client-credentials grant against the identity
// endpoint.
func (m *Marketo) authenticate(ctx context.Context) (*authResponse, error) {
	tokenURL := fmt.Sprintf(
		"%s/oauth/token?grant_type=client_credentials&client_id=%s&client_secret=%s",
		m.config.IdentityBaseURI,
		url.QueryEscape(m.config.ClientID),
		url.QueryEscape(m.config.ClientSecret),
	)

	resp, err := m.httpClient.Get(ctx, tokenURL, nil)
	if err != nil {
		m.logger.Error("Authentication request failed", zap.Error(err))
		return nil, &AuthError{Err: err}
	}

	if resp.StatusCode != 200 {
		m.logger.Error("Authentication failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return nil, &AuthError{Status: resp.StatusCode}
	}

	var authResp authResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		m.logger.Error("Failed to parse authentication response", zap.Error(err))
		return nil, &AuthError{Err: fmt.Errorf("failed to parse authentication response: %w", err)}
	}

	return &authResp, nil
}

func (m *Marketo) storeToken(token string, ttl time.Duration) {
	m.token.mu.Lock()
	m.token.accessToken = token
	m.token.expiresAt = time.Now().Add(ttl - expirySlack)
	m.token.mu.Unlock()
}
