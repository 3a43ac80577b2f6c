// Package marketo provides a client for the Marketo REST API.
//
// The client owns OAuth2 client-credentials token acquisition with
// cache-backed reuse and exposes the lead operations the sync service
// needs: lookup by id or filter, createOrUpdate, and static-list adds.
// Every response payload arrives nested under the API's "result"
// envelope field, which the generic request primitive unwraps.
package marketo

import (
	"sync"
	"time"

	"github.com/gigaom/marketo-sync/pkg/config"
	httpclient "github.com/gigaom/marketo-sync/pkg/http"
	"go.uber.org/zap"
)

// TokenCacheKey is the fixed key under which the access token is mirrored
// in the shared external cache.
const TokenCacheKey = "go_marketo:auth_token"

// Marketo is the main client for interacting with the Marketo REST API
type Marketo struct {
	config     *config.Config
	httpClient *httpclient.Client
	cache      TokenCache
	token      *tokenState
	logger     *zap.Logger
}

// tokenState holds the in-process copy of the access token with
// thread-safe access. The external cache remains the source of truth
// across processes; the local expiry mirrors the cache TTL so a
// long-lived process does not hold a stale token.
type tokenState struct {
	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

// New creates a new Marketo client with the default production logger
func New(cfg *config.Config, cache TokenCache) *Marketo {
	logger, _ := zap.NewProduction()
	return NewWithLogger(cfg, cache, logger)
}

// NewWithLogger creates a new Marketo client with a custom logger
func NewWithLogger(cfg *config.Config, cache TokenCache, logger *zap.Logger) *Marketo {
	return &Marketo{
		config:     cfg,
		httpClient: httpclient.NewClientWithLogger(logger),
		cache:      cache,
		token:      &tokenState{},
		logger:     logger,
	}
}
