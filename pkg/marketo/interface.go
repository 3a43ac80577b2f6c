package marketo

import (
	"context"
	"time"
)

// Client defines the interface for Marketo API operations
type Client interface {
	// GetAuthToken returns a valid bearer token, from cache if possible
	GetAuthToken(ctx context.Context) (string, error)

	// GetLeadByID retrieves a single lead by its Marketo id. A nil lead
	// with a nil error means the lead does not exist.
	GetLeadByID(ctx context.Context, id int) (Lead, error)

	// GetLeads retrieves leads matching filterType/filterValues,
	// optionally restricted to the given fields
	GetLeads(ctx context.Context, filterType string, filterValues []string, fields []string) ([]Lead, error)

	// UpdateLead creates or updates a single lead and returns its
	// Marketo id
	UpdateLead(ctx context.Context, lead Lead) (int, error)

	// AddLeadToList adds a lead to a static list and returns the lead id
	AddLeadToList(ctx context.Context, listID, leadID int) (int, error)
}

// TokenCache is the shared external cache the access token is mirrored in.
// Implementations key entries by TokenCacheKey. Writes are
// last-writer-wins: concurrent refreshes may race, which is harmless
// because token issuance is idempotent on the Marketo side.
type TokenCache interface {
	// Get returns the cached token and its remaining lifetime. ok is
	// false on a miss or an expired entry.
	Get(ctx context.Context) (token string, ttl time.Duration, ok bool, err error)

	// Set stores the token with the given lifetime
	Set(ctx context.Context, token string, ttl time.Duration) error
}
