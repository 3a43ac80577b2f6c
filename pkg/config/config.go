package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the process-wide configuration for the Marketo sync service.
// All values are resolved once at load time and treated as immutable.
type Config struct {
	ClientID        string
	ClientSecret    string
	IdentityBaseURI string
	RestBaseURI     string

	// AuthTokenTTL is the fallback token lifetime in seconds, used when the
	// identity endpoint omits expires_in from its response.
	AuthTokenTTL int

	WebhookSecret string

	// ListID is the Marketo static list newly synced leads are added to.
	// Zero disables the list-add step.
	ListID int

	// FieldMap is the raw JSON field-mapping configuration, parsed by the
	// fieldmap package.
	FieldMap json.RawMessage

	ListenAddr string
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:        os.Getenv("MARKETO_CLIENT_ID"),
		ClientSecret:    os.Getenv("MARKETO_CLIENT_SECRET"),
		IdentityBaseURI: os.Getenv("MARKETO_IDENTITY_BASE_URI"),
		RestBaseURI:     os.Getenv("MARKETO_REST_BASE_URI"),
		AuthTokenTTL:    3599,
		WebhookSecret:   os.Getenv("MARKETO_WEBHOOK_SECRET"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
	}

	if v := os.Getenv("MARKETO_AUTH_TOKEN_TTL"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKETO_AUTH_TOKEN_TTL: %w", err)
		}
		cfg.AuthTokenTTL = ttl
	}

	if v := os.Getenv("MARKETO_LIST_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKETO_LIST_ID: %w", err)
		}
		cfg.ListID = id
	}

	if v := os.Getenv("MARKETO_FIELD_MAP"); v != "" {
		cfg.FieldMap = json.RawMessage(v)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8380"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("MARKETO_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("MARKETO_CLIENT_SECRET is required")
	}
	if c.IdentityBaseURI == "" {
		return fmt.Errorf("MARKETO_IDENTITY_BASE_URI is required")
	}
	if c.RestBaseURI == "" {
		return fmt.Errorf("MARKETO_REST_BASE_URI is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("MARKETO_WEBHOOK_SECRET is required")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("MARKETO_AUTH_TOKEN_TTL must be positive")
	}
	// ListID and FieldMap are optional, so we don't validate them
	return nil
}
