// Package fieldmap derives outgoing lead attributes from a user record
// according to a configured mapping. Three mapper kinds exist: "field"
// copies a named user attribute, "constant" emits a fixed value, and
// "computed" runs a named derivation. Unknown kinds or sources are
// rejected at parse time so a bad configuration fails at startup, not
// mid-sync.
package fieldmap

import (
	"encoding/json"
	"fmt"

	"github.com/gigaom/marketo-sync/pkg/store"
)

// Spec configures one output field.
type Spec struct {
	Kind   string      `json:"kind"`
	Source string      `json:"source,omitempty"`
	Value  interface{} `json:"value,omitempty"`
}

// Map maps output field names to their specs.
type Map map[string]Spec

// userFields are the attributes the "field" kind can copy.
var userFields = map[string]func(*store.User) interface{}{
	"email":        func(u *store.User) interface{} { return u.Email },
	"login":        func(u *store.User) interface{} { return u.Login },
	"display_name": func(u *store.User) interface{} { return u.DisplayName },
	"id":           func(u *store.User) interface{} { return u.ID },
}

// computed are the named derivations the "computed" kind can run.
var computed = map[string]func(*store.User) interface{}{
	// registered_date renders the registration time as YYYY-MM-DD
	"registered_date": func(u *store.User) interface{} {
		if u.Registered.IsZero() {
			return ""
		}
		return u.Registered.Format("2006-01-02")
	},
	// full_name prefers the display name, falling back to the login
	"full_name": func(u *store.User) interface{} {
		if u.DisplayName != "" {
			return u.DisplayName
		}
		return u.Login
	},
}

// Parse decodes and validates a raw JSON mapping. A nil or empty input
// yields an empty map.
func Parse(raw json.RawMessage) (Map, error) {
	if len(raw) == 0 {
		return Map{}, nil
	}

	var m Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid field map: %w", err)
	}

	for name, spec := range m {
		switch spec.Kind {
		case "field":
			if _, ok := userFields[spec.Source]; !ok {
				return nil, fmt.Errorf("field map %q: unknown user field %q", name, spec.Source)
			}
		case "constant":
			// any value goes
		case "computed":
			if _, ok := computed[spec.Source]; !ok {
				return nil, fmt.Errorf("field map %q: unknown computed source %q", name, spec.Source)
			}
		default:
			return nil, fmt.Errorf("field map %q: unknown kind %q", name, spec.Kind)
		}
	}

	return m, nil
}

// Apply evaluates every mapping entry against the user.
func (m Map) Apply(u *store.User) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for name, spec := range m {
		switch spec.Kind {
		case "field":
			out[name] = userFields[spec.Source](u)
		case "constant":
			out[name] = spec.Value
		case "computed":
			out[name] = computed[spec.Source](u)
		}
	}
	return out
}
