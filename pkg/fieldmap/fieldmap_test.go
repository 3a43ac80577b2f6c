package fieldmap_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigaom/marketo-sync/pkg/fieldmap"
	"github.com/gigaom/marketo-sync/pkg/store"
)

func TestParseAndApply(t *testing.T) {
	raw := json.RawMessage(`{
		"wpLogin":   {"kind": "field", "source": "login"},
		"leadType":  {"kind": "constant", "value": "platform-user"},
		"wpname":    {"kind": "computed", "source": "full_name"},
		"signupYmd": {"kind": "computed", "source": "registered_date"}
	}`)

	m, err := fieldmap.Parse(raw)
	require.NoError(t, err)

	user := &store.User{
		ID:          7,
		Email:       "x@y.com",
		Login:       "xy",
		DisplayName: "X Y",
		Registered:  time.Date(2014, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	out := m.Apply(user)
	assert.Equal(t, "xy", out["wpLogin"])
	assert.Equal(t, "platform-user", out["leadType"])
	assert.Equal(t, "X Y", out["wpname"])
	assert.Equal(t, "2014-06-01", out["signupYmd"])
}

func TestFullNameFallsBackToLogin(t *testing.T) {
	m, err := fieldmap.Parse(json.RawMessage(`{"wpname": {"kind": "computed", "source": "full_name"}}`))
	require.NoError(t, err)

	out := m.Apply(&store.User{Login: "xy"})
	assert.Equal(t, "xy", out["wpname"])
}

func TestParseEmpty(t *testing.T) {
	m, err := fieldmap.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Apply(&store.User{}))
}

func TestParseRejectsUnknownKind(t *testing.T) {
	_, err := fieldmap.Parse(json.RawMessage(`{"f": {"kind": "lookup", "source": "email"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestParseRejectsUnknownUserField(t *testing.T) {
	_, err := fieldmap.Parse(json.RawMessage(`{"f": {"kind": "field", "source": "shoe_size"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user field")
}

func TestParseRejectsUnknownComputedSource(t *testing.T) {
	_, err := fieldmap.Parse(json.RawMessage(`{"f": {"kind": "computed", "source": "age"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown computed source")
}
