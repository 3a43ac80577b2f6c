package marketo_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/pkg/marketo"
)

// newTestClient wraps handler in a server that also answers the token
// grant, so lead operations can authenticate against the same endpoint.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*marketo.Marketo, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			fmt.Fprint(w, `{"access_token":"test-token","expires_in":3599}`)
			return
		}
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client := marketo.NewWithLogger(testConfig(ts.URL, ts.URL), memoryTokenCache(), zap.NewNop())
	return client, ts
}

func TestUpdateLeadMissingFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an invalid lead")
	})

	_, err := client.UpdateLead(context.Background(), marketo.Lead{})
	var valErr *marketo.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "missing_field", valErr.Code)
}

func TestUpdateLeadLooksUpByEmail(t *testing.T) {
	var body map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/leads.json", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		fmt.Fprint(w, `{"requestId":"r1","success":true,"result":[{"id":42,"status":"created"}]}`)
	})

	id, err := client.UpdateLead(context.Background(), marketo.Lead{"email": "x@y.com"})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.Equal(t, "createOrUpdate", body["action"])
	assert.Equal(t, "email", body["lookupField"])
}

func TestUpdateLeadLooksUpByID(t *testing.T) {
	var body map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		fmt.Fprint(w, `{"result":[{"id":42,"status":"updated"}]}`)
	})

	id, err := client.UpdateLead(context.Background(), marketo.Lead{"id": 42, "email": "x@y.com"})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.Equal(t, "id", body["lookupField"])
}

func TestUpdateLeadAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[{"status":"skipped","errors":[{"code":"1007","message":"multiple leads match"}]}]}`)
	})

	_, err := client.UpdateLead(context.Background(), marketo.Lead{"email": "x@y.com"})
	var apiErr *marketo.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "1007", apiErr.Code)
	assert.Equal(t, "multiple leads match", apiErr.Message)
}

func TestUpdateLeadMissingIDInResult(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[{"status":"skipped"}]}`)
	})

	_, err := client.UpdateLead(context.Background(), marketo.Lead{"email": "x@y.com"})
	var apiErr *marketo.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "skipped", apiErr.Code)
	assert.Equal(t, "createOrUpdate failed", apiErr.Message)
}

func TestUpdateLeadHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.UpdateLead(context.Background(), marketo.Lead{"email": "x@y.com"})
	var httpErr *marketo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
}

func TestUpdateLeadAuthFailurePropagates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		t.Error("leads endpoint must not be called without a token")
	}))
	defer ts.Close()

	client := marketo.NewWithLogger(testConfig(ts.URL, ts.URL), memoryTokenCache(), zap.NewNop())

	_, err := client.UpdateLead(context.Background(), marketo.Lead{"email": "x@y.com"})
	var authErr *marketo.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestGetLeadsFilterEncoding(t *testing.T) {
	var rawQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"result":[{"id":1,"email":"a@b.com"},{"id":2,"email":"c@d.com"}]}`)
	})

	leads, err := client.GetLeads(context.Background(), "Email", []string{"a@b.com", "c@d.com"}, []string{"email", "wpid"})
	require.NoError(t, err)
	require.Len(t, leads, 2)

	// Each value is encoded individually; the joining commas stay bare.
	assert.Contains(t, rawQuery, "filterType=Email")
	assert.Contains(t, rawQuery, "filterValues=a%40b.com,c%40d.com")
	assert.Contains(t, rawQuery, "fields=email,wpid")
}

func TestGetLeadsEmptyResult(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[]}`)
	})

	leads, err := client.GetLeads(context.Background(), "Email", []string{"nobody@x.com"}, nil)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestGetLeadByID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/lead/85902141.json", r.URL.Path)
		fmt.Fprint(w, `{"result":[{"id":85902141,"email":"will@example.com"}]}`)
	})

	lead, err := client.GetLeadByID(context.Background(), 85902141)
	require.NoError(t, err)
	require.NotNil(t, lead)

	id, ok := lead.ID()
	require.True(t, ok)
	assert.Equal(t, 85902141, id)
	assert.Equal(t, "will@example.com", lead.Email())
}

func TestGetLeadByIDNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[]}`)
	})

	lead, err := client.GetLeadByID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestAddLeadToList(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/lists/1138/leads.json", r.URL.Path)

		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), `"id":42`))

		fmt.Fprint(w, `{"result":[{"id":42,"status":"added"}]}`)
	})

	id, err := client.AddLeadToList(context.Background(), 1138, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestAddLeadToListUnexpectedResult(t *testing.T) {
	cases := map[string]string{
		"wrong status": `{"result":[{"id":42,"status":"skipped"}]}`,
		"wrong id":     `{"result":[{"id":7,"status":"added"}]}`,
		"empty result": `{"result":[]}`,
	}

	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, response)
			})

			_, err := client.AddLeadToList(context.Background(), 1138, 42)
			var listErr *marketo.ListAddError
			require.ErrorAs(t, err, &listErr)
			assert.Equal(t, 1138, listErr.ListID)
			assert.Equal(t, 42, listErr.LeadID)
		})
	}
}
