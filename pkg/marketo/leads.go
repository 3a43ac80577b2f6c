package marketo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	httpclient "github.com/gigaom/marketo-sync/pkg/http"
	"go.uber.org/zap"
)

// restRequest performs an authenticated call and unwraps the response
// envelope's result field. Transport errors are propagated unmodified
// so callers can tell them apart from API errors.
func (m *Marketo) restRequest(ctx context.Context, method, requestURL string, body interface{}) (json.RawMessage, error) {
	token, err := m.GetAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}

	var resp *httpclient.Response
	if method == http.MethodPost {
		headers["Content-Type"] = "application/json"
		resp, err = m.httpClient.Post(ctx, requestURL, headers, body)
	} else {
		resp, err = m.httpClient.Get(ctx, requestURL, headers)
	}
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		m.logger.Error("Marketo API returned non-200 status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("url", requestURL))
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Body}
	}

	var envelope restEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	return envelope.Result, nil
}

// GetLeadByID retrieves a single lead by its Marketo id. Each id maps to
// at most one lead, so the first result entry is returned. A nil lead
// with a nil error means no lead exists for the id.
func (m *Marketo) GetLeadByID(ctx context.Context, id int) (Lead, error) {
	requestURL := fmt.Sprintf("%s/rest/v1/lead/%d.json", m.config.RestBaseURI, id)

	result, err := m.restRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	var leads []Lead
	if len(result) > 0 {
		if err := json.Unmarshal(result, &leads); err != nil {
			return nil, fmt.Errorf("failed to parse lead result: %w", err)
		}
	}

	if len(leads) == 0 {
		return nil, nil
	}

	return leads[0], nil
}

// GetLeads retrieves leads filtered by filterType/filterValues. Filter
// values are URL-encoded individually and then comma-joined, as are the
// optional response fields.
func (m *Marketo) GetLeads(ctx context.Context, filterType string, filterValues []string, fields []string) ([]Lead, error) {
	requestURL := fmt.Sprintf(
		"%s/rest/v1/leads.json?filterType=%s&filterValues=%s",
		m.config.RestBaseURI,
		url.QueryEscape(filterType),
		joinEncoded(filterValues),
	)

	if len(fields) > 0 {
		requestURL += "&fields=" + joinEncoded(fields)
	}

	result, err := m.restRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	var leads []Lead
	if len(result) > 0 {
		if err := json.Unmarshal(result, &leads); err != nil {
			return nil, fmt.Errorf("failed to parse leads result: %w", err)
		}
	}

	return leads, nil
}

// UpdateLead creates or updates a single lead. The lookup field is the
// Marketo id when the lead carries one, otherwise the email address;
// once a lead's id is known, addressing by id keeps repeat syncs from
// creating duplicates. Returns the Marketo id of the created or matched
// lead.
func (m *Marketo) UpdateLead(ctx context.Context, lead Lead) (int, error) {
	_, hasID := lead.ID()
	if lead.Email() == "" && !hasID {
		return 0, &ValidationError{Code: "missing_field", Message: `missing both "email" and "id" fields`}
	}

	lookupField := "email"
	if hasID {
		lookupField = "id"
	}

	requestURL := m.config.RestBaseURI + "/rest/v1/leads.json"
	body := updateLeadRequest{
		Action:      "createOrUpdate",
		LookupField: lookupField,
		Input:       []Lead{lead},
	}

	result, err := m.restRequest(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return 0, err
	}

	var results []leadResult
	if err := json.Unmarshal(result, &results); err != nil {
		return 0, fmt.Errorf("failed to parse createOrUpdate result: %w", err)
	}

	if len(results) == 0 {
		return 0, &APIError{Code: "empty_result", Message: "createOrUpdate failed"}
	}

	if len(results[0].Errors) > 0 {
		return 0, &APIError{
			Code:    results[0].Errors[0].Code,
			Message: results[0].Errors[0].Message,
		}
	}

	// something went wrong
	if results[0].ID == 0 {
		return 0, &APIError{Code: results[0].Status, Message: "createOrUpdate failed"}
	}

	m.logger.Debug("Lead created or updated",
		zap.Int("marketo_id", results[0].ID),
		zap.String("lookup_field", lookupField),
		zap.String("status", results[0].Status))

	return results[0].ID, nil
}

// AddLeadToList adds a lead to a static list. The call succeeds only
// when exactly one result comes back with the matching id and status
// "added".
func (m *Marketo) AddLeadToList(ctx context.Context, listID, leadID int) (int, error) {
	requestURL := fmt.Sprintf("%s/rest/v1/lists/%d/leads.json", m.config.RestBaseURI, listID)

	body := map[string]interface{}{
		"input": []map[string]int{{"id": leadID}},
	}

	result, err := m.restRequest(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return 0, err
	}

	var results []leadResult
	if err := json.Unmarshal(result, &results); err != nil {
		return 0, fmt.Errorf("failed to parse list add result: %w", err)
	}

	if len(results) != 1 || results[0].ID != leadID || results[0].Status != "added" {
		return 0, &ListAddError{ListID: listID, LeadID: leadID}
	}

	return results[0].ID, nil
}

// joinEncoded URL-encodes each value individually and joins them with
// commas; the commas themselves must stay unencoded for Marketo to
// split the list.
func joinEncoded(values []string) string {
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = url.QueryEscape(v)
	}
	return strings.Join(encoded, ",")
}
