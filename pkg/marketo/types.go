package marketo

import "encoding/json"

// Lead is the open attribute mapping for a Marketo lead. It always
// carries "email" unless the lead is addressed by its Marketo "id".
type Lead map[string]interface{}

// Email returns the lead's email attribute, or "" when absent.
func (l Lead) Email() string {
	s, _ := l["email"].(string)
	return s
}

// ID returns the lead's Marketo id. ok is false when the lead has no id.
// JSON decoding leaves numbers as float64, so both forms are accepted.
func (l Lead) ID() (int, bool) {
	switch v := l["id"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// authResponse is the identity endpoint's token grant response
type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// restEnvelope is the REST API response envelope; the payload is always
// nested under result.
type restEnvelope struct {
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
}

// leadResult is one entry of the result array returned by the
// createOrUpdate and list-add endpoints
type leadResult struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// updateLeadRequest is the createOrUpdate request body
type updateLeadRequest struct {
	Action      string `json:"action"`
	LookupField string `json:"lookupField"`
	Input       []Lead `json:"input"`
}
