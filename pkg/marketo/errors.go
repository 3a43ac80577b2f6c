package marketo

import "fmt"

// AuthError indicates the access token could not be obtained, either
// because the transport failed or the identity endpoint returned a
// non-200 status.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("marketo auth failed: %v", e.Err)
	}
	return fmt.Sprintf("marketo auth failed with status %d", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError indicates an authenticated call returned a non-200 status.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("marketo API returned HTTP %d", e.Status)
}

// APIError indicates the remote API returned an application-level error
// in a 200 response envelope.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketo API error %s: %s", e.Code, e.Message)
}

// ValidationError indicates a request was rejected locally before any
// network call was made.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListAddError indicates a list-add call returned an unexpected result
// shape.
type ListAddError struct {
	ListID int
	LeadID int
}

func (e *ListAddError) Error() string {
	return fmt.Sprintf("error adding lead %d to list %d", e.LeadID, e.ListID)
}
