package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransport marks failures where no HTTP response was received
var ErrTransport = errors.New("api unreachable")

// ErrNotAuthenticated is returned by operations that need a current user
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response of the remote API
type APIError struct {
	StatusCode int
	Messages   []string
	// MessageList is set when the body carried an array of messages,
	// which the API uses for validation failures.
	MessageList bool
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var list []string
		var single string
		switch {
		case json.Unmarshal(payload.Message, &list) == nil && list != nil:
			apiErr.Messages = list
			apiErr.MessageList = true
		case json.Unmarshal(payload.Message, &single) == nil && single != "":
			apiErr.Messages = []string{single}
		case payload.Error != "":
			apiErr.Messages = []string{payload.Error}
		}
	}

	if len(apiErr.Messages) == 0 {
		apiErr.Messages = []string{http.StatusText(status)}
	}
	return apiErr
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// Message joins the server messages for display
func (e *APIError) Message() string {
	return strings.Join(e.Messages, "\n")
}

// Mentions reports whether any server message contains s
func (e *APIError) Mentions(s string) bool {
	for _, m := range e.Messages {
		if strings.Contains(strings.ToLower(m), strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// StatusCode returns the HTTP status of an API error, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsTransport reports a network failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUnauthorized reports a 401 response
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsConflict reports a 409 response
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsValidation reports a 400 response carrying a list of messages
func IsValidation(err error) bool {
	_, ok := ValidationMessages(err)
	return ok
}

// ValidationMessages returns the message list of a 400 validation response
func ValidationMessages(err error) ([]string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && apiErr.MessageList {
		return apiErr.Messages, true
	}
	return nil, false
}
