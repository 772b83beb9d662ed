package testzeus

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a record id or name does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated is returned when a call needs a token the client does not hold.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMissingCredentials is returned when identity or secret are absent.
	ErrMissingCredentials = errors.New("missing credentials")
)

// APIError represents an error response from the TestZeus API.
type APIError struct {
	Status  int                   `json:"-"`
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    map[string]FieldError `json:"data,omitempty"`
}

// FieldError is a per-field validation failure reported by the API.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	msg = fmt.Sprintf("API error %d: %s", e.Status, msg)

	if len(e.Data) == 0 {
		return msg
	}

	fields := make([]string, 0, len(e.Data))
	for field := range e.Data {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	details := make([]string, 0, len(fields))
	for _, field := range fields {
		details = append(details, field+": "+e.Data[field].Message)
	}
	return msg + " (" + strings.Join(details, "; ") + ")"
}

// Unwrap lets callers match 404 responses with errors.Is(err, ErrNotFound)
// and 401 responses with ErrNotAuthenticated.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrNotAuthenticated
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
