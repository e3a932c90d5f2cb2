package backdash

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backdash/internal/domain"
)

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a 4xx or 5xx response from the backend. Body holds the raw
// response payload.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Detail())
}

// Detail extracts the backend's message from a {"detail": ...} or
// {"error": ...} body, falling back to the trimmed raw body.
func (e *HTTPError) Detail() string {
	var body struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(e.Body))
	if s == "" {
		return http.StatusText(e.Status)
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// TimeoutError means the client gave up waiting for a response.
type TimeoutError struct {
	Op      string
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %s: timed out after %s", e.Op, e.URL, e.Timeout)
	}
	return fmt.Sprintf("%s %s: timed out", e.Op, e.URL)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ValidationError reports caller input rejected before any request is made.
type ValidationError = domain.ValidationError

// IsNotFound reports whether err is an HTTP 404 from the backend.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// HTTPError.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Status
	}
	return 0
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var terr *TimeoutError
	return errors.As(err, &terr)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var nerr *NetworkError
	return errors.As(err, &nerr)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Describe returns a one-line message for err fit to show an end user.
func Describe(err error) string {
	var herr *HTTPError
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "invalid input: " + verr.Error()
	case errors.As(err, &herr):
		return fmt.Sprintf("backend answered %d: %s", herr.Status, herr.Detail())
	case IsTimeout(err):
		return "backend did not answer in time: " + err.Error()
	case IsNetwork(err):
		return "backend unreachable: " + err.Error()
	}
	return err.Error()
}
