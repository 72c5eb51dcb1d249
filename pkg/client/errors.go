package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all attempts for one request failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a retry wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidJSON is returned when a 2xx response body is not JSON.
	ErrInvalidJSON = errors.New("response body is not valid JSON")

	// ErrInvalidPayload is returned when a 2xx JSON body fails the caller's Check.
	ErrInvalidPayload = errors.New("response payload rejected")
)

// maxErrorBody bounds the response text quoted in APIError.Error.
const maxErrorBody = 512

// APIError is a non-2xx response from TMDb.
type APIError struct {
	StatusCode int
	Status     string
	ErrorClass ErrorClass
	// Body is the raw response body, kept for the run manifest.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	if body == "" {
		return fmt.Sprintf("TMDb %s error: HTTP %s", e.ErrorClass, status)
	}
	return fmt.Sprintf("TMDb %s error: HTTP %s: %s", e.ErrorClass, status, body)
}

// ClassOf returns the ErrorClass of err for logs and metrics.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.ErrorClass
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidPayload):
		return ErrorClassDecode
	default:
		return ErrorClassNetwork
	}
}
