package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "with body",
			err:  &APIError{StatusCode: 401, Status: "401 Unauthorized", ErrorClass: ErrorClassClient, Body: `{"status_code":7}`},
			want: `TMDb client error: HTTP 401 Unauthorized: {"status_code":7}`,
		},
		{
			name: "without body or status text",
			err:  &APIError{StatusCode: 503, ErrorClass: ErrorClassServer},
			want: "TMDb server error: HTTP 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_TruncatesBody(t *testing.T) {
	err := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Body: strings.Repeat("x", 2000)}
	msg := err.Error()
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("long body not truncated: %q", msg[len(msg)-10:])
	}
	if len(err.Body) != 2000 {
		t.Error("Body itself must stay complete")
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"api error", &APIError{ErrorClass: ErrorClassRateLimit}, ErrorClassRateLimit},
		{"wrapped api error", fmt.Errorf("%w after 3 attempts: %w", ErrRetryExhausted, &APIError{ErrorClass: ErrorClassServer}), ErrorClassServer},
		{"invalid json", fmt.Errorf("%w: eof", ErrInvalidJSON), ErrorClassDecode},
		{"other", errors.New("connection reset"), ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
