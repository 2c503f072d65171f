package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/posts-client/pkg/post"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"decode error should not retry", ErrorClassDecode, false},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "API server error (status 500): internal server error: connection reset",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "404 Not Found",
			},
			expected: "API client error (status 404): 404 Not Found",
		},
		{
			name: "rate limit error",
			apiError: &APIError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "429 Too Many Requests",
			},
			expected: "API rate_limit error (status 429): 429 Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Err: wrappedErr}

	if got := apiError.Unwrap(); got != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", got, wrappedErr)
	}
	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}

	if got := (&APIError{StatusCode: 404}).Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestToNetworkError(t *testing.T) {
	exhausted := fmt.Errorf("%w after 3 attempts: %w", ErrRetryExhausted,
		&APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Service Unavailable"})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantClass  string
		wantDesc   string
	}{
		{
			name:       "api error",
			err:        &APIError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "404 Not Found"},
			wantStatus: 404,
			wantClass:  "client",
			wantDesc:   "404 Not Found",
		},
		{
			name:       "retry exhausted keeps last status",
			err:        exhausted,
			wantStatus: 503,
			wantClass:  "server",
			wantDesc:   "503 Service Unavailable",
		},
		{
			name:      "rate limited",
			err:       ErrRateLimited,
			wantClass: "rate_limit",
			wantDesc:  "rate limit reached, try again later",
		},
		{
			name:      "timeout",
			err:       fmt.Errorf("get: %w", context.DeadlineExceeded),
			wantClass: "network",
			wantDesc:  "timeout",
		},
		{
			name:      "transport",
			err:       errors.New("dial tcp: connection refused"),
			wantClass: "network",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toNetworkError(tt.err)

			var netErr *post.NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("toNetworkError() = %T, want *post.NetworkError", err)
			}
			if !errors.Is(err, post.ErrNetwork) {
				t.Error("errors.Is(err, post.ErrNetwork) = false")
			}
			if !errors.Is(err, tt.err) {
				t.Error("original error not preserved in chain")
			}
			if netErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", netErr.StatusCode, tt.wantStatus)
			}
			if netErr.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", netErr.Class, tt.wantClass)
			}
			if netErr.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", netErr.Description, tt.wantDesc)
			}
		})
	}

	if toNetworkError(nil) != nil {
		t.Error("toNetworkError(nil) should be nil")
	}

	already := &post.NetworkError{Class: "decode"}
	if got := toNetworkError(already); got != already {
		t.Errorf("toNetworkError() rewrapped an existing NetworkError: %v", got)
	}
}
