package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/posts-client/pkg/post"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the rate limit tracker blocks a request.
	ErrRateLimited = errors.New("request blocked: rate limit critical")

	// ErrInvalidPageRequest is wrapped when a page or limit is below 1.
	ErrInvalidPageRequest = errors.New("invalid page request")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that is not valid JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError represents an HTTP error response from the posts API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("API %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors will not change on retry
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// toNetworkError converts any failure from Do into the *post.NetworkError
// the coordinators consume.
func toNetworkError(err error) error {
	if err == nil {
		return nil
	}

	var netErr *post.NetworkError
	if errors.As(err, &netErr) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &post.NetworkError{
			StatusCode:  apiErr.StatusCode,
			Class:       string(apiErr.ErrorClass),
			Description: apiErr.Message,
			Err:         err,
		}
	}

	if errors.Is(err, ErrRateLimited) {
		return &post.NetworkError{
			Class:       string(ErrorClassRateLimit),
			Description: "rate limit reached, try again later",
			Err:         err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &post.NetworkError{
			Class:       string(ErrorClassNetwork),
			Description: "timeout",
			Err:         err,
		}
	}

	return &post.NetworkError{
		Class: string(ErrorClassNetwork),
		Err:   err,
	}
}

// invalidPageError rejects a page request before it is sent. It carries the
// client class so callers see the same error type as for upstream failures.
func invalidPageError(field string, value int) error {
	return &post.NetworkError{
		Class:       string(ErrorClassClient),
		Description: fmt.Sprintf("%s must be >= 1, got %d", field, value),
		Err:         ErrInvalidPageRequest,
	}
}
