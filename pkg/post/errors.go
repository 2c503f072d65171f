package post

import (
	"errors"
	"fmt"
)

// ErrNetwork is matched by every *NetworkError via errors.Is.
var ErrNetwork = errors.New("network error")

// NetworkError is a transport or HTTP failure raised by a fetcher.
type NetworkError struct {
	// StatusCode is the HTTP status, 0 for transport failures.
	StatusCode int

	// Class is the error classification (client, server, rate_limit, network).
	Class string

	// Description is an optional human-readable explanation.
	Description string

	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	msg := "network error"
	if e.Class != "" {
		msg = e.Class + " error"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports ErrNetwork as a match.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Describe returns the human-readable description carried by err, or "" when
// the error has none.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if netErr.Description != "" {
			return netErr.Description
		}
		if netErr.Err != nil {
			return netErr.Err.Error()
		}
		return ""
	}
	return err.Error()
}
