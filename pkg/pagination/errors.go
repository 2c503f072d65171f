package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid pagination config")

	// ErrClosed is returned when a signal is sent to a closed coordinator.
	ErrClosed = errors.New("coordinator closed")
)

// ConfigError reports an invalid page size or starting page.
type ConfigError struct {
	Field string
	Value int
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %d: must be positive", e.Field, e.Value)
}

// Is reports ErrInvalidConfig as a match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func validate(pageSize, startingPage int) error {
	if pageSize <= 0 {
		return &ConfigError{Field: "page size", Value: pageSize}
	}
	if startingPage < 1 {
		return &ConfigError{Field: "starting page", Value: startingPage}
	}
	return nil
}
