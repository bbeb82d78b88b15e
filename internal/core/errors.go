package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a stored record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyReviewed is returned when a quarantine record has left the pending state
	ErrAlreadyReviewed = errors.New("quarantine record already reviewed")
	// ErrUnsupported is returned when the requested collaborator is not configured
	ErrUnsupported = errors.New("operation not supported by this deployment")
)

// ConfigError reports an invalid configuration detected at startup
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
