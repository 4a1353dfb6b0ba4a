// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidConfig is returned when a configuration field is missing or malformed.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// FetchError is returned when the feed cannot be read or parsed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotifyError is returned when the webhook rejects a notification or cannot be reached.
// StatusCode is 0 for transport failures.
type NotifyError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("notify: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("notify: webhook responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("notify: webhook responded with status %d: %s", e.StatusCode, e.Body)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// StorageError is returned when a ledger operation fails.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
