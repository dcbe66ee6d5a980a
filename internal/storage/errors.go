package storage

import (
	"errors"
	"fmt"
)

// AuthErr signals an invalid or revoked OAuth token. Fatal to the mount.
type AuthErr struct {
	Err error
}

func (e *AuthErr) Error() string { return fmt.Sprintf("auth error: %v", e.Err) }
func (e *AuthErr) Unwrap() error { return e.Err }

// TransientErr signals a retryable failure: network error, 5xx, or
// rate limiting. The backend retries these internally with backoff
// before escalating to RemoteUnavailableErr.
type TransientErr struct {
	Err error
}

func (e *TransientErr) Error() string { return fmt.Sprintf("transient error: %v", e.Err) }
func (e *TransientErr) Unwrap() error { return e.Err }

// RemoteUnavailableErr signals that retries were exhausted.
type RemoteUnavailableErr struct {
	Attempts int
	Err      error
}

func (e *RemoteUnavailableErr) Error() string {
	return fmt.Sprintf("remote unavailable after %d attempts: %v", e.Attempts, e.Err)
}
func (e *RemoteUnavailableErr) Unwrap() error { return e.Err }

// NotFoundErr signals a record id absent remotely.
type NotFoundErr struct {
	ID string
}

func (e *NotFoundErr) Error() string { return fmt.Sprintf("record not found: %s", e.ID) }

// CorruptRecordErr signals a codec decode failure.
type CorruptRecordErr struct {
	ID     string
	Reason string
}

func (e *CorruptRecordErr) Error() string {
	return fmt.Sprintf("corrupt record %s: %s", e.ID, e.Reason)
}

// IncompatibleVolumeErr signals a root record format version this
// build does not support.
type IncompatibleVolumeErr struct {
	Got, Want uint8
}

func (e *IncompatibleVolumeErr) Error() string {
	return fmt.Sprintf("incompatible volume: format version %d, this build supports %d", e.Got, e.Want)
}

// IsNotFound reports whether err is (or wraps) a NotFoundErr.
func IsNotFound(err error) bool {
	var notFound *NotFoundErr
	return errors.As(err, &notFound)
}
