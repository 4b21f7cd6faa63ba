// Package common contains shared constants and sentinel errors used across
// pocketchat components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote API errors.
	ErrUnauthorized = errors.New("unauthorized")

	// Credential lifecycle. ErrNoCredential marks the deferred "not ready"
	// state: callers retry later instead of treating it as a failure.
	ErrNoCredential = errors.New("no credential for destination")
	ErrTokenExpired = errors.New("token expired")

	// Locking errors.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)
