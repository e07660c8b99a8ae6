// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is outside the caller's scope.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (row changed underneath the writer).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication (bad credentials).
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrInvalidToken indicates an expired, revoked, unknown or forged token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden indicates the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrDeviceRejected indicates the device was rejected by an administrator.
	ErrDeviceRejected = errors.New("device rejected")

	// ErrDeviceNotApproved indicates the device is still waiting for approval.
	ErrDeviceNotApproved = errors.New("device not approved")

	// ErrDeviceInactive indicates the device was deactivated (logout or quota eviction).
	ErrDeviceInactive = errors.New("device inactive")

	// ErrInvalidState indicates a state transition that is not allowed.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// Validation codes surfaced to clients.
const (
	CodeInvalidPayload      = "INVALID_PAYLOAD"
	CodeMissingField        = "MISSING_REQUIRED_FIELD"
	CodeInsufficientPhotos  = "INSUFFICIENT_PHOTOS"
	CodeMissingGeoLocation  = "MISSING_GEO_LOCATION"
	CodeBatchTooLarge       = "BATCH_TOO_LARGE"
	CodeMissingLocalChanges = "MISSING_LOCAL_CHANGES"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeVerificationNeeded  = "VERIFICATION_REQUIRED"
)

// ValidationError is a client-input failure with a machine-readable code and optional details.
type ValidationError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true for any validation error.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a *ValidationError.
func Validation(code, msg string, details map[string]any) error {
	return &ValidationError{Code: code, Message: msg, Details: details}
}

// AsValidation extracts a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
