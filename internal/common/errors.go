// Package common defines shared constants and sentinel errors used across
// the auditrack server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal  = errors.New("internal error")
	ErrValidation  = errors.New("validation error")
	ErrForbidden   = errors.New("forbidden")
	ErrStaleWindow = fmt.Errorf("%w: edit window closed", ErrForbidden)

	// Session errors.
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrTokenExpired      = fmt.Errorf("%w: token expired", ErrInvalidCredential)
	ErrAuthentication    = errors.New("invalid username or password")
	ErrTooManyAttempts   = errors.New("too many attempts")

	// Conflict errors.
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrAuditConflict     = errors.New("audit already exists for sector and day")
	ErrLastAdmin         = errors.New("cannot delete last administrator")

	// Export errors.
	ErrExportDisabled = errors.New("export storage not configured")
)

// AuditConflictError reports the identifier of the audit that already
// occupies the (auditor, sector, day) slot.
type AuditConflictError struct {
	ExistingID string
}

func (e *AuditConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuditConflict.Error(), e.ExistingID)
}

func (e *AuditConflictError) Unwrap() error {
	return ErrAuditConflict
}
