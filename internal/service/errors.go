package service

import "errors"

// Common service errors
var (
	// ErrPermissionDenied is returned when a user doesn't have permission for an action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when there's a conflict (e.g., duplicate)
	ErrConflict = errors.New("resource conflict")

	// ErrUnauthorized is returned when user is not authenticated or a
	// security check in the impersonation chain fails
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDelivery is returned when a document was persisted but its PDF
	// rendering or email delivery failed. Callers must tell the user the
	// document exists and was not delivered.
	ErrDelivery = errors.New("document saved but delivery failed")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is returned on login with wrong email or password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned when the user exists but isActive is false
	ErrAccountDisabled = errors.New("account disabled")

	// ErrInvalidStatusTransition is returned when a document lifecycle
	// transition is not allowed from the current status
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrNotDraft is returned when items are edited on a non-DRAFT document
	ErrNotDraft = errors.New("items can only be edited on draft documents")

	// ErrAlreadyConverted is returned when converting a quote twice
	ErrAlreadyConverted = errors.New("quote already converted")
)
