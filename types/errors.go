package types

import "errors"

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a CouchDB uniqueness/revision conflict
	ErrConflict = errors.New("conflict")

	// ErrBadRequest is returned on malformed input
	ErrBadRequest = errors.New("bad request")

	// ErrNotAuthorized is returned when the caller may not act on the resource
	ErrNotAuthorized = errors.New("not authorized")

	// ErrDisabled is returned when the owning account or alias is disabled
	ErrDisabled = errors.New("disabled")

	// ErrQuotaExceeded is returned when an account is at its alias limit
	ErrQuotaExceeded = errors.New("alias quota exceeded")

	// ErrTooLarge is returned when an inbound message exceeds the raw size ceiling
	ErrTooLarge = errors.New("message too large")

	// ErrSelfTarget rejects an admin cascade against the admin's own account
	ErrSelfTarget = errors.New("cannot target own account")

	// ErrLastAdmin rejects deleting the sole remaining admin
	ErrLastAdmin = errors.New("last admin cannot be deleted")

	// ErrUnsupportedIterations is returned for a PBKDF2 work factor above
	// the platform ceiling; callers should prompt for a credential reset
	ErrUnsupportedIterations = errors.New("unsupported hash work factor")

	// ErrInternal (for unhandled exceptions)
	ErrInternal = errors.New("internal error")
)
