package errors

import "errors"

var (
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidCapability      = errors.New("invalid capability")
	ErrUnknownPermissionType  = errors.New("unknown permission type")
	ErrInvalidDecision        = errors.New("invalid decision")
	ErrInvalidStatusFilter    = errors.New("invalid status filter")
	ErrPendingRequestExists   = errors.New("pending request already exists")
	ErrGrantAlreadyActive     = errors.New("active grant already exists")
	ErrRequestNotFound        = errors.New("permission request not found")
	ErrRequestAlreadyDecided  = errors.New("permission request already decided")
	ErrGrantNotFound          = errors.New("active grant not found")
	ErrForbidden              = errors.New("forbidden")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)
