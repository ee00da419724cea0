package entities

import "time"

// RequestStatus is the lifecycle state of a permission request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusDenied:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied
}

// PermissionRequest is one submission attempt for a capability.
// It transitions exactly once from pending to approved or denied.
type PermissionRequest struct {
	RequestID    string        `json:"request_id"`
	UserID       string        `json:"user_id"`
	Capability   string        `json:"capability"`
	Reason       string        `json:"reason,omitempty"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
	DecidedBy    string        `json:"decided_by,omitempty"`
	DecisionNote string        `json:"decision_note,omitempty"`
}
