package httptransport

import "time"

// PermissionTypeDTO describes one registered capability and its disclaimer.
type PermissionTypeDTO struct {
	Capability         string `json:"capability"`
	DisclaimerText     string `json:"disclaimer_text,omitempty"`
	RequiresDisclaimer bool   `json:"requires_disclaimer"`
}

type ListPermissionTypesResponse struct {
	Types []PermissionTypeDTO `json:"types"`
}

type SubmitRequestRequest struct {
	Capability string `json:"capability"`
	Reason     string `json:"reason,omitempty"`
}

// PermissionRequestDTO mirrors one row of the request ledger.
type PermissionRequestDTO struct {
	RequestID    string     `json:"request_id"`
	UserID       string     `json:"user_id"`
	Capability   string     `json:"capability"`
	Reason       string     `json:"reason,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	DecisionNote string     `json:"decision_note,omitempty"`
}

type SubmitRequestResponse struct {
	Request  PermissionRequestDTO `json:"request"`
	Replayed bool                 `json:"replayed"`
}

type ListRequestsResponse struct {
	Requests []PermissionRequestDTO `json:"requests"`
}

type DecideRequestRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

type DecideRequestResponse struct {
	Request  PermissionRequestDTO `json:"request"`
	Grant    *PermissionGrantDTO  `json:"grant,omitempty"`
	Replayed bool                 `json:"replayed"`
}

// PermissionGrantDTO mirrors one row of the grant ledger.
type PermissionGrantDTO struct {
	GrantID            string     `json:"grant_id"`
	UserID             string     `json:"user_id"`
	Capability         string     `json:"capability"`
	GrantedAt          time.Time  `json:"granted_at"`
	GrantedBy          string     `json:"granted_by"`
	DisclaimerAccepted bool       `json:"disclaimer_accepted"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
}

type ListGrantsResponse struct {
	Grants []PermissionGrantDTO `json:"grants"`
}

type MyPermissionsResponse struct {
	UserID   string                 `json:"user_id"`
	Grants   []PermissionGrantDTO   `json:"grants"`
	Requests []PermissionRequestDTO `json:"requests"`
}

type AcceptDisclaimerRequest struct {
	Capability string `json:"capability"`
}

type AcceptDisclaimerResponse struct {
	Grant PermissionGrantDTO `json:"grant"`
}

type AssignGrantRequest struct {
	Capability string `json:"capability"`
}

type AssignGrantResponse struct {
	Grant PermissionGrantDTO `json:"grant"`
}

type RevokeGrantRequest struct {
	Capability string `json:"capability"`
}

type RevokeGrantResponse struct {
	UserID     string     `json:"user_id"`
	Capability string     `json:"capability"`
	Revoked    bool       `json:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type CheckCapabilityRequest struct {
	UserID     string `json:"user_id,omitempty"`
	Capability string `json:"capability"`
}

// CheckCapabilityResponse describes one capability decision.
type CheckCapabilityResponse struct {
	UserID             string    `json:"user_id"`
	Capability         string    `json:"capability"`
	Allowed            bool      `json:"allowed"`
	Granted            bool      `json:"granted"`
	DisclaimerAccepted bool      `json:"disclaimer_accepted"`
	Reason             string    `json:"reason"`
	CheckedAt          time.Time `json:"checked_at"`
	CacheHit           bool      `json:"cache_hit"`
}

type TierResponse struct {
	UserID          string    `json:"user_id"`
	Tier            string    `json:"tier"`
	OwnedRelays     int       `json:"owned_relays"`
	ModeratedRelays int       `json:"moderated_relays"`
	ComputedAt      time.Time `json:"computed_at"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
