package entities

import "time"

// CapabilityDecision is returned by capability check APIs.
// Allowed requires an active grant with the disclaimer accepted (or the
// admin bypass); Granted ignores the disclaimer gate so callers can render
// the gate instead of an access-denied surface. DisclaimerAccepted reflects
// grant state only, independent of the admin bypass.
type CapabilityDecision struct {
	UserID             string    `json:"user_id"`
	Capability         string    `json:"capability"`
	Allowed            bool      `json:"allowed"`
	Granted            bool      `json:"granted"`
	DisclaimerAccepted bool      `json:"disclaimer_accepted"`
	Reason             string    `json:"reason"`
	CheckedAt          time.Time `json:"checked_at"`
	CacheHit           bool      `json:"cache_hit"`
}
