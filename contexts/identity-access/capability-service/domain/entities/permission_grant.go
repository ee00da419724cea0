package entities

import "time"

// PermissionGrant is one grant instance for a (user, capability) pair.
// A user accumulates historical rows; at most one may be active at a time.
// An empty GrantedBy means the grant was created by the system itself.
type PermissionGrant struct {
	GrantID            string     `json:"grant_id"`
	UserID             string     `json:"user_id"`
	Capability         string     `json:"capability"`
	GrantedAt          time.Time  `json:"granted_at"`
	GrantedBy          string     `json:"granted_by,omitempty"`
	DisclaimerAccepted bool       `json:"disclaimer_accepted"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the grant has not been revoked.
func (g PermissionGrant) Active() bool {
	return g.RevokedAt == nil
}

// Usable reports whether the capability may actually be exercised.
func (g PermissionGrant) Usable() bool {
	return g.Active() && g.DisclaimerAccepted
}
