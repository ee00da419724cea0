package entities

// PermissionType describes one elevated capability and its acknowledgement gate.
// An empty DisclaimerText means the capability has no gate.
type PermissionType struct {
	Capability     string `json:"capability"`
	DisclaimerText string `json:"disclaimer_text,omitempty"`
}

// RequiresDisclaimer reports whether a new grant starts behind the gate.
func (t PermissionType) RequiresDisclaimer() bool {
	return t.DisclaimerText != ""
}
