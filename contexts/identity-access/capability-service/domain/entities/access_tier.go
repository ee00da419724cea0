package entities

// AccessTier is the coarse classification used to pick a feature surface.
// It is derived on every call and never stored.
type AccessTier string

const (
	TierAdmin    AccessTier = "admin"
	TierOperator AccessTier = "operator"
	TierDemo     AccessTier = "demo"
)
