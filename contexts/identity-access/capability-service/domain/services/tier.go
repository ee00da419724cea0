package services

import "relaycreator/contexts/identity-access/capability-service/domain/entities"

// ComputeTier derives the coarse access tier from the admin flag and the
// relay-inventory facts. Pure; recomputed on every call.
func ComputeTier(admin bool, ownedRelays int, moderatedRelays int) entities.AccessTier {
	if admin {
		return entities.TierAdmin
	}
	if ownedRelays > 0 || moderatedRelays > 0 {
		return entities.TierOperator
	}
	return entities.TierDemo
}
