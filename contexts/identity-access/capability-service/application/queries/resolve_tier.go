package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "relaycreator/contexts/identity-access/capability-service/application"
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// TierDecision is the derived access tier plus the facts it came from.
type TierDecision struct {
	UserID          string              `json:"user_id"`
	Tier            entities.AccessTier `json:"tier"`
	OwnedRelays     int                 `json:"owned_relays"`
	ModeratedRelays int                 `json:"moderated_relays"`
	ComputedAt      time.Time           `json:"computed_at"`
}

// ResolveTierUseCase recomputes the tier from externally supplied facts on
// every call; nothing is stored.
type ResolveTierUseCase struct {
	Identity  ports.IdentityDirectory
	Inventory ports.RelayInventory
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (u ResolveTierUseCase) Execute(ctx context.Context, userID string) (TierDecision, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(userID) == "" {
		return TierDecision{}, domainerrors.ErrInvalidUserID
	}

	admin, err := u.Identity.IsAdmin(ctx, userID)
	if err != nil {
		return TierDecision{}, err
	}

	owned, moderated := 0, 0
	if !admin {
		// Admins classify as admin regardless of inventory; skip the lookup.
		owned, moderated, err = u.Inventory.RelayCounts(ctx, userID)
		if err != nil {
			logger.Error("relay inventory lookup failed",
				"event", "capability_tier_inventory_failed",
				"module", "identity-access/capability-service",
				"layer", "application",
				"user_id", userID,
				"error", err.Error(),
			)
			return TierDecision{}, err
		}
	}

	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}
	return TierDecision{
		UserID:          userID,
		Tier:            services.ComputeTier(admin, owned, moderated),
		OwnedRelays:     owned,
		ModeratedRelays: moderated,
		ComputedAt:      now,
	}, nil
}
