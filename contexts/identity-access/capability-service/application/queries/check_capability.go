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

	"golang.org/x/sync/singleflight"
)

// CheckCapabilityQuery is the request model for one capability evaluation.
type CheckCapabilityQuery struct {
	UserID     string
	Capability string
}

// CheckCapabilityUseCase orchestrates cache-first capability evaluation
// with the admin bypass. Concurrent loads for the same user are coalesced.
type CheckCapabilityUseCase struct {
	Repository      ports.Repository
	Registry        services.Registry
	Identity        ports.IdentityDirectory
	CapabilityCache ports.CapabilityCache
	Flights         *singleflight.Group
	Clock           ports.Clock
	CacheTTL        time.Duration
	Logger          *slog.Logger
}

// Execute evaluates a capability and returns deny-by-default on lookup
// failures. The admin bypass lives here and nowhere else.
func (u CheckCapabilityUseCase) Execute(ctx context.Context, query CheckCapabilityQuery) (entities.CapabilityDecision, error) {
	if strings.TrimSpace(query.UserID) == "" {
		return entities.CapabilityDecision{}, domainerrors.ErrInvalidUserID
	}
	if !u.Registry.Contains(query.Capability) {
		return entities.CapabilityDecision{}, domainerrors.ErrUnknownPermissionType
	}

	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	admin, err := u.Identity.IsAdmin(ctx, query.UserID)
	if err != nil {
		logger.Error("identity lookup failed, deny by default",
			"event", "capability_identity_lookup_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", query.UserID,
			"capability", query.Capability,
			"error", err.Error(),
		)
		return entities.CapabilityDecision{
			UserID:     query.UserID,
			Capability: query.Capability,
			Reason:     "deny_by_default",
			CheckedAt:  now,
		}, nil
	}

	snapshots, cacheHit, err := u.loadSnapshots(ctx, query.UserID, now)
	if err != nil {
		logger.Error("grant lookup failed, deny by default",
			"event", "capability_grant_lookup_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", query.UserID,
			"capability", query.Capability,
			"error", err.Error(),
		)
		reason := "deny_by_default"
		if admin {
			reason = "admin_override"
		}
		return entities.CapabilityDecision{
			UserID:     query.UserID,
			Capability: query.Capability,
			Allowed:    admin,
			Granted:    admin,
			Reason:     reason,
			CheckedAt:  now,
		}, nil
	}

	granted := false
	accepted := false
	for _, snapshot := range snapshots {
		if snapshot.Capability == query.Capability {
			granted = true
			accepted = snapshot.DisclaimerAccepted
			break
		}
	}

	decision := entities.CapabilityDecision{
		UserID:             query.UserID,
		Capability:         query.Capability,
		Allowed:            granted && accepted,
		Granted:            granted,
		DisclaimerAccepted: accepted,
		CheckedAt:          now,
		CacheHit:           cacheHit,
	}
	switch {
	case admin:
		// Super-admins hold every registered capability without a grant.
		decision.Allowed = true
		decision.Granted = true
		decision.Reason = "admin_override"
	case decision.Allowed:
		decision.Reason = "grant_active"
	case granted:
		decision.Reason = "disclaimer_pending"
	default:
		decision.Reason = "no_grant"
	}

	logger.Debug("capability checked",
		"event", "capability_checked",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", query.UserID,
		"capability", query.Capability,
		"allowed", decision.Allowed,
		"reason", decision.Reason,
		"cache_hit", cacheHit,
	)
	return decision, nil
}

func (u CheckCapabilityUseCase) loadSnapshots(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]ports.GrantSnapshot, bool, error) {
	if u.CapabilityCache != nil {
		items, hit, err := u.CapabilityCache.Get(ctx, userID, now)
		if err != nil {
			return nil, false, err
		}
		if hit {
			return items, true, nil
		}
	}

	load := func() ([]ports.GrantSnapshot, error) {
		snapshots, err := u.Repository.ActiveGrantSnapshots(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u.CapabilityCache != nil {
			_ = u.CapabilityCache.Set(ctx, userID, snapshots, now.Add(u.cacheTTL()))
		}
		return snapshots, nil
	}

	if u.Flights == nil {
		snapshots, err := load()
		return snapshots, false, err
	}

	value, err, _ := u.Flights.Do("capability_grants:"+userID, func() (any, error) {
		return load()
	})
	if err != nil {
		return nil, false, err
	}
	return value.([]ports.GrantSnapshot), false, nil
}

func (u CheckCapabilityUseCase) cacheTTL() time.Duration {
	if u.CacheTTL <= 0 {
		return 5 * time.Minute
	}
	return u.CacheTTL
}

func (u CheckCapabilityUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
