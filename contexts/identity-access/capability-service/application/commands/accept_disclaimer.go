package commands

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

// AcceptDisclaimerCommand acknowledges the gate on an active grant.
type AcceptDisclaimerCommand struct {
	UserID     string
	Capability string
}

// AcceptDisclaimerUseCase marks the disclaimer accepted. Re-accepting an
// already-accepted grant is a harmless no-op, so no idempotency key is
// involved.
type AcceptDisclaimerUseCase struct {
	Repository      ports.Repository
	Registry        services.Registry
	CapabilityCache ports.CapabilityCache
	Clock           ports.Clock
	Logger          *slog.Logger
}

func (u AcceptDisclaimerUseCase) Execute(ctx context.Context, cmd AcceptDisclaimerCommand) (entities.PermissionGrant, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(cmd.UserID) == "" {
		return entities.PermissionGrant{}, domainerrors.ErrInvalidUserID
	}
	if !u.Registry.Contains(cmd.Capability) {
		return entities.PermissionGrant{}, domainerrors.ErrUnknownPermissionType
	}

	grant, err := u.Repository.AcceptDisclaimer(ctx, cmd.UserID, cmd.Capability, u.now())
	if err != nil {
		logger.Warn("accept disclaimer rejected",
			"event", "capability_accept_disclaimer_rejected",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
			"error", err.Error(),
		)
		return entities.PermissionGrant{}, err
	}

	if u.CapabilityCache != nil {
		if err := u.CapabilityCache.Invalidate(ctx, cmd.UserID); err != nil {
			logger.Warn("capability cache invalidate failed after disclaimer",
				"event", "capability_cache_invalidation_failed",
				"module", "identity-access/capability-service",
				"layer", "application",
				"user_id", cmd.UserID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("disclaimer accepted",
		"event", "capability_disclaimer_accepted",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"capability", cmd.Capability,
		"grant_id", grant.GrantID,
	)
	return grant, nil
}

func (u AcceptDisclaimerUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
