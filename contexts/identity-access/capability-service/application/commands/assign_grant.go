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

// AssignGrantCommand is the admin "assign" action bypassing the request flow.
type AssignGrantCommand struct {
	UserID     string
	Capability string
	AdminID    string
}

// AssignGrantUseCase creates a grant directly for a user.
type AssignGrantUseCase struct {
	Repository      ports.Repository
	Registry        services.Registry
	Identity        ports.IdentityDirectory
	CapabilityCache ports.CapabilityCache
	Clock           ports.Clock
	IDGenerator     ports.IDGenerator
	Logger          *slog.Logger
}

func (u AssignGrantUseCase) Execute(ctx context.Context, cmd AssignGrantCommand) (entities.PermissionGrant, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("assign grant started",
		"event", "capability_assign_started",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"admin_id", cmd.AdminID,
		"capability", cmd.Capability,
	)

	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.AdminID) == "" {
		return entities.PermissionGrant{}, domainerrors.ErrInvalidUserID
	}
	disclaimer, err := u.Registry.DisclaimerFor(cmd.Capability)
	if err != nil {
		return entities.PermissionGrant{}, err
	}
	if err := ensureAdmin(ctx, u.Identity, cmd.AdminID); err != nil {
		return entities.PermissionGrant{}, err
	}

	grantID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.PermissionGrant{}, err
	}
	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.PermissionGrant{}, err
	}

	grant, err := u.Repository.CreateGrant(ctx, ports.GrantInput{
		GrantID:            grantID,
		OutboxID:           outboxID,
		UserID:             cmd.UserID,
		Capability:         cmd.Capability,
		GrantedBy:          cmd.AdminID,
		GrantedAt:          u.now(),
		DisclaimerAccepted: disclaimer == "",
	})
	if err != nil {
		logger.Warn("assign grant rejected",
			"event", "capability_assign_rejected",
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
			logger.Warn("capability cache invalidate failed after assign",
				"event", "capability_cache_invalidation_failed",
				"module", "identity-access/capability-service",
				"layer", "application",
				"user_id", cmd.UserID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("assign grant completed",
		"event", "capability_assign_completed",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"capability", cmd.Capability,
		"grant_id", grant.GrantID,
	)
	return grant, nil
}

func (u AssignGrantUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
