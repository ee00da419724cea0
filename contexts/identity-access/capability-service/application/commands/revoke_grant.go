package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "relaycreator/contexts/identity-access/capability-service/application"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// RevokeGrantCommand ensures a user no longer holds a capability.
type RevokeGrantCommand struct {
	UserID     string
	Capability string
	AdminID    string
}

// RevokeGrantResult reports whether a grant was actually revoked.
type RevokeGrantResult struct {
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// RevokeGrantUseCase marks the active grant revoked. The contract is
// declarative: revoking with nothing active succeeds without side effects.
type RevokeGrantUseCase struct {
	Repository      ports.Repository
	Registry        services.Registry
	Identity        ports.IdentityDirectory
	CapabilityCache ports.CapabilityCache
	Clock           ports.Clock
	IDGenerator     ports.IDGenerator
	Logger          *slog.Logger
}

func (u RevokeGrantUseCase) Execute(ctx context.Context, cmd RevokeGrantCommand) (RevokeGrantResult, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("revoke grant started",
		"event", "capability_revoke_started",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"admin_id", cmd.AdminID,
		"capability", cmd.Capability,
	)

	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.AdminID) == "" {
		return RevokeGrantResult{}, domainerrors.ErrInvalidUserID
	}
	if !u.Registry.Contains(cmd.Capability) {
		return RevokeGrantResult{}, domainerrors.ErrUnknownPermissionType
	}
	if err := ensureAdmin(ctx, u.Identity, cmd.AdminID); err != nil {
		return RevokeGrantResult{}, err
	}

	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RevokeGrantResult{}, err
	}

	now := u.now()
	grant, revoked, err := u.Repository.RevokeGrant(ctx, ports.RevokeInput{
		OutboxID:   outboxID,
		UserID:     cmd.UserID,
		Capability: cmd.Capability,
		RevokedBy:  cmd.AdminID,
		RevokedAt:  now,
	})
	if err != nil {
		logger.Error("revoke grant write failed",
			"event", "capability_revoke_write_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
			"error", err.Error(),
		)
		return RevokeGrantResult{}, err
	}
	if !revoked {
		logger.Info("revoke grant no-op",
			"event", "capability_revoke_noop",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
		)
		return RevokeGrantResult{}, nil
	}

	if u.CapabilityCache != nil {
		if err := u.CapabilityCache.Invalidate(ctx, cmd.UserID); err != nil {
			logger.Warn("capability cache invalidate failed after revoke",
				"event", "capability_cache_invalidation_failed",
				"module", "identity-access/capability-service",
				"layer", "application",
				"user_id", cmd.UserID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("revoke grant completed",
		"event", "capability_revoke_completed",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"capability", cmd.Capability,
		"grant_id", grant.GrantID,
	)
	return RevokeGrantResult{Revoked: true, RevokedAt: grant.RevokedAt}, nil
}

func (u RevokeGrantUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
