package queries

import (
	"context"
	"log/slog"
	"strings"

	application "relaycreator/contexts/identity-access/capability-service/application"
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// ListGrantsUseCase is the admin-only view of all active grants.
type ListGrantsUseCase struct {
	Repository ports.Repository
	Identity   ports.IdentityDirectory
	Logger     *slog.Logger
}

func (u ListGrantsUseCase) Execute(ctx context.Context, actorID string) ([]entities.PermissionGrant, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(actorID) == "" {
		return nil, domainerrors.ErrInvalidUserID
	}
	admin, err := u.Identity.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, domainerrors.ErrForbidden
	}

	items, err := u.Repository.ListActiveGrants(ctx)
	if err != nil {
		logger.Error("list grants failed",
			"event", "capability_list_grants_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"actor_id", actorID,
			"error", err.Error(),
		)
		return nil, err
	}
	return items, nil
}
