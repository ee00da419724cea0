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

// MyPermissions bundles a caller's own grants and requests.
type MyPermissions struct {
	Grants   []entities.PermissionGrant   `json:"grants"`
	Requests []entities.PermissionRequest `json:"requests"`
}

// MyPermissionsUseCase returns the caller's own ledger rows only.
type MyPermissionsUseCase struct {
	Repository ports.Repository
	Logger     *slog.Logger
}

func (u MyPermissionsUseCase) Execute(ctx context.Context, userID string) (MyPermissions, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(userID) == "" {
		return MyPermissions{}, domainerrors.ErrInvalidUserID
	}

	grants, err := u.Repository.ListGrantsForUser(ctx, userID)
	if err != nil {
		logger.Error("my permissions grant load failed",
			"event", "capability_my_permissions_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", userID,
			"error", err.Error(),
		)
		return MyPermissions{}, err
	}
	requests, err := u.Repository.ListRequestsForUser(ctx, userID)
	if err != nil {
		logger.Error("my permissions request load failed",
			"event", "capability_my_permissions_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", userID,
			"error", err.Error(),
		)
		return MyPermissions{}, err
	}
	return MyPermissions{
		Grants:   grants,
		Requests: requests,
	}, nil
}
