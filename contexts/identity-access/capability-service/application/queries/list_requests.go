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

// ListRequestsQuery filters the admin request view. An empty status lists
// pending requests, the default admin worklist.
type ListRequestsQuery struct {
	ActorID string
	Status  string
}

// ListRequestsUseCase is the admin-only request ledger view.
type ListRequestsUseCase struct {
	Repository ports.Repository
	Identity   ports.IdentityDirectory
	Logger     *slog.Logger
}

func (u ListRequestsUseCase) Execute(ctx context.Context, query ListRequestsQuery) ([]entities.PermissionRequest, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(query.ActorID) == "" {
		return nil, domainerrors.ErrInvalidUserID
	}
	admin, err := u.Identity.IsAdmin(ctx, query.ActorID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, domainerrors.ErrForbidden
	}

	status := entities.RequestStatus(query.Status)
	if query.Status == "" {
		status = entities.RequestStatusPending
	}
	if !status.Valid() {
		return nil, domainerrors.ErrInvalidStatusFilter
	}

	items, err := u.Repository.ListRequestsByStatus(ctx, status)
	if err != nil {
		logger.Error("list requests failed",
			"event", "capability_list_requests_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"actor_id", query.ActorID,
			"status", string(status),
			"error", err.Error(),
		)
		return nil, err
	}
	return items, nil
}
