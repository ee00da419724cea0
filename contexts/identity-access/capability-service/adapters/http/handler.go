package httpadapter

import (
	"context"
	"log/slog"

	application "relaycreator/contexts/identity-access/capability-service/application"
	"relaycreator/contexts/identity-access/capability-service/application/commands"
	"relaycreator/contexts/identity-access/capability-service/application/queries"
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	httptransport "relaycreator/contexts/identity-access/capability-service/transport/http"
)

// Handler maps HTTP DTOs to application commands/queries.
type Handler struct {
	ListTypes        queries.ListPermissionTypesUseCase
	CheckCapability  queries.CheckCapabilityUseCase
	ListRequests     queries.ListRequestsUseCase
	ListGrants       queries.ListGrantsUseCase
	MyPermissions    queries.MyPermissionsUseCase
	ResolveTier      queries.ResolveTierUseCase
	SubmitRequest    commands.SubmitRequestUseCase
	DecideRequest    commands.DecideRequestUseCase
	AcceptDisclaimer commands.AcceptDisclaimerUseCase
	AssignGrant      commands.AssignGrantUseCase
	RevokeGrant      commands.RevokeGrantUseCase
	Logger           *slog.Logger
}

// ListTypesHandler returns the registered capability catalog.
func (h Handler) ListTypesHandler(_ context.Context) httptransport.ListPermissionTypesResponse {
	types := h.ListTypes.Execute()
	items := make([]httptransport.PermissionTypeDTO, 0, len(types))
	for _, permissionType := range types {
		items = append(items, httptransport.PermissionTypeDTO{
			Capability:         permissionType.Capability,
			DisclaimerText:     permissionType.DisclaimerText,
			RequiresDisclaimer: permissionType.RequiresDisclaimer(),
		})
	}
	return httptransport.ListPermissionTypesResponse{Types: items}
}

// SubmitRequestHandler executes idempotent request submission.
func (h Handler) SubmitRequestHandler(
	ctx context.Context,
	userID string,
	idempotencyKey string,
	request httptransport.SubmitRequestRequest,
) (httptransport.SubmitRequestResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability submit received",
		"event", "capability_http_submit_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
		"capability", request.Capability,
	)

	result, err := h.SubmitRequest.Execute(ctx, commands.SubmitRequestCommand{
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		Capability:     request.Capability,
		Reason:         request.Reason,
	})
	if err != nil {
		logger.Error("http capability submit failed",
			"event", "capability_http_submit_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"capability", request.Capability,
			"error", err.Error(),
		)
		return httptransport.SubmitRequestResponse{}, err
	}
	return httptransport.SubmitRequestResponse{
		Request:  requestDTO(result.Request),
		Replayed: result.Replayed,
	}, nil
}

// ListRequestsHandler returns the admin-only request ledger view.
func (h Handler) ListRequestsHandler(
	ctx context.Context,
	actorID string,
	status string,
) (httptransport.ListRequestsResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability list requests received",
		"event", "capability_http_list_requests_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"actor_id", actorID,
		"status", status,
	)

	requests, err := h.ListRequests.Execute(ctx, queries.ListRequestsQuery{
		ActorID: actorID,
		Status:  status,
	})
	if err != nil {
		logger.Error("http capability list requests failed",
			"event", "capability_http_list_requests_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"actor_id", actorID,
			"error", err.Error(),
		)
		return httptransport.ListRequestsResponse{}, err
	}
	return httptransport.ListRequestsResponse{Requests: requestDTOs(requests)}, nil
}

// DecideRequestHandler executes idempotent approve/deny of a pending request.
func (h Handler) DecideRequestHandler(
	ctx context.Context,
	requestID string,
	deciderID string,
	idempotencyKey string,
	request httptransport.DecideRequestRequest,
) (httptransport.DecideRequestResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability decide received",
		"event", "capability_http_decide_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"request_id", requestID,
		"decider_id", deciderID,
		"decision", request.Decision,
	)

	result, err := h.DecideRequest.Execute(ctx, commands.DecideRequestCommand{
		IdempotencyKey: idempotencyKey,
		RequestID:      requestID,
		Decision:       request.Decision,
		DeciderID:      deciderID,
		Note:           request.Note,
	})
	if err != nil {
		logger.Error("http capability decide failed",
			"event", "capability_http_decide_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"request_id", requestID,
			"decider_id", deciderID,
			"error", err.Error(),
		)
		return httptransport.DecideRequestResponse{}, err
	}

	response := httptransport.DecideRequestResponse{
		Request:  requestDTO(result.Request),
		Replayed: result.Replayed,
	}
	if result.Grant != nil {
		grant := grantDTO(*result.Grant)
		response.Grant = &grant
	}
	return response, nil
}

// ListGrantsHandler returns the admin-only active grant ledger view.
func (h Handler) ListGrantsHandler(ctx context.Context, actorID string) (httptransport.ListGrantsResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability list grants received",
		"event", "capability_http_list_grants_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"actor_id", actorID,
	)

	grants, err := h.ListGrants.Execute(ctx, actorID)
	if err != nil {
		logger.Error("http capability list grants failed",
			"event", "capability_http_list_grants_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"actor_id", actorID,
			"error", err.Error(),
		)
		return httptransport.ListGrantsResponse{}, err
	}
	return httptransport.ListGrantsResponse{Grants: grantDTOs(grants)}, nil
}

// MyPermissionsHandler returns the caller's own grants and requests.
func (h Handler) MyPermissionsHandler(ctx context.Context, userID string) (httptransport.MyPermissionsResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Debug("http capability me received",
		"event", "capability_http_me_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
	)

	permissions, err := h.MyPermissions.Execute(ctx, userID)
	if err != nil {
		logger.Error("http capability me failed",
			"event", "capability_http_me_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"error", err.Error(),
		)
		return httptransport.MyPermissionsResponse{}, err
	}
	return httptransport.MyPermissionsResponse{
		UserID:   userID,
		Grants:   grantDTOs(permissions.Grants),
		Requests: requestDTOs(permissions.Requests),
	}, nil
}

// AcceptDisclaimerHandler records disclaimer acceptance on the caller's grant.
func (h Handler) AcceptDisclaimerHandler(
	ctx context.Context,
	userID string,
	request httptransport.AcceptDisclaimerRequest,
) (httptransport.AcceptDisclaimerResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability accept disclaimer received",
		"event", "capability_http_accept_disclaimer_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
		"capability", request.Capability,
	)

	grant, err := h.AcceptDisclaimer.Execute(ctx, commands.AcceptDisclaimerCommand{
		UserID:     userID,
		Capability: request.Capability,
	})
	if err != nil {
		logger.Error("http capability accept disclaimer failed",
			"event", "capability_http_accept_disclaimer_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"capability", request.Capability,
			"error", err.Error(),
		)
		return httptransport.AcceptDisclaimerResponse{}, err
	}
	return httptransport.AcceptDisclaimerResponse{Grant: grantDTO(grant)}, nil
}

// AssignGrantHandler creates a grant directly without a request round-trip.
func (h Handler) AssignGrantHandler(
	ctx context.Context,
	userID string,
	adminID string,
	request httptransport.AssignGrantRequest,
) (httptransport.AssignGrantResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability assign grant received",
		"event", "capability_http_assign_grant_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
		"admin_id", adminID,
		"capability", request.Capability,
	)

	grant, err := h.AssignGrant.Execute(ctx, commands.AssignGrantCommand{
		UserID:     userID,
		Capability: request.Capability,
		AdminID:    adminID,
	})
	if err != nil {
		logger.Error("http capability assign grant failed",
			"event", "capability_http_assign_grant_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"admin_id", adminID,
			"capability", request.Capability,
			"error", err.Error(),
		)
		return httptransport.AssignGrantResponse{}, err
	}
	return httptransport.AssignGrantResponse{Grant: grantDTO(grant)}, nil
}

// RevokeGrantHandler revokes the active grant. Revoking nothing is a no-op.
func (h Handler) RevokeGrantHandler(
	ctx context.Context,
	userID string,
	adminID string,
	request httptransport.RevokeGrantRequest,
) (httptransport.RevokeGrantResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("http capability revoke grant received",
		"event", "capability_http_revoke_grant_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
		"admin_id", adminID,
		"capability", request.Capability,
	)

	result, err := h.RevokeGrant.Execute(ctx, commands.RevokeGrantCommand{
		UserID:     userID,
		Capability: request.Capability,
		AdminID:    adminID,
	})
	if err != nil {
		logger.Error("http capability revoke grant failed",
			"event", "capability_http_revoke_grant_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"admin_id", adminID,
			"capability", request.Capability,
			"error", err.Error(),
		)
		return httptransport.RevokeGrantResponse{}, err
	}
	return httptransport.RevokeGrantResponse{
		UserID:     userID,
		Capability: request.Capability,
		Revoked:    result.Revoked,
		RevokedAt:  result.RevokedAt,
	}, nil
}

// CheckCapabilityHandler evaluates one capability for one user.
func (h Handler) CheckCapabilityHandler(
	ctx context.Context,
	request httptransport.CheckCapabilityRequest,
) (httptransport.CheckCapabilityResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Debug("http capability check received",
		"event", "capability_http_check_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", request.UserID,
		"capability", request.Capability,
	)

	decision, err := h.CheckCapability.Execute(ctx, queries.CheckCapabilityQuery{
		UserID:     request.UserID,
		Capability: request.Capability,
	})
	if err != nil {
		logger.Error("http capability check failed",
			"event", "capability_http_check_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", request.UserID,
			"capability", request.Capability,
			"error", err.Error(),
		)
		return httptransport.CheckCapabilityResponse{}, err
	}
	return httptransport.CheckCapabilityResponse{
		UserID:             decision.UserID,
		Capability:         decision.Capability,
		Allowed:            decision.Allowed,
		Granted:            decision.Granted,
		DisclaimerAccepted: decision.DisclaimerAccepted,
		Reason:             decision.Reason,
		CheckedAt:          decision.CheckedAt,
		CacheHit:           decision.CacheHit,
	}, nil
}

// ResolveTierHandler classifies a user into an access tier.
func (h Handler) ResolveTierHandler(ctx context.Context, userID string) (httptransport.TierResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Debug("http capability tier received",
		"event", "capability_http_tier_received",
		"module", "identity-access/capability-service",
		"layer", "transport",
		"user_id", userID,
	)

	decision, err := h.ResolveTier.Execute(ctx, userID)
	if err != nil {
		logger.Error("http capability tier failed",
			"event", "capability_http_tier_failed",
			"module", "identity-access/capability-service",
			"layer", "transport",
			"user_id", userID,
			"error", err.Error(),
		)
		return httptransport.TierResponse{}, err
	}
	return httptransport.TierResponse{
		UserID:          decision.UserID,
		Tier:            string(decision.Tier),
		OwnedRelays:     decision.OwnedRelays,
		ModeratedRelays: decision.ModeratedRelays,
		ComputedAt:      decision.ComputedAt,
	}, nil
}

func requestDTO(request entities.PermissionRequest) httptransport.PermissionRequestDTO {
	return httptransport.PermissionRequestDTO{
		RequestID:    request.RequestID,
		UserID:       request.UserID,
		Capability:   request.Capability,
		Reason:       request.Reason,
		Status:       string(request.Status),
		CreatedAt:    request.CreatedAt,
		DecidedAt:    request.DecidedAt,
		DecidedBy:    request.DecidedBy,
		DecisionNote: request.DecisionNote,
	}
}

func requestDTOs(requests []entities.PermissionRequest) []httptransport.PermissionRequestDTO {
	items := make([]httptransport.PermissionRequestDTO, 0, len(requests))
	for _, request := range requests {
		items = append(items, requestDTO(request))
	}
	return items
}

func grantDTO(grant entities.PermissionGrant) httptransport.PermissionGrantDTO {
	return httptransport.PermissionGrantDTO{
		GrantID:            grant.GrantID,
		UserID:             grant.UserID,
		Capability:         grant.Capability,
		GrantedAt:          grant.GrantedAt,
		GrantedBy:          grant.GrantedBy,
		DisclaimerAccepted: grant.DisclaimerAccepted,
		RevokedAt:          grant.RevokedAt,
	}
}

func grantDTOs(grants []entities.PermissionGrant) []httptransport.PermissionGrantDTO {
	items := make([]httptransport.PermissionGrantDTO, 0, len(grants))
	for _, grant := range grants {
		items = append(items, grantDTO(grant))
	}
	return items
}
