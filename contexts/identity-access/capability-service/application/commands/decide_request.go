package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "relaycreator/contexts/identity-access/capability-service/application"
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// DecideRequestCommand contains transport-agnostic input for a decision.
type DecideRequestCommand struct {
	IdempotencyKey string
	RequestID      string
	Decision       string
	DeciderID      string
	Note           string
}

// DecideRequestResult carries the decided request, the grant created on
// approval (nil on denial), and replay status.
type DecideRequestResult struct {
	Request  entities.PermissionRequest `json:"request"`
	Grant    *entities.PermissionGrant  `json:"grant,omitempty"`
	Replayed bool                       `json:"replayed"`
}

// DecideRequestUseCase coordinates the admin decision workflow. Approval
// and grant creation commit as one repository unit.
type DecideRequestUseCase struct {
	Repository      ports.Repository
	Registry        services.Registry
	Identity        ports.IdentityDirectory
	Idempotency     ports.IdempotencyStore
	CapabilityCache ports.CapabilityCache
	Clock           ports.Clock
	IDGenerator     ports.IDGenerator
	IdempotencyTTL  time.Duration
	Logger          *slog.Logger
}

func (u DecideRequestUseCase) Execute(ctx context.Context, cmd DecideRequestCommand) (DecideRequestResult, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("decide request started",
		"event", "capability_decide_started",
		"module", "identity-access/capability-service",
		"layer", "application",
		"request_id", cmd.RequestID,
		"decider_id", cmd.DeciderID,
		"decision", cmd.Decision,
	)

	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return DecideRequestResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if strings.TrimSpace(cmd.DeciderID) == "" {
		return DecideRequestResult{}, domainerrors.ErrInvalidUserID
	}
	decision := entities.RequestStatus(cmd.Decision)
	if decision != entities.RequestStatusApproved && decision != entities.RequestStatusDenied {
		return DecideRequestResult{}, domainerrors.ErrInvalidDecision
	}

	requestHash, err := hashRequest(struct {
		RequestID string `json:"request_id"`
		Decision  string `json:"decision"`
		DeciderID string `json:"decider_id"`
		Note      string `json:"note"`
	}{
		RequestID: cmd.RequestID,
		Decision:  cmd.Decision,
		DeciderID: cmd.DeciderID,
		Note:      cmd.Note,
	})
	if err != nil {
		return DecideRequestResult{}, err
	}

	idempotencyKey := "capability_idempotency:" + cmd.IdempotencyKey
	now := u.now()

	existing, found, err := u.Idempotency.GetRecord(ctx, idempotencyKey, now)
	if err != nil {
		return DecideRequestResult{}, err
	}
	if found {
		if existing.RequestHash != requestHash {
			return DecideRequestResult{}, domainerrors.ErrIdempotencyConflict
		}
		var replay DecideRequestResult
		if err := json.Unmarshal(existing.ResponsePayload, &replay); err != nil {
			return DecideRequestResult{}, err
		}
		replay.Replayed = true
		return replay, nil
	}

	if err := ensureAdmin(ctx, u.Identity, cmd.DeciderID); err != nil {
		logger.Warn("decide request forbidden",
			"event", "capability_decide_forbidden",
			"module", "identity-access/capability-service",
			"layer", "application",
			"request_id", cmd.RequestID,
			"decider_id", cmd.DeciderID,
		)
		return DecideRequestResult{}, err
	}

	// The read only resolves the capability so the grant's initial gate
	// state can be derived; the pending check re-runs atomically inside
	// DecideRequest.
	request, err := u.Repository.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return DecideRequestResult{}, err
	}
	disclaimer, err := u.Registry.DisclaimerFor(request.Capability)
	if err != nil {
		return DecideRequestResult{}, err
	}

	grantID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return DecideRequestResult{}, err
	}
	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return DecideRequestResult{}, err
	}

	mutation, err := u.Repository.DecideRequest(ctx, ports.DecideRequestInput{
		RequestID:               cmd.RequestID,
		Decision:                decision,
		DeciderID:               cmd.DeciderID,
		Note:                    strings.TrimSpace(cmd.Note),
		GrantID:                 grantID,
		OutboxID:                outboxID,
		DecidedAt:               now,
		GrantDisclaimerAccepted: disclaimer == "",
	})
	if err != nil {
		logger.Error("decide request write failed",
			"event", "capability_decide_write_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"request_id", cmd.RequestID,
			"decider_id", cmd.DeciderID,
			"error", err.Error(),
		)
		return DecideRequestResult{}, err
	}

	if u.CapabilityCache != nil {
		if err := u.CapabilityCache.Invalidate(ctx, mutation.Request.UserID); err != nil {
			logger.Warn("capability cache invalidate failed after decision",
				"event", "capability_cache_invalidation_failed",
				"module", "identity-access/capability-service",
				"layer", "application",
				"user_id", mutation.Request.UserID,
				"error", err.Error(),
			)
		}
	}

	result := DecideRequestResult{
		Request: mutation.Request,
		Grant:   mutation.Grant,
	}
	responsePayload, err := json.Marshal(result)
	if err != nil {
		return DecideRequestResult{}, err
	}
	if err := u.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             idempotencyKey,
		Operation:       "decide_request",
		RequestHash:     requestHash,
		ResponsePayload: responsePayload,
		ExpiresAt:       now.Add(u.idempotencyTTL()),
	}); err != nil {
		return DecideRequestResult{}, err
	}

	logger.Info("decide request completed",
		"event", "capability_decide_completed",
		"module", "identity-access/capability-service",
		"layer", "application",
		"request_id", cmd.RequestID,
		"decider_id", cmd.DeciderID,
		"decision", cmd.Decision,
		"user_id", mutation.Request.UserID,
	)
	return result, nil
}

func (u DecideRequestUseCase) idempotencyTTL() time.Duration {
	if u.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return u.IdempotencyTTL
}

func (u DecideRequestUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
