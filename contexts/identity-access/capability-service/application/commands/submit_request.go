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

// SubmitRequestCommand contains transport-agnostic input for a submission.
type SubmitRequestCommand struct {
	IdempotencyKey string
	UserID         string
	Capability     string
	Reason         string
}

// SubmitRequestResult carries the created request and replay status.
type SubmitRequestResult struct {
	Request  entities.PermissionRequest `json:"request"`
	Replayed bool                       `json:"replayed"`
}

// SubmitRequestUseCase coordinates the idempotent submission workflow.
type SubmitRequestUseCase struct {
	Repository     ports.Repository
	Registry       services.Registry
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Execute validates the capability against the registry and creates a
// pending request. The duplicate-pending and already-granted checks happen
// atomically inside the repository.
func (u SubmitRequestUseCase) Execute(ctx context.Context, cmd SubmitRequestCommand) (SubmitRequestResult, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("submit request started",
		"event", "capability_submit_started",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"capability", cmd.Capability,
	)

	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return SubmitRequestResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return SubmitRequestResult{}, domainerrors.ErrInvalidUserID
	}
	if strings.TrimSpace(cmd.Capability) == "" {
		return SubmitRequestResult{}, domainerrors.ErrInvalidCapability
	}
	if !u.Registry.Contains(cmd.Capability) {
		return SubmitRequestResult{}, domainerrors.ErrUnknownPermissionType
	}

	requestHash, err := hashRequest(struct {
		UserID     string `json:"user_id"`
		Capability string `json:"capability"`
		Reason     string `json:"reason"`
	}{
		UserID:     cmd.UserID,
		Capability: cmd.Capability,
		Reason:     cmd.Reason,
	})
	if err != nil {
		return SubmitRequestResult{}, err
	}

	idempotencyKey := "capability_idempotency:" + cmd.IdempotencyKey
	now := u.now()

	existing, found, err := u.Idempotency.GetRecord(ctx, idempotencyKey, now)
	if err != nil {
		logger.Error("submit request idempotency lookup failed",
			"event", "capability_submit_idempotency_get_failed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
			"error", err.Error(),
		)
		return SubmitRequestResult{}, err
	}
	if found {
		if existing.RequestHash != requestHash {
			return SubmitRequestResult{}, domainerrors.ErrIdempotencyConflict
		}
		var replay SubmitRequestResult
		if err := json.Unmarshal(existing.ResponsePayload, &replay); err != nil {
			return SubmitRequestResult{}, err
		}
		replay.Replayed = true
		logger.Info("submit request replayed",
			"event", "capability_submit_replayed",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
		)
		return replay, nil
	}

	requestID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SubmitRequestResult{}, err
	}
	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SubmitRequestResult{}, err
	}

	request, err := u.Repository.CreateRequest(ctx, ports.SubmitRequestInput{
		RequestID:  requestID,
		OutboxID:   outboxID,
		UserID:     cmd.UserID,
		Capability: cmd.Capability,
		Reason:     strings.TrimSpace(cmd.Reason),
		CreatedAt:  now,
	})
	if err != nil {
		logger.Warn("submit request rejected",
			"event", "capability_submit_rejected",
			"module", "identity-access/capability-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"capability", cmd.Capability,
			"error", err.Error(),
		)
		return SubmitRequestResult{}, err
	}

	result := SubmitRequestResult{Request: request}
	responsePayload, err := json.Marshal(result)
	if err != nil {
		return SubmitRequestResult{}, err
	}
	if err := u.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             idempotencyKey,
		Operation:       "submit_request",
		RequestHash:     requestHash,
		ResponsePayload: responsePayload,
		ExpiresAt:       now.Add(u.idempotencyTTL()),
	}); err != nil {
		return SubmitRequestResult{}, err
	}

	logger.Info("submit request completed",
		"event", "capability_submit_completed",
		"module", "identity-access/capability-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"capability", cmd.Capability,
		"request_id", request.RequestID,
	)
	return result, nil
}

func (u SubmitRequestUseCase) idempotencyTTL() time.Duration {
	if u.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return u.IdempotencyTTL
}

func (u SubmitRequestUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
