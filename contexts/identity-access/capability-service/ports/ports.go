package ports

import (
	"context"
	"time"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	"relaycreator/internal/shared/events"
)

// Clock abstracts current time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID generation for ledger/outbox rows.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// IdentityDirectory is the external identity collaborator. It answers the
// super-admin flag for an already-authenticated user id.
type IdentityDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RelayInventory is the external relay-inventory collaborator feeding the
// tier classifier.
type RelayInventory interface {
	RelayCounts(ctx context.Context, userID string) (owned int, moderated int, err error)
}

// GrantSnapshot is the cache-friendly projection of one active grant.
type GrantSnapshot struct {
	Capability         string `json:"capability"`
	DisclaimerAccepted bool   `json:"disclaimer_accepted"`
}

// CapabilityCache stores per-user active-grant snapshots with TTL semantics.
type CapabilityCache interface {
	Get(ctx context.Context, userID string, now time.Time) ([]GrantSnapshot, bool, error)
	Set(ctx context.Context, userID string, snapshots []GrantSnapshot, expiresAt time.Time) error
	Invalidate(ctx context.Context, userID string) error
}

// IdempotencyRecord stores request hash and previous response payload.
type IdempotencyRecord struct {
	Key             string
	Operation       string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

// IdempotencyStore guarantees replay/conflict behavior for mutating endpoints.
type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
}

// SubmitRequestInput is persisted atomically with its outbox record.
type SubmitRequestInput struct {
	RequestID  string
	OutboxID   string
	UserID     string
	Capability string
	Reason     string
	CreatedAt  time.Time
}

// DecideRequestInput carries the terminal transition plus the grant row
// created alongside an approval. GrantDisclaimerAccepted is the initial
// gate state derived from the registry by the caller.
type DecideRequestInput struct {
	RequestID               string
	Decision                entities.RequestStatus
	DeciderID               string
	Note                    string
	GrantID                 string
	OutboxID                string
	DecidedAt               time.Time
	GrantDisclaimerAccepted bool
}

// DecisionResult is returned by DecideRequest. Grant is nil on denial.
type DecisionResult struct {
	Request entities.PermissionRequest
	Grant   *entities.PermissionGrant
}

// GrantInput is persisted atomically with its outbox record.
type GrantInput struct {
	GrantID            string
	OutboxID           string
	UserID             string
	Capability         string
	GrantedBy          string
	GrantedAt          time.Time
	DisclaimerAccepted bool
}

// RevokeInput captures revoke metadata and audit context.
type RevokeInput struct {
	OutboxID   string
	UserID     string
	Capability string
	RevokedBy  string
	RevokedAt  time.Time
}

// Repository is the write/read boundary for the request and grant ledgers.
// Implementations serialize mutations per (user, capability): CreateRequest
// and CreateGrant fail with the conflict errors instead of creating a
// second pending/active row, and DecideRequest couples the approval with
// its grant in one atomic unit.
type Repository interface {
	CreateRequest(ctx context.Context, input SubmitRequestInput) (entities.PermissionRequest, error)
	GetRequest(ctx context.Context, requestID string) (entities.PermissionRequest, error)
	DecideRequest(ctx context.Context, input DecideRequestInput) (DecisionResult, error)
	ListRequestsByStatus(ctx context.Context, status entities.RequestStatus) ([]entities.PermissionRequest, error)
	ListRequestsForUser(ctx context.Context, userID string) ([]entities.PermissionRequest, error)

	CreateGrant(ctx context.Context, input GrantInput) (entities.PermissionGrant, error)
	AcceptDisclaimer(ctx context.Context, userID string, capability string, acceptedAt time.Time) (entities.PermissionGrant, error)
	RevokeGrant(ctx context.Context, input RevokeInput) (entities.PermissionGrant, bool, error)
	ActiveGrant(ctx context.Context, userID string, capability string) (entities.PermissionGrant, bool, error)
	ActiveGrantSnapshots(ctx context.Context, userID string) ([]GrantSnapshot, error)
	ListActiveGrants(ctx context.Context) ([]entities.PermissionGrant, error)
	ListGrantsForUser(ctx context.Context, userID string) ([]entities.PermissionGrant, error)
}

// OutboxMessage represents a pending relay message.
type OutboxMessage struct {
	OutboxID  string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// OutboxRepository supports worker relay polling and acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// CapabilityChangedEvent reuses the canonical envelope shape.
type CapabilityChangedEvent = events.Envelope

// CapabilityChangedPublisher emits capability change events to the bus adapter.
type CapabilityChangedPublisher interface {
	PublishCapabilityChanged(ctx context.Context, event CapabilityChangedEvent) error
}
