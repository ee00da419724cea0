package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

func submitInput(requestID string, userID string, capability string, at time.Time) ports.SubmitRequestInput {
	return ports.SubmitRequestInput{
		RequestID:  requestID,
		OutboxID:   "outbox-" + requestID,
		UserID:     userID,
		Capability: capability,
		CreatedAt:  at,
	}
}

func TestStoreRejectsSecondPendingRequest(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	if _, err := store.CreateRequest(context.Background(), submitInput("req-1", "user-1", "relay_ops", now)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := store.CreateRequest(context.Background(), submitInput("req-2", "user-1", "relay_ops", now))
	if !errors.Is(err, domainerrors.ErrPendingRequestExists) {
		t.Fatalf("expected pending conflict, got %v", err)
	}

	if _, err := store.CreateRequest(context.Background(), submitInput("req-3", "user-1", "directory_mod", now)); err != nil {
		t.Fatalf("different capability should not conflict: %v", err)
	}
}

func TestStoreDecideRequestCreatesGrantOnce(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	if _, err := store.CreateRequest(context.Background(), submitInput("req-1", "user-1", "relay_ops", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := store.DecideRequest(context.Background(), ports.DecideRequestInput{
		RequestID: "req-1",
		Decision:  entities.RequestStatusApproved,
		DeciderID: "admin-1",
		GrantID:   "grant-1",
		OutboxID:  "outbox-decide-1",
		DecidedAt: now,
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if result.Grant == nil || result.Grant.GrantID != "grant-1" {
		t.Fatalf("expected grant created on approval")
	}
	if result.Request.Status != entities.RequestStatusApproved {
		t.Fatalf("expected approved status, got %s", result.Request.Status)
	}

	_, err = store.DecideRequest(context.Background(), ports.DecideRequestInput{
		RequestID: "req-1",
		Decision:  entities.RequestStatusDenied,
		DeciderID: "admin-1",
		OutboxID:  "outbox-decide-2",
		DecidedAt: now,
	})
	if !errors.Is(err, domainerrors.ErrRequestAlreadyDecided) {
		t.Fatalf("expected already decided, got %v", err)
	}
}

func TestStoreCreateGrantRejectsSecondActive(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	grantInput := ports.GrantInput{
		GrantID:    "grant-1",
		OutboxID:   "outbox-grant-1",
		UserID:     "user-1",
		Capability: "relay_ops",
		GrantedAt:  now,
		GrantedBy:  "admin-1",
	}
	if _, err := store.CreateGrant(context.Background(), grantInput); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}

	grantInput.GrantID = "grant-2"
	grantInput.OutboxID = "outbox-grant-2"
	_, err := store.CreateGrant(context.Background(), grantInput)
	if !errors.Is(err, domainerrors.ErrGrantAlreadyActive) {
		t.Fatalf("expected active grant conflict, got %v", err)
	}

	if _, revoked, err := store.RevokeGrant(context.Background(), ports.RevokeInput{
		OutboxID:   "outbox-revoke-1",
		UserID:     "user-1",
		Capability: "relay_ops",
		RevokedAt:  now,
	}); err != nil || !revoked {
		t.Fatalf("revoke failed: revoked=%v err=%v", revoked, err)
	}

	grantInput.GrantID = "grant-3"
	grantInput.OutboxID = "outbox-grant-3"
	if _, err := store.CreateGrant(context.Background(), grantInput); err != nil {
		t.Fatalf("re-grant after revoke failed: %v", err)
	}
}

func TestStoreAcceptDisclaimerIsIdempotent(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	if _, err := store.CreateGrant(context.Background(), ports.GrantInput{
		GrantID:    "grant-1",
		OutboxID:   "outbox-grant-1",
		UserID:     "user-1",
		Capability: "coinos_admin",
		GrantedAt:  now,
		GrantedBy:  "admin-1",
	}); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	first, err := store.AcceptDisclaimer(context.Background(), "user-1", "coinos_admin", now)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if !first.DisclaimerAccepted {
		t.Fatalf("expected disclaimer accepted")
	}

	second, err := store.AcceptDisclaimer(context.Background(), "user-1", "coinos_admin", now)
	if err != nil {
		t.Fatalf("re-accept failed: %v", err)
	}
	if !second.DisclaimerAccepted {
		t.Fatalf("expected disclaimer still accepted")
	}

	if _, err := store.AcceptDisclaimer(context.Background(), "user-2", "coinos_admin", now); !errors.Is(err, domainerrors.ErrGrantNotFound) {
		t.Fatalf("expected grant not found, got %v", err)
	}
}

func TestStoreRevokeWithoutActiveGrantIsNoOp(t *testing.T) {
	store := NewStore()

	_, revoked, err := store.RevokeGrant(context.Background(), ports.RevokeInput{
		OutboxID:   "outbox-revoke-1",
		UserID:     "user-1",
		Capability: "relay_ops",
		RevokedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("no-op revoke returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected no-op revoke")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("no-op revoke must not emit events, got %d", len(pending))
	}
}

func TestStoreIdempotencyRecordsExpire(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	record := ports.IdempotencyRecord{
		Key:         "key-1",
		Operation:   "submit_request",
		RequestHash: "hash-1",
		ExpiresAt:   now.Add(time.Minute),
	}
	if err := store.PutRecord(context.Background(), record); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if _, found, err := store.GetRecord(context.Background(), "key-1", now); err != nil || !found {
		t.Fatalf("expected live record, found=%v err=%v", found, err)
	}
	if _, found, _ := store.GetRecord(context.Background(), "key-1", now.Add(2*time.Minute)); found {
		t.Fatalf("expected record expired")
	}

	record.RequestHash = "hash-2"
	if err := store.PutRecord(context.Background(), record); err != nil {
		t.Fatalf("put after expiry should succeed: %v", err)
	}
}

func TestStoreCacheExpiresByDeadline(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	snapshots := []ports.GrantSnapshot{{Capability: "relay_ops", DisclaimerAccepted: true}}
	if err := store.Set(context.Background(), "user-1", snapshots, now.Add(time.Minute)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	cached, found, err := store.Get(context.Background(), "user-1", now)
	if err != nil || !found {
		t.Fatalf("expected cache hit, found=%v err=%v", found, err)
	}
	if len(cached) != 1 || cached[0].Capability != "relay_ops" {
		t.Fatalf("unexpected snapshots %v", cached)
	}

	if _, found, _ := store.Get(context.Background(), "user-1", now.Add(2*time.Minute)); found {
		t.Fatalf("expected cache expired")
	}
}

func TestStoreOutboxLifecycle(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	if _, err := store.CreateRequest(context.Background(), submitInput("req-1", "user-1", "relay_ops", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending event, got %d", len(pending))
	}
	if pending[0].EventType != "capability.changed" {
		t.Fatalf("unexpected event type %s", pending[0].EventType)
	}

	if err := store.MarkOutboxPublished(context.Background(), pending[0].OutboxID, now); err != nil {
		t.Fatalf("mark published failed: %v", err)
	}

	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d", len(pending))
	}
}
