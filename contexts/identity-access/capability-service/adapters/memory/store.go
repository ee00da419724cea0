package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/ports"
	"relaycreator/internal/shared/events"

	"github.com/google/uuid"
)

// Store is an in-memory adapter implementing the repository, cache,
// idempotency, identity, inventory, and outbox ports. It is intended for
// tests and local development wiring. The single mutex makes every mutation
// a serialized critical section, which subsumes the per-(user, capability)
// serialization the ledgers require.
type Store struct {
	mu sync.RWMutex

	requests map[string]entities.PermissionRequest
	grants   map[string]entities.PermissionGrant

	admins      map[string]bool
	relayCounts map[string][2]int

	idempotency map[string]ports.IdempotencyRecord
	cache       map[string]cacheEntry
	outbox      map[string]outboxRow
}

type cacheEntry struct {
	Snapshots []ports.GrantSnapshot
	ExpiresAt time.Time
}

type outboxRow struct {
	ports.OutboxMessage
	PublishedAt *time.Time
}

// NewStore builds an empty deterministic in-memory adapter.
func NewStore() *Store {
	return &Store{
		requests:    make(map[string]entities.PermissionRequest),
		grants:      make(map[string]entities.PermissionGrant),
		admins:      make(map[string]bool),
		relayCounts: make(map[string][2]int),
		idempotency: make(map[string]ports.IdempotencyRecord),
		cache:       make(map[string]cacheEntry),
		outbox:      make(map[string]outboxRow),
	}
}

// SeedAdmin marks a user as super-admin in the identity directory.
func (s *Store) SeedAdmin(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = true
}

// SeedRelayCounts sets the relay-inventory facts for a user.
func (s *Store) SeedRelayCounts(userID string, owned int, moderated int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayCounts[userID] = [2]int{owned, moderated}
}

func (s *Store) IsAdmin(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[userID], nil
}

func (s *Store) RelayCounts(_ context.Context, userID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := s.relayCounts[userID]
	return counts[0], counts[1], nil
}

func (s *Store) CreateRequest(_ context.Context, input ports.SubmitRequestInput) (entities.PermissionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, request := range s.requests {
		if request.UserID == input.UserID && request.Capability == input.Capability &&
			request.Status == entities.RequestStatusPending {
			return entities.PermissionRequest{}, domainerrors.ErrPendingRequestExists
		}
	}
	for _, grant := range s.grants {
		if grant.UserID == input.UserID && grant.Capability == input.Capability && grant.Active() {
			return entities.PermissionRequest{}, domainerrors.ErrGrantAlreadyActive
		}
	}

	request := entities.PermissionRequest{
		RequestID:  input.RequestID,
		UserID:     input.UserID,
		Capability: input.Capability,
		Reason:     input.Reason,
		Status:     entities.RequestStatusPending,
		CreatedAt:  input.CreatedAt.UTC(),
	}
	s.requests[request.RequestID] = request

	if err := s.appendOutbox(input.OutboxID, "permission_request", request.RequestID, map[string]string{
		"user_id":     input.UserID,
		"capability":  input.Capability,
		"action_type": "request_submitted",
	}, input.CreatedAt.UTC()); err != nil {
		return entities.PermissionRequest{}, err
	}
	return request, nil
}

func (s *Store) GetRequest(_ context.Context, requestID string) (entities.PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[requestID]
	if !ok {
		return entities.PermissionRequest{}, domainerrors.ErrRequestNotFound
	}
	return request, nil
}

func (s *Store) DecideRequest(_ context.Context, input ports.DecideRequestInput) (ports.DecisionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[input.RequestID]
	if !ok {
		return ports.DecisionResult{}, domainerrors.ErrRequestNotFound
	}
	if request.Status != entities.RequestStatusPending {
		return ports.DecisionResult{}, domainerrors.ErrRequestAlreadyDecided
	}

	decidedAt := input.DecidedAt.UTC()
	request.Status = input.Decision
	request.DecidedAt = &decidedAt
	request.DecidedBy = input.DeciderID
	request.DecisionNote = input.Note

	result := ports.DecisionResult{Request: request}
	action := "request_denied"

	if input.Decision == entities.RequestStatusApproved {
		for _, grant := range s.grants {
			if grant.UserID == request.UserID && grant.Capability == request.Capability && grant.Active() {
				return ports.DecisionResult{}, domainerrors.ErrGrantAlreadyActive
			}
		}
		grant := entities.PermissionGrant{
			GrantID:            input.GrantID,
			UserID:             request.UserID,
			Capability:         request.Capability,
			GrantedAt:          decidedAt,
			GrantedBy:          input.DeciderID,
			DisclaimerAccepted: input.GrantDisclaimerAccepted,
		}
		s.grants[grant.GrantID] = grant
		result.Grant = &grant
		action = "request_approved"
	}

	s.requests[request.RequestID] = request

	if err := s.appendOutbox(input.OutboxID, "permission_request", request.RequestID, map[string]string{
		"user_id":     request.UserID,
		"capability":  request.Capability,
		"action_type": action,
	}, decidedAt); err != nil {
		return ports.DecisionResult{}, err
	}
	return result, nil
}

func (s *Store) ListRequestsByStatus(_ context.Context, status entities.RequestStatus) ([]entities.PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.PermissionRequest, 0)
	for _, request := range s.requests {
		if request.Status == status {
			items = append(items, request)
		}
	}
	sortRequests(items)
	return items, nil
}

func (s *Store) ListRequestsForUser(_ context.Context, userID string) ([]entities.PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.PermissionRequest, 0)
	for _, request := range s.requests {
		if request.UserID == userID {
			items = append(items, request)
		}
	}
	sortRequests(items)
	return items, nil
}

func (s *Store) CreateGrant(_ context.Context, input ports.GrantInput) (entities.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, grant := range s.grants {
		if grant.UserID == input.UserID && grant.Capability == input.Capability && grant.Active() {
			return entities.PermissionGrant{}, domainerrors.ErrGrantAlreadyActive
		}
	}

	grant := entities.PermissionGrant{
		GrantID:            input.GrantID,
		UserID:             input.UserID,
		Capability:         input.Capability,
		GrantedAt:          input.GrantedAt.UTC(),
		GrantedBy:          input.GrantedBy,
		DisclaimerAccepted: input.DisclaimerAccepted,
	}
	s.grants[grant.GrantID] = grant

	if err := s.appendOutbox(input.OutboxID, "permission_grant", grant.GrantID, map[string]string{
		"user_id":     input.UserID,
		"capability":  input.Capability,
		"action_type": "grant_assigned",
	}, input.GrantedAt.UTC()); err != nil {
		return entities.PermissionGrant{}, err
	}
	return grant, nil
}

func (s *Store) AcceptDisclaimer(_ context.Context, userID string, capability string, _ time.Time) (entities.PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, grant := range s.grants {
		if grant.UserID == userID && grant.Capability == capability && grant.Active() {
			if !grant.DisclaimerAccepted {
				grant.DisclaimerAccepted = true
				s.grants[id] = grant
			}
			return grant, nil
		}
	}
	return entities.PermissionGrant{}, domainerrors.ErrGrantNotFound
}

func (s *Store) RevokeGrant(_ context.Context, input ports.RevokeInput) (entities.PermissionGrant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, grant := range s.grants {
		if grant.UserID == input.UserID && grant.Capability == input.Capability && grant.Active() {
			revokedAt := input.RevokedAt.UTC()
			grant.RevokedAt = &revokedAt
			s.grants[id] = grant

			if err := s.appendOutbox(input.OutboxID, "permission_grant", grant.GrantID, map[string]string{
				"user_id":     input.UserID,
				"capability":  input.Capability,
				"actor_id":    input.RevokedBy,
				"action_type": "grant_revoked",
			}, revokedAt); err != nil {
				return entities.PermissionGrant{}, false, err
			}
			return grant, true, nil
		}
	}
	return entities.PermissionGrant{}, false, nil
}

func (s *Store) ActiveGrant(_ context.Context, userID string, capability string) (entities.PermissionGrant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, grant := range s.grants {
		if grant.UserID == userID && grant.Capability == capability && grant.Active() {
			return grant, true, nil
		}
	}
	return entities.PermissionGrant{}, false, nil
}

func (s *Store) ActiveGrantSnapshots(_ context.Context, userID string) ([]ports.GrantSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.GrantSnapshot, 0)
	for _, grant := range s.grants {
		if grant.UserID == userID && grant.Active() {
			items = append(items, ports.GrantSnapshot{
				Capability:         grant.Capability,
				DisclaimerAccepted: grant.DisclaimerAccepted,
			})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Capability < items[j].Capability
	})
	return items, nil
}

func (s *Store) ListActiveGrants(_ context.Context) ([]entities.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.PermissionGrant, 0)
	for _, grant := range s.grants {
		if grant.Active() {
			items = append(items, grant)
		}
	}
	sortGrants(items)
	return items, nil
}

func (s *Store) ListGrantsForUser(_ context.Context, userID string) ([]entities.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.PermissionGrant, 0)
	for _, grant := range s.grants {
		if grant.UserID == userID {
			items = append(items, grant)
		}
	}
	sortGrants(items)
	return items, nil
}

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.idempotency[record.Key]
	if exists && existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyConflict
	}
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) Get(_ context.Context, userID string, now time.Time) ([]ports.GrantSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[userID]
	if !ok {
		return nil, false, nil
	}
	if !entry.ExpiresAt.After(now) {
		delete(s.cache, userID)
		return nil, false, nil
	}
	return append([]ports.GrantSnapshot(nil), entry.Snapshots...), true, nil
}

func (s *Store) Set(_ context.Context, userID string, snapshots []ports.GrantSnapshot, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[userID] = cacheEntry{
		Snapshots: append([]ports.GrantSnapshot(nil), snapshots...),
		ExpiresAt: expiresAt.UTC(),
	}
	return nil
}

func (s *Store) Invalidate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, userID)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.PublishedAt == nil {
			rows = append(rows, row.OutboxMessage)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[outboxID]
	if !ok {
		return errors.New("outbox record not found")
	}
	value := publishedAt.UTC()
	row.PublishedAt = &value
	s.outbox[outboxID] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) appendOutbox(outboxID string, entityType string, entityID string, payload map[string]string, createdAt time.Time) error {
	if _, exists := s.outbox[outboxID]; exists {
		return domainerrors.ErrIdempotencyConflict
	}
	body, err := json.Marshal(events.Envelope{
		EventID:        outboxID,
		EventType:      "capability.changed",
		SourceService:  "capability-service",
		OccurredAtUTC:  createdAt,
		EntityType:     entityType,
		EntityID:       entityID,
		PayloadVersion: 1,
		Payload:        payload,
	})
	if err != nil {
		return err
	}
	s.outbox[outboxID] = outboxRow{
		OutboxMessage: ports.OutboxMessage{
			OutboxID:  outboxID,
			EventType: "capability.changed",
			Payload:   body,
			CreatedAt: createdAt,
		},
	}
	return nil
}

func sortRequests(items []entities.PermissionRequest) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].RequestID < items[j].RequestID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func sortGrants(items []entities.PermissionGrant) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].GrantedAt.Equal(items[j].GrantedAt) {
			return items[i].GrantID < items[j].GrantID
		}
		return items[i].GrantedAt.After(items[j].GrantedAt)
	})
}
