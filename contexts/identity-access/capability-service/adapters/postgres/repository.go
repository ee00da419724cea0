package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/ports"
	"relaycreator/internal/shared/events"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	// Partial unique indexes backing the single-pending / single-active
	// invariants:
	//   CREATE UNIQUE INDEX permission_requests_pending_unique
	//     ON permission_requests (user_id, capability) WHERE status = 'pending';
	//   CREATE UNIQUE INDEX permission_grants_active_unique
	//     ON permission_grants (user_id, capability) WHERE revoked_at IS NULL;
	pendingRequestConstraint = "permission_requests_pending_unique"
	activeGrantConstraint    = "permission_grants_active_unique"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var row userModel
	err := r.db.WithContext(ctx).
		Select("admin").
		Where("user_id = ?", userID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.Admin, nil
}

func (r *Repository) RelayCounts(ctx context.Context, userID string) (int, int, error) {
	var owned int64
	if err := r.db.WithContext(ctx).
		Model(&relayModel{}).
		Where("owner_id = ?", userID).
		Count(&owned).
		Error; err != nil {
		return 0, 0, err
	}
	var moderated int64
	if err := r.db.WithContext(ctx).
		Model(&relayModeratorModel{}).
		Where("user_id = ?", userID).
		Count(&moderated).
		Error; err != nil {
		return 0, 0, err
	}
	return int(owned), int(moderated), nil
}

func (r *Repository) CreateRequest(ctx context.Context, input ports.SubmitRequestInput) (entities.PermissionRequest, error) {
	row := permissionRequestModel{
		RequestID:  input.RequestID,
		UserID:     input.UserID,
		Capability: input.Capability,
		Reason:     input.Reason,
		Status:     string(entities.RequestStatusPending),
		CreatedAt:  input.CreatedAt.UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&permissionGrantModel{}).
			Where("user_id = ? AND capability = ? AND revoked_at IS NULL", input.UserID, input.Capability).
			Count(&active).
			Error; err != nil {
			return err
		}
		if active > 0 {
			return domainerrors.ErrGrantAlreadyActive
		}

		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) && constraintName(err) == pendingRequestConstraint {
				return domainerrors.ErrPendingRequestExists
			}
			return err
		}
		return appendOutbox(tx, input.OutboxID, "permission_request", input.RequestID, map[string]string{
			"user_id":     input.UserID,
			"capability":  input.Capability,
			"action_type": "request_submitted",
		}, input.CreatedAt.UTC())
	})
	if err != nil {
		return entities.PermissionRequest{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetRequest(ctx context.Context, requestID string) (entities.PermissionRequest, error) {
	var row permissionRequestModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.PermissionRequest{}, domainerrors.ErrRequestNotFound
		}
		return entities.PermissionRequest{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) DecideRequest(ctx context.Context, input ports.DecideRequestInput) (ports.DecisionResult, error) {
	var result ports.DecisionResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		decidedAt := input.DecidedAt.UTC()
		update := tx.Model(&permissionRequestModel{}).
			Where("request_id = ? AND status = ?", input.RequestID, string(entities.RequestStatusPending)).
			Updates(map[string]any{
				"status":        string(input.Decision),
				"decided_at":    decidedAt,
				"decided_by":    input.DeciderID,
				"decision_note": input.Note,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			var existing permissionRequestModel
			if err := tx.Where("request_id = ?", input.RequestID).First(&existing).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domainerrors.ErrRequestNotFound
				}
				return err
			}
			return domainerrors.ErrRequestAlreadyDecided
		}

		var row permissionRequestModel
		if err := tx.Where("request_id = ?", input.RequestID).First(&row).Error; err != nil {
			return err
		}
		result.Request = row.toEntity()
		action := "request_denied"

		if input.Decision == entities.RequestStatusApproved {
			grantRow := permissionGrantModel{
				GrantID:            input.GrantID,
				UserID:             row.UserID,
				Capability:         row.Capability,
				GrantedAt:          decidedAt,
				GrantedBy:          input.DeciderID,
				DisclaimerAccepted: input.GrantDisclaimerAccepted,
			}
			if err := tx.Create(&grantRow).Error; err != nil {
				if isUniqueViolation(err) && constraintName(err) == activeGrantConstraint {
					return domainerrors.ErrGrantAlreadyActive
				}
				return err
			}
			grant := grantRow.toEntity()
			result.Grant = &grant
			action = "request_approved"
		}

		return appendOutbox(tx, input.OutboxID, "permission_request", input.RequestID, map[string]string{
			"user_id":     row.UserID,
			"capability":  row.Capability,
			"action_type": action,
		}, decidedAt)
	})
	if err != nil {
		return ports.DecisionResult{}, err
	}
	return result, nil
}

func (r *Repository) ListRequestsByStatus(ctx context.Context, status entities.RequestStatus) ([]entities.PermissionRequest, error) {
	var rows []permissionRequestModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at DESC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return requestEntities(rows), nil
}

func (r *Repository) ListRequestsForUser(ctx context.Context, userID string) ([]entities.PermissionRequest, error) {
	var rows []permissionRequestModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return requestEntities(rows), nil
}

func (r *Repository) CreateGrant(ctx context.Context, input ports.GrantInput) (entities.PermissionGrant, error) {
	row := permissionGrantModel{
		GrantID:            input.GrantID,
		UserID:             input.UserID,
		Capability:         input.Capability,
		GrantedAt:          input.GrantedAt.UTC(),
		GrantedBy:          input.GrantedBy,
		DisclaimerAccepted: input.DisclaimerAccepted,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) && constraintName(err) == activeGrantConstraint {
				return domainerrors.ErrGrantAlreadyActive
			}
			return err
		}
		return appendOutbox(tx, input.OutboxID, "permission_grant", input.GrantID, map[string]string{
			"user_id":     input.UserID,
			"capability":  input.Capability,
			"action_type": "grant_assigned",
		}, input.GrantedAt.UTC())
	})
	if err != nil {
		return entities.PermissionGrant{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) AcceptDisclaimer(ctx context.Context, userID string, capability string, _ time.Time) (entities.PermissionGrant, error) {
	var row permissionGrantModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Matched-row count makes re-acceptance a no-op rather than an error.
		update := tx.Model(&permissionGrantModel{}).
			Where("user_id = ? AND capability = ? AND revoked_at IS NULL", userID, capability).
			Update("disclaimer_accepted", true)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return domainerrors.ErrGrantNotFound
		}
		return tx.Where("user_id = ? AND capability = ? AND revoked_at IS NULL", userID, capability).
			First(&row).
			Error
	})
	if err != nil {
		return entities.PermissionGrant{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) RevokeGrant(ctx context.Context, input ports.RevokeInput) (entities.PermissionGrant, bool, error) {
	var row permissionGrantModel
	revoked := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND capability = ? AND revoked_at IS NULL", input.UserID, input.Capability).
			First(&row).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		revokedAt := input.RevokedAt.UTC()
		if err := tx.Model(&permissionGrantModel{}).
			Where("grant_id = ?", row.GrantID).
			Update("revoked_at", revokedAt).
			Error; err != nil {
			return err
		}
		row.RevokedAt = &revokedAt
		revoked = true
		return appendOutbox(tx, input.OutboxID, "permission_grant", row.GrantID, map[string]string{
			"user_id":     input.UserID,
			"capability":  input.Capability,
			"actor_id":    input.RevokedBy,
			"action_type": "grant_revoked",
		}, revokedAt)
	})
	if err != nil {
		return entities.PermissionGrant{}, false, err
	}
	if !revoked {
		return entities.PermissionGrant{}, false, nil
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ActiveGrant(ctx context.Context, userID string, capability string) (entities.PermissionGrant, bool, error) {
	var row permissionGrantModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND capability = ? AND revoked_at IS NULL", userID, capability).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.PermissionGrant{}, false, nil
		}
		return entities.PermissionGrant{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ActiveGrantSnapshots(ctx context.Context, userID string) ([]ports.GrantSnapshot, error) {
	var rows []permissionGrantModel
	if err := r.db.WithContext(ctx).
		Select("capability", "disclaimer_accepted").
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("capability ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]ports.GrantSnapshot, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.GrantSnapshot{
			Capability:         row.Capability,
			DisclaimerAccepted: row.DisclaimerAccepted,
		})
	}
	return items, nil
}

func (r *Repository) ListActiveGrants(ctx context.Context) ([]entities.PermissionGrant, error) {
	var rows []permissionGrantModel
	if err := r.db.WithContext(ctx).
		Where("revoked_at IS NULL").
		Order("granted_at DESC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return grantEntities(rows), nil
}

func (r *Repository) ListGrantsForUser(ctx context.Context, userID string) ([]entities.PermissionGrant, error) {
	var rows []permissionGrantModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return grantEntities(rows), nil
}

func (r *Repository) GetRecord(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}

	return row.toPort(), true, nil
}

func (r *Repository) PutRecord(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:             record.Key,
		Operation:       record.Operation,
		RequestHash:     record.RequestHash,
		ResponsePayload: record.ResponsePayload,
		ExpiresAt:       record.ExpiresAt.UTC(),
	}
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", record.Key).
		First(&existing).
		Error; err != nil {
		return err
	}
	if existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:  row.OutboxID,
			EventType: row.EventType,
			Payload:   append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("outbox record not found")
	}
	return nil
}

type permissionRequestModel struct {
	RequestID    string     `gorm:"column:request_id;primaryKey"`
	UserID       string     `gorm:"column:user_id"`
	Capability   string     `gorm:"column:capability"`
	Reason       string     `gorm:"column:reason"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	DecidedAt    *time.Time `gorm:"column:decided_at"`
	DecidedBy    string     `gorm:"column:decided_by"`
	DecisionNote string     `gorm:"column:decision_note"`
}

func (permissionRequestModel) TableName() string {
	return "permission_requests"
}

func (m permissionRequestModel) toEntity() entities.PermissionRequest {
	request := entities.PermissionRequest{
		RequestID:    m.RequestID,
		UserID:       m.UserID,
		Capability:   m.Capability,
		Reason:       m.Reason,
		Status:       entities.RequestStatus(m.Status),
		CreatedAt:    m.CreatedAt.UTC(),
		DecidedBy:    m.DecidedBy,
		DecisionNote: m.DecisionNote,
	}
	if m.DecidedAt != nil {
		decidedAt := m.DecidedAt.UTC()
		request.DecidedAt = &decidedAt
	}
	return request
}

type permissionGrantModel struct {
	GrantID            string     `gorm:"column:grant_id;primaryKey"`
	UserID             string     `gorm:"column:user_id"`
	Capability         string     `gorm:"column:capability"`
	GrantedAt          time.Time  `gorm:"column:granted_at"`
	GrantedBy          string     `gorm:"column:granted_by"`
	DisclaimerAccepted bool       `gorm:"column:disclaimer_accepted"`
	RevokedAt          *time.Time `gorm:"column:revoked_at"`
}

func (permissionGrantModel) TableName() string {
	return "permission_grants"
}

func (m permissionGrantModel) toEntity() entities.PermissionGrant {
	grant := entities.PermissionGrant{
		GrantID:            m.GrantID,
		UserID:             m.UserID,
		Capability:         m.Capability,
		GrantedAt:          m.GrantedAt.UTC(),
		GrantedBy:          m.GrantedBy,
		DisclaimerAccepted: m.DisclaimerAccepted,
	}
	if m.RevokedAt != nil {
		revokedAt := m.RevokedAt.UTC()
		grant.RevokedAt = &revokedAt
	}
	return grant
}

type userModel struct {
	UserID string `gorm:"column:user_id;primaryKey"`
	Admin  bool   `gorm:"column:admin"`
}

func (userModel) TableName() string {
	return "users"
}

type relayModel struct {
	RelayID string `gorm:"column:relay_id;primaryKey"`
	OwnerID string `gorm:"column:owner_id"`
}

func (relayModel) TableName() string {
	return "relays"
}

type relayModeratorModel struct {
	RelayID string `gorm:"column:relay_id;primaryKey"`
	UserID  string `gorm:"column:user_id;primaryKey"`
}

func (relayModeratorModel) TableName() string {
	return "relay_moderators"
}

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	Operation       string    `gorm:"column:operation"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "capability_idempotency"
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:             m.Key,
		Operation:       m.Operation,
		RequestHash:     m.RequestHash,
		ResponsePayload: m.ResponsePayload,
		ExpiresAt:       m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID    string     `gorm:"column:outbox_id;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	Payload     []byte     `gorm:"column:payload"`
	Status      string     `gorm:"column:status"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "capability_outbox"
}

func requestEntities(rows []permissionRequestModel) []entities.PermissionRequest {
	items := make([]entities.PermissionRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func grantEntities(rows []permissionGrantModel) []entities.PermissionGrant {
	items := make([]entities.PermissionGrant, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func appendOutbox(tx *gorm.DB, outboxID string, entityType string, entityID string, payload map[string]string, createdAt time.Time) error {
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
	row := outboxModel{
		OutboxID:  outboxID,
		EventType: "capability.changed",
		Payload:   body,
		Status:    outboxStatusPending,
		CreatedAt: createdAt,
	}
	return tx.Create(&row).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
