package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "relaycreator/contexts/identity-access/capability-service/application"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// OutboxRelay drains pending capability-change events to the bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.CapabilityChangedPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("capability outbox list failed",
			"event", "capability_outbox_list_failed",
			"module", "identity-access/capability-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.CapabilityChangedEvent
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			return err
		}
		if err := r.Publisher.PublishCapabilityChanged(ctx, event); err != nil {
			logger.Error("capability outbox publish failed",
				"event", "capability_outbox_publish_failed",
				"module", "identity-access/capability-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			return err
		}
	}
	return nil
}
