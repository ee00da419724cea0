package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	capability "relaycreator/contexts/identity-access/capability-service"
	capabilitymemory "relaycreator/contexts/identity-access/capability-service/adapters/memory"
	capabilitypostgres "relaycreator/contexts/identity-access/capability-service/adapters/postgres"
	capabilityredis "relaycreator/contexts/identity-access/capability-service/adapters/redis"
	workerapp "relaycreator/contexts/identity-access/capability-service/application/workers"
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
	"relaycreator/contexts/identity-access/capability-service/ports"
	"relaycreator/internal/platform/config"
	"relaycreator/internal/platform/db"
	"relaycreator/internal/platform/httpserver"
	"relaycreator/internal/platform/messaging"
	"relaycreator/internal/shared/events"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const capabilityChangedTopic = "capability.changed"

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	bus          *messaging.Kafka
	outboxRelay  workerapp.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN, cfg.PostgresPingTimeout)
	if err != nil {
		return nil, err
	}

	repo := capabilitypostgres.NewRepository(pg.DB, logger)
	module := capability.NewModule(capability.Dependencies{
		Repository:         repo,
		Identity:           repo,
		Inventory:          repo,
		Idempotency:        repo,
		CapabilityCache:    buildCache(cfg, logger),
		Registry:           buildRegistry(cfg),
		Clock:              capabilitypostgres.SystemClock{},
		IDGenerator:        capabilitypostgres.UUIDGenerator{},
		IdempotencyTTL:     cfg.IdempotencyTTL,
		CapabilityCacheTTL: cfg.CapabilityCacheTTL,
		Logger:             logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN, cfg.PostgresPingTimeout)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := capabilitypostgres.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		bus:      kafka,
		outboxRelay: workerapp.OutboxRelay{
			Outbox: repo,
			Publisher: capabilityPublisher{
				bus:   kafka,
				topic: capabilityChangedTopic,
			},
			Clock:     capabilitypostgres.SystemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		pollInterval: cfg.OutboxInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.bus.Subscribe(ctx, capabilityChangedTopic, "capability-audit", w.consumeCapabilityChanged); err != nil {
		return err
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// consumeCapabilityChanged records relayed capability events in the worker
// log as an audit trail.
func (w *WorkerApp) consumeCapabilityChanged(_ context.Context, event events.Envelope) error {
	w.logger.Info("capability change observed",
		"event", "capability_audit_observed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"entity_id", event.EntityID,
	)
	return nil
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

// capabilityPublisher binds the outbox relay to one bus topic.
type capabilityPublisher struct {
	bus   *messaging.Kafka
	topic string
}

func (p capabilityPublisher) PublishCapabilityChanged(ctx context.Context, event events.Envelope) error {
	return p.bus.Publish(ctx, p.topic, event)
}

func buildRegistry(cfg config.Config) services.Registry {
	if len(cfg.PermissionTypes) == 0 {
		return services.NewRegistry(services.DefaultCatalog())
	}
	catalog := make([]entities.PermissionType, 0, len(cfg.PermissionTypes))
	for name, disclaimer := range cfg.PermissionTypes {
		catalog = append(catalog, entities.PermissionType{
			Capability:     name,
			DisclaimerText: disclaimer,
		})
	}
	return services.NewRegistry(catalog)
}

// buildCache prefers Redis and falls back to the in-memory store when no
// address is configured.
func buildCache(cfg config.Config, logger *slog.Logger) ports.CapabilityCache {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return capabilitymemory.NewStore()
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	return capabilityredis.NewCache(client, logger)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
