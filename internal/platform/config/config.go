package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName         string
	HTTPPort            string
	PostgresDSN         string
	PostgresPingTimeout time.Duration
	RedisAddr           string
	KafkaBrokers        []string

	PermissionTypes    map[string]string
	IdempotencyTTL     time.Duration
	CapabilityCacheTTL time.Duration
	OutboxBatchSize    int
	OutboxInterval     time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "relaycreator"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}

	types, err := permissionTypes(os.Getenv("PERMISSION_TYPES_JSON"))
	if err != nil {
		return Config{}, err
	}

	idempotencyTTL, err := envDuration("IDEMPOTENCY_TTL", 7*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := envDuration("CAPABILITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	outboxInterval, err := envDuration("OUTBOX_INTERVAL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	pingTimeout, err := envDuration("POSTGRES_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName:         service,
		HTTPPort:            port,
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		PostgresPingTimeout: pingTimeout,
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        brokers,

		PermissionTypes:    types,
		IdempotencyTTL:     idempotencyTTL,
		CapabilityCacheTTL: cacheTTL,
		OutboxBatchSize:    100,
		OutboxInterval:     outboxInterval,
	}, nil
}

// permissionTypes parses the optional catalog override. The value maps
// capability name to disclaimer text; an empty disclaimer means none required.
func permissionTypes(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var types map[string]string
	if err := json.Unmarshal([]byte(raw), &types); err != nil {
		return nil, fmt.Errorf("parse PERMISSION_TYPES_JSON: %w", err)
	}
	return types, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}
