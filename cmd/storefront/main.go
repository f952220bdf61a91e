package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envHTTPAddr    = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr    = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr = "STOREFRONT_METRICS_ADDR"

	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"

	envSeedCatalog = "STOREFRONT_SEED_CATALOG"
	envCORSOrigins = "STOREFRONT_CORS_ORIGINS"

	envKafkaBrokers  = "STOREFRONT_KAFKA_BROKERS"
	envKafkaTopic    = "STOREFRONT_KAFKA_TOPIC"
	envKafkaDLQTopic = "STOREFRONT_KAFKA_DLQ_TOPIC"
	envRabbitMQURL   = "STOREFRONT_RABBITMQ_URL"

	envOutboxPollInterval = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending   = "STOREFRONT_OUTBOX_MAX_PENDING"

	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envLogLevel  = "STOREFRONT_LOG_LEVEL"
	envLogFormat = "STOREFRONT_LOG_FORMAT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	if format := readTrimmed(lookup, envLogFormat); strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		if format != "" && !strings.EqualFold(format, "text") {
			warnings = append(warnings, fmt.Sprintf("%s=%q: expected json or text, using text", envLogFormat, format))
		}
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw := readTrimmed(lookup, envLogLevel); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s=%q: %v, using info", envLogLevel, raw, err))
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)

	return warnings
}

// readConfigFromEnv собирает конфигурацию из окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию, а причина попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q: %v", key, raw, err))
	}

	if v := readTrimmed(lookup, envHTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := readTrimmed(lookup, envGRPCAddr); v != "" {
		cfg.GRPCAddr = v
	}
	if v := readTrimmed(lookup, envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}

	if v := readTrimmed(lookup, envStorageDriver); v != "" {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v := readTrimmed(lookup, envPostgresDSN); v != "" {
		cfg.PostgresDSN = v
	}
	if v := readTrimmed(lookup, envPostgresAutoMigrate); v != "" {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v := readTrimmed(lookup, envSeedCatalog); v != "" {
		if parsed, err := parseBool(v); err != nil {
			warn(envSeedCatalog, v, err)
		} else {
			cfg.SeedCatalog = parsed
		}
	}
	if v := readTrimmed(lookup, envCORSOrigins); v != "" {
		cfg.CORSOrigins = v
	}

	if v := readTrimmed(lookup, envKafkaBrokers); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := readTrimmed(lookup, envKafkaTopic); v != "" {
		cfg.KafkaTopic = v
	}
	if v := readTrimmed(lookup, envKafkaDLQTopic); v != "" {
		cfg.KafkaDLQTopic = v
	}
	if v := readTrimmed(lookup, envRabbitMQURL); v != "" {
		cfg.RabbitMQURL = v
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	if v := readTrimmed(lookup, envOutboxPollInterval); v != "" {
		if parsed, err := parseDuration(v, positiveDuration, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, v, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v := readTrimmed(lookup, envOutboxBatchSize); v != "" {
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envOutboxBatchSize, v, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v := readTrimmed(lookup, envOutboxMaxAttempts); v != "" {
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envOutboxMaxAttempts, v, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v := readTrimmed(lookup, envOutboxRetryDelay); v != "" {
		if parsed, err := parseDuration(v, nonNegativeDuration, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, v, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v := readTrimmed(lookup, envOutboxMaxPending); v != "" {
		if parsed, err := parseInt(v, nonNegative, "must be >= 0"); err != nil {
			warn(envOutboxMaxPending, v, err)
		} else {
			cfg.OutboxMaxPending = parsed
		}
	}

	if v := readTrimmed(lookup, envIdempotencyCleanupInterval); v != "" {
		if parsed, err := parseDuration(v, positiveDuration, "must be > 0"); err != nil {
			warn(envIdempotencyCleanupInterval, v, err)
		} else {
			cfg.IdempotencyCleanupInterval = parsed
		}
	}
	if v := readTrimmed(lookup, envIdempotencyCleanupBatchSize); v != "" {
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envIdempotencyCleanupBatchSize, v, err)
		} else {
			cfg.IdempotencyCleanupBatchSize = parsed
		}
	}

	return cfg, warnings
}

func readTrimmed(lookup envLookup, key string) string {
	value, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, errors.New("expected boolean value")
	}
}

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("expected integer: %w", err)
	}
	if !valid(value) {
		return 0, errors.New(constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("expected duration: %w", err)
	}
	if !valid(value) {
		return 0, errors.New(constraint)
	}
	return value, nil
}

func main() {
	logWarnings := setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range append(logWarnings, warnings...) {
		log.WithField("config", "env").Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
