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

	"github.com/vladislavdragonenkov/grubdash/internal/app"
)

const (
	envHTTPAddr            = "GRUBDASH_HTTP_ADDR"
	envMetricsAddr         = "GRUBDASH_METRICS_ADDR"
	envLogLevel            = "GRUBDASH_LOG_LEVEL"
	envStorageDriver       = "GRUBDASH_STORAGE_DRIVER"
	envPostgresDSN         = "GRUBDASH_POSTGRES_DSN"
	envPostgresAutoMigrate = "GRUBDASH_POSTGRES_AUTO_MIGRATE"
	envSeedDefaults        = "GRUBDASH_SEED_DEFAULTS"
	envSeedFile            = "GRUBDASH_SEED_FILE"
	envEventsBroker        = "GRUBDASH_EVENTS_BROKER"
	envKafkaBrokers        = "GRUBDASH_KAFKA_BROKERS"
	envKafkaTopic          = "GRUBDASH_KAFKA_TOPIC"
	envRabbitMQURL         = "GRUBDASH_RABBITMQ_URL"
	envRabbitMQExchange    = "GRUBDASH_RABBITMQ_EXCHANGE"
	envOutboxPollInterval  = "GRUBDASH_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "GRUBDASH_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "GRUBDASH_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "GRUBDASH_OUTBOX_RETRY_DELAY"
	envShutdownTimeout     = "GRUBDASH_SHUTDOWN_TIMEOUT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv читает конфигурацию; некорректные значения заменяются
// значениями по умолчанию и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	if v, ok := lookupTrimmed(lookup, envHTTPAddr); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envLogLevel); ok {
		if _, err := log.ParseLevel(v); err != nil {
			warn(envLogLevel, v, err)
		} else {
			cfg.LogLevel = strings.ToLower(v)
		}
	}
	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envSeedDefaults); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envSeedDefaults, v, err)
		} else {
			cfg.SeedDefaults = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envSeedFile); ok {
		cfg.SeedFile = v
	}
	if v, ok := lookupTrimmed(lookup, envEventsBroker); ok {
		cfg.EventsBroker = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = parseBrokers(v)
	}
	if v, ok := lookupTrimmed(lookup, envKafkaTopic); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := lookupTrimmed(lookup, envRabbitMQURL); ok {
		cfg.RabbitMQURL = v
	}
	if v, ok := lookupTrimmed(lookup, envRabbitMQExchange); ok {
		cfg.RabbitMQExchange = v
	}

	positiveDuration := func(d time.Duration) bool { return d > 0 }
	if v, ok := lookupTrimmed(lookup, envOutboxPollInterval); ok {
		if parsed, err := parseDuration(v, positiveDuration, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, v, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxBatchSize); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envOutboxBatchSize, v, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxMaxAttempts); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envOutboxMaxAttempts, v, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxRetryDelay); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, v, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envShutdownTimeout); ok {
		if parsed, err := parseDuration(v, positiveDuration, "must be > 0"); err != nil {
			warn(envShutdownTimeout, v, err)
		} else {
			cfg.ShutdownTimeout = parsed
		}
	}

	return cfg, warnings
}

// lookupTrimmed возвращает значение переменной без пробелов; пустое значение считается отсутствующим.
func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", value)
	}
}

func parseInt(value string, valid func(int) bool, constraint string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if !valid(parsed) {
		return 0, errors.New(constraint)
	}
	return parsed, nil
}

func parseDuration(value string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if !valid(parsed) {
		return 0, errors.New(constraint)
	}
	return parsed, nil
}

// parseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func parseBrokers(value string) []string {
	var brokers []string
	for _, broker := range strings.Split(value, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func main() {
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"events_broker":  cfg.EventsBroker,
	}).Info("запускаем GrubDash")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("GrubDash остановлен")
}
