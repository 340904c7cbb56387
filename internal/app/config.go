package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/grubdash/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/grubdash/internal/messaging/rabbitmq"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

const (
	EventsBrokerNone     = "none"
	EventsBrokerLog      = "log"
	EventsBrokerKafka    = "kafka"
	EventsBrokerRabbitMQ = "rabbitmq"
)

// Config описывает настройки запуска GrubDash.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// SeedFile заменяет встроенные данные, если задан.
	SeedDefaults bool
	SeedFile     string

	EventsBroker     string
	KafkaBrokers     []string
	KafkaTopic       string
	RabbitMQURL      string
	RabbitMQExchange string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":5000",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDefaults:        true,
		EventsBroker:        EventsBrokerNone,
		KafkaTopic:          kafka.TopicEvents,
		RabbitMQExchange:    rabbitmq.DefaultExchange,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Validate проверяет согласованность настроек до старта зависимостей.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.EventsBroker {
	case EventsBrokerNone, EventsBrokerLog:
	case EventsBrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka brokers are required for kafka events broker"))
		}
	case EventsBrokerRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			errs = append(errs, errors.New("rabbitmq url is required for rabbitmq events broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported events broker %q", c.EventsBroker))
	}

	return errors.Join(errs...)
}
