package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
)

type Config struct {
	Port             string `envconfig:"PORT" default:"8080"`
	StorageDriver    string `envconfig:"STORAGE_DRIVER" default:"memory"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	OrderTableName   string `envconfig:"ORDER_TABLE_NAME" default:"orders"`
	DynamoDBEndpoint string `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local
	DatabaseURL      string `envconfig:"DATABASE_URL" default:""`

	// Kafka publishing is disabled when KafkaBrokers is empty.
	KafkaBrokers           string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaOrderTopic        string `envconfig:"KAFKA_ORDER_TOPIC" default:"order-events"`
	KafkaCompensationTopic string `envconfig:"KAFKA_COMPENSATION_TOPIC" default:"compensation-events"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	OtelEndpoint   string `envconfig:"OTEL_ENDPOINT" default:""`
	OtelAuthHeader string `envconfig:"OTEL_AUTH_HEADER" default:""`

	CommitAttempts   int           `envconfig:"COMMIT_ATTEMPTS" default:"3"`
	CommitRetryDelay time.Duration `envconfig:"COMMIT_RETRY_DELAY" default:"20ms"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverDynamoDB:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.CommitAttempts < 1 {
		return fmt.Errorf("COMMIT_ATTEMPTS must be at least 1, got %d", c.CommitAttempts)
	}
	if c.CommitRetryDelay < 0 {
		return fmt.Errorf("COMMIT_RETRY_DELAY must not be negative")
	}
	return nil
}

func (c *Config) KafkaEnabled() bool {
	return c.KafkaBrokers != ""
}

func (c *Config) TracingEnabled() bool {
	return c.OtelEndpoint != ""
}
