package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	ChatWebhookURL string `env:"CHAT_WEBHOOK_URL,required=true"`
	ChatDest       string `env:"CHAT_DESTINATION,required=true"`
	SourceAPIURL   string `env:"SOURCE_API_URL,required=true"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS,default=5"`

	// Push decision policy.
	PushNew                bool `env:"PUSH_NEW,default=true"`
	PushUpdated            bool `env:"PUSH_UPDATED,default=false"`
	PushHistorical         bool `env:"PUSH_HISTORICAL,default=false"`
	MarkHistoricalAsPushed bool `env:"MARK_HISTORICAL_AS_PUSHED,default=true"`
	HistoricalAgeHours     int  `env:"HISTORICAL_AGE_HOURS,default=24"`

	// Delivery queue.
	QueueBatchSize       int  `env:"QUEUE_BATCH_SIZE,default=5"`
	QueueIntervalSeconds int  `env:"QUEUE_INTERVAL_SECONDS,default=2"`
	MaxDeliveryAttempts  int  `env:"MAX_DELIVERY_ATTEMPTS,default=3"`
	RetryRateLimited     bool `env:"RETRY_RATE_LIMITED,default=true"`
	RateLimitPerSec      int  `env:"RATE_LIMIT_PER_SEC,default=100"`

	// Reply submission.
	SubmitTimeoutSeconds     int `env:"SUBMIT_TIMEOUT_SECONDS,default=30"`
	ReconcileIntervalSeconds int `env:"RECONCILE_INTERVAL_SECONDS,default=60"`
	ReconcileMinAgeSeconds   int `env:"RECONCILE_MIN_AGE_SECONDS,default=300"`

	IngestConcurrency int    `env:"INGEST_CONCURRENCY,default=4"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
