package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`

	// Accounts to bridge, as a JSON array. See models.Account for fields.
	AccountsJSON string `env:"ACCOUNTS_JSON" env-default:"[]"`

	// Agent runtime webhook that inbound contexts are dispatched to.
	AgentWebhookURL string `env:"AGENT_WEBHOOK_URL" env-default:""`
	// Bearer token for the agent webhook
	AgentWebhookToken string `env:"AGENT_WEBHOOK_TOKEN" env-default:""`

	// Prefix applied to plain replies. Ensemble turn replies never carry it.
	ReplyPrefix string `env:"REPLY_PREFIX" env-default:""`

	// Admin API token. Empty disables authentication (local development only).
	AdminToken string `env:"ADMIN_TOKEN" env-default:""`

	// Remote API request timeout
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" env-default:"30s"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Enable/disable the Kafka activity mirror
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for bridge activity
	KafkaActivityTopic string `env:"KAFKA_ACTIVITY_TOPIC" env-default:"fern-activity"`

	// Catch-up poller settings
	// Poll interval for the catch-up sweep
	PollerInterval time.Duration `env:"POLLER_INTERVAL" env-default:"1m"`
	// Enable/disable the catch-up poller
	PollerEnabled bool `env:"POLLER_ENABLED" env-default:"true"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// ParseAccounts decodes and validates the configured accounts, keyed by
// account id.
func (c *Config) ParseAccounts() (map[string]models.Account, error) {
	var accounts []models.Account
	if err := json.Unmarshal([]byte(c.AccountsJSON), &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse ACCOUNTS_JSON: %w", err)
	}

	validate := validator.New()
	result := make(map[string]models.Account, len(accounts))
	for _, account := range accounts {
		if err := validate.Struct(&account); err != nil {
			return nil, fmt.Errorf("invalid account %q: %w", account.AccountID, err)
		}
		if _, exists := result[account.AccountID]; exists {
			return nil, fmt.Errorf("duplicate account id %q", account.AccountID)
		}
		result[account.AccountID] = account
	}

	return result, nil
}
