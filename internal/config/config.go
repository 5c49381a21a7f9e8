// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from the DB_* parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type GatewayConfig struct {
	BaseURL  string        `envconfig:"WHATSAPP_BASE_URL"`
	APIKey   string        `envconfig:"WHATSAPP_API_KEY"`
	Instance string        `envconfig:"WHATSAPP_INSTANCE"`
	Timeout  time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
}

type ProcessorConfig struct {
	DefaultDelaySeconds int           `envconfig:"DEFAULT_DELAY_SECONDS" default:"120"`
	ClaimRetryDelay     time.Duration `envconfig:"CLAIM_RETRY_DELAY" default:"500ms"`
	StoreRetryDelay     time.Duration `envconfig:"STORE_RETRY_DELAY" default:"5s"`
	LeaseTimeout        time.Duration `envconfig:"LEASE_TIMEOUT" default:"0"`
	StatusTTL           time.Duration `envconfig:"STATUS_TTL" default:"15s"`
}

type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	AMQPURL   string `envconfig:"AMQP_URL"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	Database  DatabaseConfig
	Gateway   GatewayConfig
	Processor ProcessorConfig
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not parse .env file")
	} else if err != nil {
		logrus.Info("⚠️ No .env file found, relying on OS environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Processor.DefaultDelaySeconds <= 0 {
		return fmt.Errorf("DEFAULT_DELAY_SECONDS must be positive, got %d", c.Processor.DefaultDelaySeconds)
	}
	if c.Processor.ClaimRetryDelay <= 0 {
		return fmt.Errorf("CLAIM_RETRY_DELAY must be positive")
	}
	if c.Processor.StoreRetryDelay <= 0 {
		return fmt.Errorf("STORE_RETRY_DELAY must be positive")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if lease := c.Processor.LeaseTimeout; lease < 0 {
		return fmt.Errorf("LEASE_TIMEOUT must not be negative")
	} else if lease > 0 && lease <= c.MaxSendDuration() {
		return fmt.Errorf("LEASE_TIMEOUT must exceed %s (a full send plus the outcome write), got %s", c.MaxSendDuration(), lease)
	}
	return nil
}

const (
	// maxMessageParts is the number of gateway calls one item can take.
	maxMessageParts = 3
	// outcomeWriteBudget covers the retried terminal-status write after a send.
	outcomeWriteBudget = 5 * time.Second
)

// MaxSendDuration is the longest an instance can legitimately hold a claim.
// A lease shorter than this would let a sweep hand a live item to a second sender.
func (c *Config) MaxSendDuration() time.Duration {
	return maxMessageParts*c.Gateway.Timeout + outcomeWriteBudget
}

// SetupLogging configures the global logrus logger and routes the stdlib logger through it.
func SetupLogging(c *Config) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(logrus.StandardLogger().Writer())
}
