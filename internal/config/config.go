package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DBConfig carries everything the database connector needs.  It is passed
// explicitly to database.NewConnector; nothing reads these values from
// package-level state.
type DBConfig struct {
	Driver         string        `validate:"oneof=mysql sqlite"`       // "mysql" or "sqlite"
	Host           string        `validate:"required_if=Driver mysql"` // database host address
	Port           string        `validate:"required_if=Driver mysql"` // database port number
	User           string        `validate:"required_if=Driver mysql"` // database username
	Pass           string        // database password (optional)
	Name           string        `validate:"required"` // schema name, or file path for sqlite
	ConnectTimeout time.Duration `validate:"gt=0"`     // dial + ping budget
}

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env             string `validate:"required"` // application environment (e.g. "dev", "prod")
	Port            string `validate:"required"` // HTTP port to listen on
	LogLevel        string `validate:"oneof=debug info warn error"`
	DB              DBConfig
	AMQPURL         string // broker URL for hit events; empty disables publishing
	ConsumerEnabled bool   // run the hits.recorded consumer in-process
}

var validate = validator.New()

// Load reads an optional .env file, then builds a Config from environment
// variables and validates it.
func Load() (Config, error) {
	// A missing .env is normal in containers; real env vars win either way.
	_ = godotenv.Load()

	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		DB: DBConfig{
			Driver:         envStr("DB_DRIVER", "mysql"),
			Host:           os.Getenv("DB_HOST"),
			Port:           envStr("DB_PORT", "3306"),
			User:           os.Getenv("DB_USER"),
			Pass:           os.Getenv("DB_PASS"),
			Name:           os.Getenv("DB_NAME"),
			ConnectTimeout: envDur("DB_CONNECT_TIMEOUT", 5*time.Second),
		},
		AMQPURL:         amqpURL(),
		ConsumerEnabled: envBool("HITS_CONSUMER_ENABLED", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports the first offending fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}
