package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

var validate = newValidator()

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"fern"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Connection string for the release database
	DSN string `env:"DSN" env-required:"true" validate:"required"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"1"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	// Rows per INSERT statement
	LoadBatchSize int `env:"LOAD_BATCH_SIZE" env-default:"1000" validate:"gt=0"`

	// Acquisition settings
	// Root for downloads/<yyyy_mm> and extracted/<yyyy_mm>
	WorkDir string `env:"WORK_DIR" env-default:"./data" validate:"required"`
	// Archive URL with {year} and {month} placeholders. Empty uses the built-in default.
	SourceURLTemplate string `env:"SOURCE_URL_TEMPLATE" env-default:"" validate:"omitempty,contains={year},contains={month}"`
	// Time allowed for download plus extraction of one window
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" env-default:"30m" validate:"gt=0s"`
	// Time allowed for a whole window, acquisition included
	WindowLoadTimeout time.Duration `env:"WINDOW_LOAD_TIMEOUT" env-default:"2h" validate:"gt=0s"`
	// Largest archive accepted
	HTTPMaxDownloadBytes int64 `env:"HTTP_MAX_DOWNLOAD_BYTES" env-default:"2147483648" validate:"gt=0"`

	// Redis host. The window lock is disabled when empty.
	RedisHost string `env:"REDIS_HOST" env-default:""`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379" validate:"gt=0,lte=65535"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Lock expiry for one window, at least WINDOW_LOAD_TIMEOUT
	LockTTL time.Duration `env:"LOCK_TTL" env-default:"3h"`

	// Kafka brokers (comma-separated). Run events are disabled when empty.
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:""`
	// Kafka topic for run summaries
	KafkaSummaryTopic string `env:"KAFKA_SUMMARY_TOPIC" env-default:"fern-runs"`

	// Email settings. Email is disabled unless the key and recipients are set.
	SendGridAPIKey string   `env:"SENDGRID_API_KEY" env-default:""`
	NotifyTo       []string `env:"NOTIFY_TO" env-default:"" validate:"dive,email"`
	NotifyFrom     string   `env:"NOTIFY_FROM" env-default:"" validate:"omitempty,email"`
	NotifySubject  string   `env:"NOTIFY_SUBJECT" env-default:"fern run summary"`

	// Pushgateway for one shot runs. Disabled when empty.
	PushgatewayURL string `env:"PUSHGATEWAY_URL" env-default:""`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`

	// Scheduler settings
	// Time between scheduled runs
	ScheduleInterval time.Duration `env:"SCHEDULE_INTERVAL" env-default:"6h" validate:"gt=0s"`
	// Port for the health and metrics server
	HealthPort int `env:"HEALTH_PORT" env-default:"8080" validate:"gt=0,lte=65535"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg.NotifyTo = compact(cfg.NotifyTo)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with. Field errors name the
// environment variable.
func (c *Config) Validate() error {
	var errs []error

	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			errs = append(errs, fieldError(fe))
		}
	case err != nil:
		errs = append(errs, err)
	}

	if c.RedisEnabled() && c.LockTTL < c.WindowLoadTimeout {
		errs = append(errs, errors.New("LOCK_TTL must not be shorter than WINDOW_LOAD_TIMEOUT"))
	}
	if c.EmailEnabled() && c.NotifyFrom == "" {
		errs = append(errs, errors.New("NOTIFY_FROM is required when email is enabled"))
	}
	return errors.Join(errs...)
}

// fieldError omits the value, which may hold credentials.
func fieldError(fe validator.FieldError) error {
	if fe.Param() == "" {
		return fmt.Errorf("%s is invalid: %s check failed", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%s is invalid: %s=%s check failed", fe.Field(), fe.Tag(), fe.Param())
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

func (c *Config) EmailEnabled() bool {
	return c.SendGridAPIKey != "" && len(c.NotifyTo) > 0
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
