package chrono

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds engine-wide settings. Every field can be set from the
// environment; see LoadConfig.
type Config struct {
	// PollInterval is how often the trigger scheduler evaluates triggers.
	PollInterval time.Duration `env:"CHRONO_POLL_INTERVAL" envDefault:"5s" validate:"gt=0"`

	// MisfireThreshold is how late a due occurrence may be detected before
	// it counts as a misfire. Zero means "same as PollInterval".
	MisfireThreshold time.Duration `env:"CHRONO_MISFIRE_THRESHOLD" validate:"gte=0"`

	// TimeZone is the default location for triggers without their own.
	TimeZone string `env:"CHRONO_TIMEZONE" envDefault:"UTC"`

	// Timeout is the default per-attempt timeout. Zero disables it.
	Timeout time.Duration `env:"CHRONO_TIMEOUT" validate:"gte=0"`

	// The Retry fields form the default retry policy applied to jobs
	// registered without one. RetryMaxAttempts of zero disables it.
	// RetryMaxDelay of zero leaves the waits uncapped.
	RetryMaxAttempts int           `env:"CHRONO_RETRY_MAX_ATTEMPTS" validate:"gte=0"`
	RetryDelay       time.Duration `env:"CHRONO_RETRY_DELAY" envDefault:"1s" validate:"gte=0"`
	RetryStrategy    string        `env:"CHRONO_RETRY_STRATEGY" envDefault:"exponential" validate:"oneof=none constant exponential"`
	RetryMaxDelay    time.Duration `env:"CHRONO_RETRY_MAX_DELAY" envDefault:"5m" validate:"gte=0"`
	RetryJitter      bool          `env:"CHRONO_RETRY_JITTER" envDefault:"true"`

	EnableDiagnostics        bool   `env:"CHRONO_DIAGNOSTICS"`
	EnableDistributedLocking bool   `env:"CHRONO_DISTRIBUTED_LOCKING"`
	EnableMisfireHandling    bool   `env:"CHRONO_MISFIRE_HANDLING"`
	DisableWorker            bool   `env:"CHRONO_DISABLE_WORKER"`
	AutoStartScheduler       bool   `env:"CHRONO_AUTOSTART_SCHEDULER" envDefault:"true"`
	InstanceID               string `env:"CHRONO_INSTANCE_ID"`

	// QueueRateLimit caps how many ad-hoc jobs per second the queue worker
	// drains. Zero disables limiting.
	QueueRateLimit float64 `env:"CHRONO_QUEUE_RATE_LIMIT" validate:"gte=0"`

	Retention RetentionConfig `envPrefix:"CHRONO_RETENTION_"`
	Storage   StorageConfig   `envPrefix:"CHRONO_STORAGE_"`
	HTTP      HTTPConfig      `envPrefix:"CHRONO_HTTP_"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"CHRONO_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

// RetentionConfig controls the execution log retention sweep.
type RetentionConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"5m" validate:"gt=0"`
	MaxAge    time.Duration `env:"MAX_AGE" envDefault:"720h" validate:"gte=0"`
	MaxPerJob int           `env:"MAX_PER_JOB" envDefault:"10000" validate:"gte=0"`
}

// StorageConfig selects the persistence and locking backends.
type StorageConfig struct {
	Backend     string `env:"BACKEND" envDefault:"memory" validate:"oneof=memory redis postgres"`
	Lock        string `env:"LOCK" envDefault:"local" validate:"oneof=local redis postgres"`
	Codec       string `env:"CODEC" envDefault:"json" validate:"oneof=json msgpack"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required_if=Backend redis"`
	PostgresDSN string `env:"POSTGRES_DSN" validate:"required_if=Backend postgres"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Addr   string `env:"ADDR" envDefault:":8080"`
	Prefix string `env:"PREFIX" envDefault:"/chrono"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       5 * time.Second,
		TimeZone:           "UTC",
		RetryDelay:         time.Second,
		RetryStrategy:      "exponential",
		RetryMaxDelay:      5 * time.Minute,
		RetryJitter:        true,
		AutoStartScheduler: true,
		Retention: RetentionConfig{
			Enabled:   true,
			Interval:  5 * time.Minute,
			MaxAge:    30 * 24 * time.Hour,
			MaxPerJob: 10_000,
		},
		Storage: StorageConfig{
			Backend:   "memory",
			Lock:      "local",
			Codec:     "json",
			RedisAddr: "localhost:6379",
		},
		HTTP: HTTPConfig{
			Addr:   ":8080",
			Prefix: "/chrono",
		},
		LogLevel: "info",
	}
}

// LoadConfig parses a Config from the environment and validates it.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("chrono: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct constraints and that TimeZone resolves.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("chrono: invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("chrono: invalid config: %w", err)
	}
	return nil
}

// Location resolves TimeZone, defaulting to UTC when empty.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// EffectiveMisfireThreshold returns MisfireThreshold, falling back to
// PollInterval when unset.
func (c Config) EffectiveMisfireThreshold() time.Duration {
	if c.MisfireThreshold > 0 {
		return c.MisfireThreshold
	}
	return c.PollInterval
}
