// Package config defines the global configuration structure for the lingopal
// scheduler. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating code
// from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Schedule windows additionally come from an optional YAML file pointed to by
// SCHEDULE_WINDOWS_PATH; compiled-in defaults apply when the variable is unset.
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"lingopal/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the scheduler service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"lingopal-scheduler"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Agent     AgentConfig
	Digest    DigestConfig
	Delivery  DeliveryConfig

	// Windows holds the named schedule windows, populated from the YAML
	// file (or defaults) during LoadConfig rather than from env vars.
	Windows types.ScheduleWindows `ignored:"true" validate:"-"`

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// OpsToken guards the mutating ops endpoints (manual sweep trigger).
	// Read-only health endpoints are unauthenticated for load balancers.
	OpsToken SecretString `envconfig:"OPS_TOKEN" validate:"required"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// SchedulerConfig holds the cadence and policy knobs for the sweep drivers.
type SchedulerConfig struct {
	// NightlyHour is the local hour at which nightly maintenance runs for
	// each subscriber (their own timezone).
	NightlyHour int `envconfig:"NIGHTLY_HOUR" default:"3" validate:"min=0,max=23"`

	// DigestKeepCount is how many recent digests survive nightly pruning.
	DigestKeepCount int `envconfig:"DIGEST_KEEP_COUNT" default:"10" validate:"min=1"`

	// ReengageAfter is the silence threshold before a nudge is sent.
	ReengageAfter time.Duration `envconfig:"REENGAGE_AFTER" default:"72h"`

	// Driver cron expressions (standard five-field specs). Validated at
	// load time so a typo fails startup rather than the first tick.
	NightlySpec  string `envconfig:"NIGHTLY_CRON" default:"0 * * * *" validate:"required"`
	DispatchSpec string `envconfig:"DISPATCH_CRON" default:"* * * * *" validate:"required"`
	ArchiveSpec  string `envconfig:"HISTORY_ARCHIVE_CRON" default:"30 4 * * *" validate:"required"`

	// DefaultFuzzinessMinutes applies when neither the subscriber's
	// preference nor the window config carries a jitter value.
	DefaultFuzzinessMinutes int `envconfig:"DEFAULT_FUZZINESS_MINUTES" default:"30" validate:"min=0"`

	// WindowsPath points to the schedule-window YAML file. Empty means
	// use the compiled-in defaults.
	WindowsPath string `envconfig:"SCHEDULE_WINDOWS_PATH"`

	// Sweep history archival.
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"720h"`
	ArchiveDir       string        `envconfig:"HISTORY_ARCHIVE_DIR" default:"./archives"`
	ArchiveBatchSize int           `envconfig:"HISTORY_ARCHIVE_BATCH" default:"500" validate:"min=1"`
}

// AgentConfig holds the conversation agent collaborator endpoint.
type AgentConfig struct {
	BaseURL string        `envconfig:"AGENT_BASE_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"AGENT_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"AGENT_TIMEOUT" default:"30s"`
}

// DigestConfig holds the digest service collaborator endpoint.
type DigestConfig struct {
	BaseURL string        `envconfig:"DIGEST_BASE_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"DIGEST_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"DIGEST_TIMEOUT" default:"20s"`
}

// DeliveryConfig holds the message delivery gateway endpoint and its
// outbound rate limit.
type DeliveryConfig struct {
	BaseURL string        `envconfig:"DELIVERY_BASE_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"DELIVERY_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"15s"`

	// Gateway-side send throttle. RatePerSecond is the sustained rate,
	// Burst the momentary allowance.
	RatePerSecond float64 `envconfig:"DELIVERY_RATE_PER_SECOND" default:"10" validate:"gt=0"`
	Burst         int     `envconfig:"DELIVERY_RATE_BURST" default:"5" validate:"min=1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrWindowsFile indicates the schedule-window YAML file could not be
	// read or contained invalid windows.
	ErrWindowsFile ConfigErrorType = "WINDOWS_FILE_FAILED"
)
