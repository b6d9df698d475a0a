// loader.go implements the configuration loading lifecycle for the scheduler.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
//  6. Parse the driver cron expressions so a bad spec fails startup.
//  7. Load and validate the schedule-window YAML file (or defaults).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without touching the real filesystem.
type loaderDeps struct {
	loadDotenv func() error
	readFile   func(name string) ([]byte, error)
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		loadDotenv: func() error { return godotenv.Load() },
		readFile:   os.ReadFile,
	}
}

// LoadConfig loads and validates the scheduler configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

// loadConfigWithDeps is the internal implementation of LoadConfig that accepts
// injectable dependencies for testing.
func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs. Every timestamp
	// this service persists or compares is UTC; subscriber-local time is
	// always derived explicitly through their own location.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent).
	// godotenv does NOT override existing environment variables.
	_ = deps.loadDotenv()

	// Step 3: Process envconfig tags to populate the Config struct.
	// The empty prefix "" means envconfig uses the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Populate build metadata from linker-injected variables.
	cfg.Build = NewBuildInfo()

	// Step 5: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	// Step 6: Parse the cron expressions now rather than at Runner start.
	if err := validateCronSpecs(&cfg); err != nil {
		return nil, err
	}

	// Step 7: Load the schedule windows (YAML file or compiled-in defaults).
	windows, err := loadWindows(cfg.Scheduler.WindowsPath, cfg.Scheduler.DefaultFuzzinessMinutes, deps.readFile)
	if err != nil {
		return nil, err
	}
	cfg.Windows = windows

	return &cfg, nil
}

// validateCronSpecs parses each driver expression with the standard
// five-field parser used by the Runner.
func validateCronSpecs(cfg *Config) error {
	specs := map[string]string{
		"NIGHTLY_CRON":         cfg.Scheduler.NightlySpec,
		"DISPATCH_CRON":        cfg.Scheduler.DispatchSpec,
		"HISTORY_ARCHIVE_CRON": cfg.Scheduler.ArchiveSpec,
	}
	for name, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("invalid cron expression in %s", name),
				Err:     err,
			}
		}
	}
	return nil
}
