package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"groupjobs/internal/constants"
	"groupjobs/internal/models"
	"groupjobs/internal/security"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
	ErrInvalidPort     = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrInvalidLogLevel = models.ConfigError{Message: "unknown log level"}
)

// Default returns a configuration populated with built-in defaults
func Default() *models.Config {
	c := &models.Config{}
	applyDefaults(c)
	return c
}

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.BusyTimeoutMs <= 0 {
		c.Database.BusyTimeoutMs = constants.DefaultBusyTimeoutMs
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = constants.DefaultServiceName
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = constants.DefaultOTLPEndpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = constants.DefaultSampleRate
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = logrus.InfoLevel.String()
	}
}

func applyEnvironmentOverrides(c *models.Config) error {
	if path := os.Getenv("GROUPJOBS_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if port := os.Getenv("GROUPJOBS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid GROUPJOBS_PORT %q", port)}
		}
		c.Server.Port = p
	}

	if level := os.Getenv("GROUPJOBS_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if strings.EqualFold(os.Getenv("GROUPJOBS_ENABLE_ENCRYPTION"), "true") {
		c.Database.EncryptionEnabled = true
	}
	return nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if c.Database.CorruptionStatePath != "" {
		if err := security.ValidateFilePath(c.Database.CorruptionStatePath); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid corruption state path: %v", err)}
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("%s: %q", ErrInvalidLogLevel.Message, c.LogLevel)}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
	}

	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry maxBackoffMs must not be smaller than initialBackoffMs"}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("GROUPJOBS_ENV") == "production"

	if c.Database.EncryptionEnabled {
		secret := os.Getenv("GROUPJOBS_ENCRYPTION_SECRET")
		if secret == "" {
			return models.ConfigError{Message: "encryption is enabled but GROUPJOBS_ENCRYPTION_SECRET is not set"}
		}
		if len(secret) < 32 {
			return models.ConfigError{Message: "GROUPJOBS_ENCRYPTION_SECRET must be at least 32 characters long"}
		}
	}

	if isProduction {
		// Debug logs carry masked but still correlatable queue identifiers
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if !c.Database.EncryptionEnabled {
		fmt.Fprintf(os.Stderr, "WARNING: job payload encryption is disabled. Set GROUPJOBS_ENABLE_ENCRYPTION=true to encrypt queued messages at rest.\n")
	}

	return nil
}
