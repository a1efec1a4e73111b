package models

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	Retry    RetryConfig    `json:"retry"`
	LogLevel string         `json:"log_level"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path              string `json:"path"`
	BusyTimeoutMs     int    `json:"busy_timeout_ms"`
	EncryptionEnabled bool   `json:"encryption_enabled"`
	// CorruptionStatePath defaults to a file next to the database.
	CorruptionStatePath string `json:"corruption_state_path"`
}

// ServerConfig holds the diagnostics server settings
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"read_timeout_sec"`
	WriteTimeoutSec int `json:"write_timeout_sec"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
