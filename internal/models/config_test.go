package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "missing database path"}
	assert.Equal(t, "missing database path", err.Error())
}

func TestConfig_JSONFieldNames(t *testing.T) {
	raw := `{
		"database": {"path": "/data/jobs.db", "busy_timeout_ms": 100, "encryption_enabled": true, "corruption_state_path": "/data/state.json"},
		"server": {"port": 8100, "read_timeout_sec": 3, "write_timeout_sec": 4},
		"tracing": {"enabled": true, "service_name": "svc", "otlp_endpoint": "collector:4318", "sample_rate": 0.25, "use_stdout": false},
		"retry": {"initialBackoffMs": 10, "maxBackoffMs": 20, "maxAttempts": 2},
		"log_level": "warn"
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "/data/jobs.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.Database.BusyTimeoutMs)
	assert.True(t, cfg.Database.EncryptionEnabled)
	assert.Equal(t, "/data/state.json", cfg.Database.CorruptionStatePath)
	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.WriteTimeoutSec)
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, "warn", cfg.LogLevel)
}
