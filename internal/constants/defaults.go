package constants

// Default database configuration values
const (
	DefaultDatabasePath          = "groupjobs.db"
	DefaultBusyTimeoutMs         = 5000
	DefaultDatabaseRetryAttempts = 3
	DefaultCorruptionStateFile   = "corruption_state.json"
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs = 1000
	DefaultMaxBackoffMs   = 60000
	DefaultMaxAttempts    = 5
)

// Default server configuration values
const (
	DefaultServerPort            = 8090
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default tracing configuration values
const (
	DefaultServiceName  = "groupjobs"
	DefaultOTLPEndpoint = "localhost:4318"
	DefaultSampleRate   = 0.1
)

// Queue limits
const (
	// MaxBoundParameters stays under SQLITE_MAX_VARIABLE_NUMBER on older builds (999).
	MaxBoundParameters = 500
)

// Privacy settings
const (
	DefaultGroupIDMaskLength  = 4
	DefaultUniqueIDMaskLength = 8
)

// Encryption settings
const (
	EncryptionSalt = "groupjobs-blob-encryption-v1"
	KeySize        = 32
	NonceSize      = 12
	Iterations     = 100000
)
