package constants

// Standard log field names. Use these exact names so queue and HTTP log
// lines can be joined on the same keys.
const (
	// Queue identifiers
	LogFieldGroupID   = "group_id"
	LogFieldUniqueID  = "unique_id"
	LogFieldJobID     = "job_id"
	LogFieldBatchSize = "batch_size"

	// Operation fields
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Performance
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Requests
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Errors
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)
