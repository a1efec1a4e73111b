package errors

import (
	"fmt"
	"net/http"
)

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewCorruptionError marks a read failure that looks like on-disk corruption
func NewCorruptionError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseCorruption, fmt.Sprintf("database %s hit suspected corruption", operation)).
		WithContext("operation", operation)
}

// NewInvalidInputError creates an input validation error
func NewInvalidInputError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field)
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration, ErrCodeDatabaseCorruption:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
