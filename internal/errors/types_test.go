package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeDatabaseConnection,
				Message: "failed to connect to database",
				Cause:   errors.New("unable to open database file"),
			},
			expected: "DATABASE_CONNECTION: failed to connect to database: unable to open database file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad batch size")

	result := err.WithContext("field", "batch_size").WithContext("value", -1)

	assert.Same(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "batch_size", err.Context["field"])
}

func TestIsRetryable(t *testing.T) {
	cause := errors.New("database is locked")

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", cause, false},
		{"non-retryable app error", Wrap(cause, ErrCodeDatabaseQuery, "insert"), false},
		{"retryable app error", WrapRetryable(cause, ErrCodeDatabaseQuery, "insert"), true},
		{"wrapped retryable", fmt.Errorf("outer: %w", WrapRetryable(cause, ErrCodeDatabaseQuery, "insert")), true},
		{"retryable below non-retryable", Wrap(WrapRetryable(cause, ErrCodeDatabaseQuery, "commit"), ErrCodeDatabaseQuery, "write"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
	assert.Equal(t, ErrCodeDatabaseQuery, GetCode(NewDatabaseError("select", errors.New("boom"))))
	assert.Equal(t, ErrCodeDatabaseCorruption, GetCode(fmt.Errorf("wrapped: %w", NewCorruptionError("count", errors.New("malformed")))))
}

func TestHelpers(t *testing.T) {
	dbErr := NewDatabaseError("delete jobs", errors.New("disk I/O error"))
	assert.Equal(t, "database delete jobs failed", dbErr.Message)
	assert.Equal(t, "delete jobs", dbErr.Context["operation"])

	cfgErr := NewConfigError("database.path", "missing database path")
	assert.Equal(t, ErrCodeInvalidConfig, cfgErr.Code)
	assert.Equal(t, "database.path", cfgErr.Context["config_key"])

	inputErr := NewInvalidInputError("group_id", "group id must not be empty")
	assert.Equal(t, ErrCodeInvalidInput, inputErr.Code)
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{New(ErrCodeInvalidInput, "x"), http.StatusBadRequest},
		{New(ErrCodeInvalidConfig, "x"), http.StatusBadRequest},
		{New(ErrCodeNotFound, "x"), http.StatusNotFound},
		{New(ErrCodeDatabaseQuery, "x"), http.StatusServiceUnavailable},
		{New(ErrCodeDatabaseCorruption, "x"), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusCode(tt.err), "error: %v", tt.err)
	}
}
