package database

import (
	"context"
	"errors"
	"strings"

	apperrors "groupjobs/internal/errors"

	"github.com/mattn/go-sqlite3"
)

// classifyError marks lock contention as retryable so callers can open a
// new transaction and try again. Everything else passes through untouched.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsRetryableDBError(err) && !apperrors.IsRetryable(err) {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeDatabaseQuery, operation+" failed").
			WithContext("operation", operation)
	}
	return err
}

// IsRetryableDBError determines if a database error is worth retrying in a new transaction
func IsRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	// Context timeout/cancellation are not retryable by us
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked") {
		return true
	}

	// SQL constraint violations are not retryable
	if strings.Contains(errStr, "UNIQUE constraint") || strings.Contains(errStr, "FOREIGN KEY constraint") {
		return false
	}

	// Schema errors are not retryable
	if strings.Contains(errStr, "no such table") || strings.Contains(errStr, "no such column") {
		return false
	}

	// For other errors, we'll be conservative and not retry
	return false
}
