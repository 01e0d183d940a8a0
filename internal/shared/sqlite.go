// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteConflictError reports whether err is a SQLITE_BUSY or
// "database is locked" error. Both are transient concurrency errors
// that warrant a retry.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetrySQLite runs fn up to attempts times, backing off exponentially
// from baseDelay while fn keeps failing with a SQLite conflict. Any
// other error, or context cancellation, stops the retries.
func RetrySQLite(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(baseDelay * time.Duration(1<<i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
