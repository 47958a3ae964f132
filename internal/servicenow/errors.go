package servicenow

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Error class constants for fetch failure classification.
const (
	FetchErrorClassConnection = "connection"
	FetchErrorClassTimeout    = "timeout"
	FetchErrorClassAuth       = "auth"
	FetchErrorClassMissing    = "missing_table"
	FetchErrorClassUnknown    = "unknown"
)

// ClassifyFetchError maps a source read error to one of the defined error
// classes so reports and metrics group failures by cause rather than by
// opaque Go type names.
func ClassifyFetchError(err error) string {
	if err == nil {
		return FetchErrorClassUnknown
	}

	// Timeout checks (before connection, since net.Error can be both).
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FetchErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchErrorClassTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FetchErrorClassConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return FetchErrorClassConnection
	}

	// String-based classification for wrapped errors where type information
	// is lost.
	msg := strings.ToLower(err.Error())

	if isConnectionString(msg) {
		return FetchErrorClassConnection
	}
	if isTimeoutString(msg) {
		return FetchErrorClassTimeout
	}
	if isAuthString(msg) {
		return FetchErrorClassAuth
	}
	if isMissingTableString(msg) {
		return FetchErrorClassMissing
	}

	return FetchErrorClassUnknown
}

func isConnectionString(msg string) bool {
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "no such host")
}

func isTimeoutString(msg string) bool {
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

func isAuthString(msg string) bool {
	return strings.Contains(msg, "http 401") ||
		strings.Contains(msg, "http 403")
}

func isMissingTableString(msg string) bool {
	return strings.Contains(msg, "http 400") ||
		strings.Contains(msg, "http 404") ||
		strings.Contains(msg, "invalid table")
}
