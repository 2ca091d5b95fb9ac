package errorhandler

import (
	"context"
	"net/http"

	"github.com/carebook/carebook-api/internal/pkg/logger"
	"github.com/carebook/carebook-api/internal/pkg/response"
)

// HandleError logs the failure with the request-scoped logger and writes the error body.
// 5xx responses are logged at error level, everything else at warn.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	l := logger.FromContext(ctx)
	event := l.Warn()
	if status >= http.StatusInternalServerError {
		event = l.Error()
	}

	event = event.
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// LogSecurityEvent records a rejected request that may be hostile (bad webhook signature, identity mismatch).
func LogSecurityEvent(ctx context.Context, r *http.Request, reason string) {
	logger.FromContext(ctx).Warn().
		Str("security_event", reason).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Security event")
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service string, operation string, statusCode int, err error, body string) {
	logger.FromContext(ctx).Error().
		Str("external_service", service).
		Str("operation", operation).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
