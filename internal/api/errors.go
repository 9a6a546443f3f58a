package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeRunNotFound    = "run_not_found"
	ErrCodeReportNotReady = "report_not_ready"
	ErrCodeReportMissing  = "report_missing"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternalError  = "internal_error"
	ErrCodeServiceUnavail = "service_unavailable"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

type requestIDContextKey struct{}

// RequestIDKey is the context key RequestIDMiddleware stores the id under.
var RequestIDKey = requestIDContextKey{}

// GetRequestID returns the request id from ctx, falling back to the header.
func GetRequestID(ctx context.Context, r *http.Request) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// HTTPStatusToErrorCode picks a generic code for status.
func HTTPStatusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	}
	return ErrCodeInternalError
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	requestID := GetRequestID(r.Context(), r)
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	})
	if err != nil {
		slog.Debug("error response not written", "error", err, "request_id", requestID)
	}
}
