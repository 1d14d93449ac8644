package apierrors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode Kind   `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler writes classified errors as JSON HTTP responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
// Unclassified errors are reported as Internal.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = w.Header().Get("X-Request-ID")
	}
	h.WriteErrorResponse(w, StatusFor(kind), kind, err.Error(), requestID)
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, kind Kind, message string, requestID string) {
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			zap.Int("status_code", statusCode),
			zap.String("error_code", string(kind)),
			zap.String("message", message),
			zap.String("request_id", requestID),
		)
	} else {
		h.logger.Debug("HTTP error response",
			zap.Int("status_code", statusCode),
			zap.String("error_code", string(kind)),
			zap.String("message", message),
			zap.String("request_id", requestID),
		)
	}

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: kind,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, KindBadRequest, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, KindUnavailable, "rate limit exceeded", requestID)
}

// Decode reads an error body produced by a pairfs service. When the body is not
// a recognizable error response, the kind is derived from the status code alone.
func Decode(statusCode int, body []byte) *Error {
	kind := FromStatus(statusCode)
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return &Error{Kind: kind, Message: resp.Message}
	}
	msg := http.StatusText(statusCode)
	if len(body) > 0 && len(body) < 256 {
		msg = string(body)
	}
	return &Error{Kind: kind, Message: msg}
}
