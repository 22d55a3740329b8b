package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
)

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeNoSigner       = "NO_SIGNER"
	ErrCodeBatchAborted   = "BATCH_ABORTED"
	ErrCodeUpstream       = "UPSTREAM_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody decodes a JSON body. An empty body leaves v untouched.
func parseJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// mapError maps purchase and input errors to HTTP status codes
func mapError(err error) (int, string) {
	var cfgErr *core.ConfigurationError
	var batchErr *core.BatchAbortError

	switch {
	case errors.Is(err, apperrors.ErrAlreadyRunning):
		return http.StatusConflict, ErrCodeAlreadyRunning
	case errors.As(err, &cfgErr), errors.Is(err, apperrors.ErrNoSignerConfigured):
		return http.StatusPreconditionFailed, ErrCodeNoSigner
	case errors.Is(err, apperrors.ErrBasketNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, apperrors.ErrInvalidWeights),
		errors.Is(err, apperrors.ErrInvalidAmount),
		errors.Is(err, apperrors.ErrInvalidMode),
		errors.Is(err, apperrors.ErrUnknownAsset):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case errors.As(err, &batchErr), errors.Is(err, apperrors.ErrBatchAborted):
		return http.StatusBadGateway, ErrCodeBatchAborted
	case errors.Is(err, apperrors.ErrNetwork),
		errors.Is(err, apperrors.ErrRateLimitExceeded),
		errors.Is(err, apperrors.ErrInvalidResponse):
		return http.StatusBadGateway, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "An internal error occurred"
	}
	respondError(w, status, code, message)
}
