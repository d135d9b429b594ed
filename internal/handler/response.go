package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// ONE ENVELOPE FOR EVERYTHING:
// Every response from the API, success or failure, has the same shape:
//
//	{"success": true,  "message": "task created", "data": {"task": {...}}}
//	{"success": false, "message": "task not found with id abc123"}
//
// The mobile client checks "success" first and reads "data" only when it is true.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
)

// maxBodyBytes caps request bodies. A 10 000-character description is well
// under this even in 4-byte UTF-8.
const maxBodyBytes = 1 << 20

// Envelope is the standard response format returned by all API endpoints.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write(), the headers are sent and any later header
// changes are silently ignored. So the body is marshalled first: if that
// fails we can still switch to a 500.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to encode JSON response",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"An internal error occurred"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeSuccess(w http.ResponseWriter, logger *slog.Logger, status int, message string, data any) {
	writeJSON(w, logger, status, Envelope{Success: true, Message: message, Data: data})
}

// ErrorWriter returns the function every handler (and the auth Guard) uses to
// turn an error into a response.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation         → 400
//	apperror.ErrUnauthenticated    → 401
//	apperror.ErrInvalidCredentials → 401
//	apperror.ErrNotFound           → 404
//	apperror.ErrConflict           → 409
//	anything else                  → 500, logged, generic message
//
// errors.Is walks the whole chain, so a service that wraps an AppError with
// fmt.Errorf("...: %w", err) still maps correctly.
func ErrorWriter(logger *slog.Logger) auth.ErrorResponder {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthenticated), errors.Is(err, apperror.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, logger, status, Envelope{Success: false, Message: appErr.Message})
			return
		}
	}

	// Unknown error: return a generic 500.
	// NEVER expose internal error details to the client: the raw message
	// might contain SQL, file paths, or other sensitive info.
	logger.Error("request failed",
		slog.String("requestID", chimw.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, logger, http.StatusInternalServerError, Envelope{
		Success: false,
		Message: "An internal error occurred",
	})
}

// decodeJSON reads the request body into dst. Any malformed or oversized
// body becomes a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid request body")
	}
	return nil
}

// NotFound answers unknown routes with the standard envelope instead of chi's
// plain-text 404.
func NotFound(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusNotFound, Envelope{Success: false, Message: "route not found"})
	}
}

// MethodNotAllowed is the envelope equivalent of chi's default 405.
func MethodNotAllowed(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusMethodNotAllowed, Envelope{Success: false, Message: "method not allowed"})
	}
}
