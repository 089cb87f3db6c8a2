// Package response writes the JSON envelope shared by every HTTP response.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// Version is the envelope format version clients negotiate on.
const Version = 1

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Ok wraps data in a success envelope.
func Ok(data any) Envelope {
	return Envelope{V: Version, Success: true, Data: data}
}

// Fail builds an error envelope.
func Fail(code, message string, details any) Envelope {
	return Envelope{V: Version, Success: false, Error: message, Code: code, Details: details}
}

// JSON writes data in an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	env := Ok(data)
	env.Success = status < 400
	write(w, status, env, logger)
}

// Success writes a successful JSON response (200 OK).
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// Error writes an error envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	write(w, status, Fail(CodeForStatus(status), message, nil), logger)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, message, logger)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusMethodNotAllowed, message, logger)
}

// TooManyRequests writes a 429 Too Many Requests response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, message, logger)
}

// HandleError writes the envelope for a domain error. Unknown errors become 500.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		write(w, domainErr.HTTPStatus(), Fail(string(domainErr.Code), domainErr.Message, domainErr.Details), logger)
		return
	}

	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, "internal server error", logger)
}

func write(w http.ResponseWriter, status int, env Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		if logger != nil {
			logger.Error("Failed to encode JSON response", "error", err)
		}
	}
}

// CodeForStatus maps an HTTP status to the closest domain error code.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusBadGateway:
		return string(domainerrors.CodeUpstream)
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return string(domainerrors.CodeInternal)
	}
}

