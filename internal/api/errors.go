package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/http/response"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}
		}

		// huma's own request validation reports its findings as details.
		var details []string
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}

		apiErr := &APIError{
			status:  status,
			Code:    response.CodeForStatus(status),
			Message: message,
		}
		if len(details) > 0 && status < 500 {
			apiErr.Details = details
		}
		return apiErr
	}
}

// EnvelopeTransformer wraps every huma response body in the shared envelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		return response.Fail(apiErr.Code, apiErr.Message, apiErr.Details), nil
	}
	if code, _ := strconv.Atoi(status); code >= http.StatusBadRequest {
		return response.Fail(response.CodeForStatus(code), http.StatusText(code), v), nil
	}
	return response.Ok(v), nil
}
