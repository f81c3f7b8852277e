package httpapi

import (
	"errors"
	"net/http"

	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

const internalErrorMessage = "internal server error"

// statusFor maps service errors to HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrEmptyInput):
		return http.StatusBadRequest, "User input is required."
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNothingRenamed):
		return http.StatusBadRequest, "Update failed."
	case errors.Is(err, workflow.ErrConversationNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Chat not found"
	case errors.Is(err, service.ErrPartNotFound):
		return http.StatusNotFound, "AI Act part not found"
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
