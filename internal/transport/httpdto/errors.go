package httpdto

import (
	"errors"
	"net/http"

	veilchat_errors "veilchat/pkg/errors"
)

// ErrorCode maps a service error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, veilchat_errors.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, veilchat_errors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, veilchat_errors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, veilchat_errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, veilchat_errors.ErrConflict), errors.Is(err, veilchat_errors.ErrAlreadyExists):
		return "CONFLICT"
	case errors.Is(err, veilchat_errors.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, veilchat_errors.ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// ErrorMessage returns the client-facing message for err. Unclassified
// errors render as a fixed message so storage and driver detail never
// reaches a response body.
func ErrorMessage(err error) string {
	if ErrorCode(err) == "INTERNAL" {
		return "internal server error"
	}
	return err.Error()
}

// ErrorStatus maps a service error to its HTTP status.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, veilchat_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, veilchat_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, veilchat_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, veilchat_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, veilchat_errors.ErrConflict), errors.Is(err, veilchat_errors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, veilchat_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, veilchat_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
