package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/pkg/validate"
)

const (
	msgCodeExpired     = "Confirmation code expired or not found"
	msgCodeInvalid     = "Invalid confirmation code"
	msgUnavailable     = "service temporarily unavailable"
	msgInternal        = "internal server error"
	msgInvalidBody     = "invalid request body"
	msgDuplicateEmail  = "user with this email already exists"
	msgResendAccepted  = "If the account exists and is not yet active, a new confirmation code has been sent"
	msgAccountActive   = "Account activated"
	msgPasswordChanged = "password changed"
)

// httpError maps a service error onto a status code and body.
// Field validation problems are answered as {field: message}.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	var fe validate.FieldErrors
	switch {
	case errors.Is(err, domain.ErrInvalidOrExpiredCode):
		writeError(w, http.StatusBadRequest, msgCodeExpired)
	case errors.Is(err, domain.ErrDuplicateEmail):
		writeJSON(w, http.StatusBadRequest, validate.FieldErrors{"email": msgDuplicateEmail})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, fe)
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		slog.Error("code store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
