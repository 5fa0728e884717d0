package handler

import (
	"errors"
	"net/http"

	"github.com/go-api-accounts/internal/application/auth"
	"github.com/go-api-accounts/internal/domain"
)

// AuthHandler serves registration and account confirmation.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Confirm never tells the caller whether the code was wrong, expired or
// already used. Only malformed input gets its own message.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgCodeInvalid)
		return
	}
	tok, err := h.svc.Confirm(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrBadRequest) && !errors.Is(err, domain.ErrInvalidOrExpiredCode) {
			writeError(w, http.StatusBadRequest, msgCodeInvalid)
			return
		}
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmEnvelope{Message: msgAccountActive, Key: tok.Key})
}

func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := h.svc.Resend(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: msgResendAccepted})
}
