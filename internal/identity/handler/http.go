// Package handler exposes password login over HTTP JSON.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"support-access-plane/internal/identity/service"
	"support-access-plane/internal/server/middleware"
)

// Handler serves the login endpoint.
type Handler struct {
	auth *service.AuthService
}

// NewHandler returns a Handler backed by the given auth service.
func NewHandler(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
}

// Login handles POST /v1/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			middleware.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		log.Printf("identity: login: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		UserID:      res.UserID,
		Role:        string(res.Role),
	})
}
