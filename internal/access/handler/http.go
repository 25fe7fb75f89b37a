// Package handler exposes the support-access API over HTTP JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	accessdomain "support-access-plane/internal/access/domain"
	"support-access-plane/internal/access/service"
	auditdomain "support-access-plane/internal/audit/domain"
	"support-access-plane/internal/platform/rbac"
	"support-access-plane/internal/server/middleware"
	userdomain "support-access-plane/internal/user/domain"
)

// UserGetter resolves users for the scoped read path and admin checks.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Handler serves the support-session lifecycle and the scoped read path.
type Handler struct {
	manager *service.Manager
	users   UserGetter
}

// NewHandler returns a Handler with the given dependencies.
func NewHandler(manager *service.Manager, users UserGetter) *Handler {
	return &Handler{manager: manager, users: users}
}

// Uses the global meter so validation checks are counted wherever they happen;
// a no-op until a real provider is installed at startup.
var tokenValidations, _ = otel.Meter("support-access-plane/access").Int64Counter(
	"support_token_validations_total",
	metric.WithDescription("Scoped token validation checks, by outcome"))

func countValidation(ctx context.Context, valid bool) {
	tokenValidations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}

type createSessionRequest struct {
	TargetID        string `json:"target_id"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
}

type sessionResponse struct {
	ID              string     `json:"id"`
	AdminID         string     `json:"admin_id"`
	TargetID        string     `json:"target_id"`
	Reason          string     `json:"reason"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type createSessionResponse struct {
	Session sessionResponse `json:"session"`
	Token   string          `json:"token"`
}

// CreateSession handles POST /v1/support-sessions. The plaintext token in the
// response is the only time it is ever visible.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.manager.Create(r.Context(), adminID, req.TargetID, req.Reason, req.DurationMinutes)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, createSessionResponse{
		Session: toSessionResponse(res.Session),
		Token:   res.Token,
	})
}

// ListSessions handles GET /v1/support-sessions. Returns only the caller's own
// active, unexpired sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	sessions, err := h.manager.ListActive(r.Context(), adminID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

// EndSession handles POST /v1/support-sessions/{id}/end. The body is optional;
// an absent or empty reason records a normal completion.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := mux.Vars(r)["id"]
	if err := h.manager.End(r.Context(), sessionID, adminID, req.Reason); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAuditLog handles GET /v1/support-sessions/{id}/audit.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	entries, err := h.manager.ListAudit(r.Context(), mux.Vars(r)["id"], adminID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid     bool       `json:"valid"`
	SessionID string     `json:"session_id,omitempty"`
	AdminID   string     `json:"admin_id,omitempty"`
	TargetID  string     `json:"target_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ValidateToken handles POST /v1/support-tokens/validate. The token comes from
// the X-Support-Token header or the request body. Every negative case yields
// the same {"valid":false} body.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(supportTokenHeader)
	if token == "" {
		var req validateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	v, err := h.manager.Validate(r.Context(), token)
	if err != nil {
		log.Printf("access: validate token: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	countValidation(r.Context(), v.Valid)
	middleware.WriteJSON(w, http.StatusOK, toValidateResponse(v))
}

const supportTokenHeader = "X-Support-Token"

type scopedUserResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// ScopedUserView handles GET /v1/scoped/users/{id}. The scoped token is the
// only credential; it is re-validated on every request and must cover the
// target named in the path. Successful reads leave a user_viewed audit entry.
func (h *Handler) ScopedUserView(w http.ResponseWriter, r *http.Request) {
	v, err := h.manager.Validate(r.Context(), r.Header.Get(supportTokenHeader))
	if err != nil {
		log.Printf("access: scoped view validate: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	targetID := mux.Vars(r)["id"]
	countValidation(r.Context(), v.Valid && v.TargetID == targetID)
	if !v.Valid || v.TargetID != targetID {
		middleware.WriteJSON(w, http.StatusUnauthorized, validateTokenResponse{Valid: false})
		return
	}
	user, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		log.Printf("access: scoped view load user: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		middleware.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	h.manager.RecordScopedView(r.Context(), v, "user", targetID)
	middleware.WriteJSON(w, http.StatusOK, scopedUserResponse{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   string(user.Role),
		Status: string(user.Status),
	})
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	adminID, err := rbac.RequireAdmin(r.Context(), h.users)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrUnauthenticated):
			middleware.WriteError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, rbac.ErrNotAdmin):
			middleware.WriteError(w, http.StatusForbidden, err.Error())
		default:
			log.Printf("access: resolve caller: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return "", false
	}
	return adminID, true
}

// writeManagerError maps lifecycle manager errors to HTTP statuses per the
// error taxonomy: validation 400, authorization 403/404, conflict 409 with the
// existing session id, everything else a generic 500.
func writeManagerError(w http.ResponseWriter, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.Is(err, service.ErrInvalidDuration), errors.Is(err, service.ErrReasonRequired):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrTargetIneligible):
		middleware.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTargetNotFound), errors.Is(err, service.ErrNotFoundOrForbidden):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":               conflict.Error(),
			"existing_session_id": conflict.ExistingSessionID,
		})
	default:
		log.Printf("access: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func toSessionResponse(s *accessdomain.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		AdminID:         s.AdminID,
		TargetID:        s.TargetID,
		Reason:          s.Reason,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
		EndedAt:         s.EndedAt,
	}
}

type auditEntryResponse struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	AdminID      string    `json:"admin_id"`
	TargetID     string    `json:"target_id"`
	ActionType   string    `json:"action_type"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Details      string    `json:"details,omitempty"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAuditEntryResponse(e *auditdomain.Entry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		SessionID:    e.SessionID,
		AdminID:      e.AdminID,
		TargetID:     e.TargetID,
		ActionType:   e.ActionType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
	}
}

func toValidateResponse(v service.Validation) validateTokenResponse {
	if !v.Valid {
		return validateTokenResponse{Valid: false}
	}
	exp := v.ExpiresAt
	return validateTokenResponse{
		Valid:     true,
		SessionID: v.SessionID,
		AdminID:   v.AdminID,
		TargetID:  v.TargetID,
		ExpiresAt: &exp,
	}
}
