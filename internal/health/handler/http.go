// Package handler exposes the liveness endpoint.
package handler

import (
	"context"
	"net/http"
	"time"

	"support-access-plane/internal/server/middleware"
)

// Pinger checks connectivity to the durable store. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves GET /health.
type Handler struct {
	db Pinger
}

// NewHandler returns a health Handler. db may be nil; the check then reports
// liveness only.
func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

// Health reports ok when the process is up and the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
