// Package server assembles the HTTP router, wiring middleware and handlers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"

	accesshandler "support-access-plane/internal/access/handler"
	healthhandler "support-access-plane/internal/health/handler"
	identityhandler "support-access-plane/internal/identity/handler"
	"support-access-plane/internal/security"
	"support-access-plane/internal/server/middleware"
	"support-access-plane/internal/telemetry/producer"
)

// Deps holds everything the router needs.
type Deps struct {
	Tokens   *security.TokenProvider
	Access   *accesshandler.Handler
	Identity *identityhandler.Handler
	Health   *healthhandler.Handler
	// Producer may be nil; request telemetry is then disabled.
	Producer producer.Producer
}

// NewRouter builds the full route table. Bearer auth covers the
// support-session routes only; login and health are open, and the scoped read
// path authenticates with its own per-request token.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.ClientMeta())
	r.Use(middleware.Telemetry(d.Producer, map[string]bool{"/health": true}))

	r.HandleFunc("/health", d.Health.Health).Methods(http.MethodGet)
	r.HandleFunc("/v1/login", d.Identity.Login).Methods(http.MethodPost)
	r.HandleFunc("/v1/support-tokens/validate", d.Access.ValidateToken).Methods(http.MethodPost)
	r.HandleFunc("/v1/scoped/users/{id}", d.Access.ScopedUserView).Methods(http.MethodGet)

	sessions := r.PathPrefix("/v1/support-sessions").Subrouter()
	sessions.Use(middleware.Auth(d.Tokens))
	sessions.HandleFunc("", d.Access.CreateSession).Methods(http.MethodPost)
	sessions.HandleFunc("", d.Access.ListSessions).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/end", d.Access.EndSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/audit", d.Access.ListAuditLog).Methods(http.MethodGet)

	return r
}
