// Package server provides HTTP server construction for txmon-auth.
package server

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexjbarnes/txmon-auth/internal/auth"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
)

const (
	// AdminRole is the role claim required by the client administration API.
	AdminRole = "Admin"

	// ClientsReadScope lets a machine client list registered clients.
	ClientsReadScope = "clients:read"
)

// MuxConfig holds dependencies for building the HTTP router.
type MuxConfig struct {
	Grants    *auth.GrantService
	Sessions  *auth.SessionService
	Registry  *auth.ClientRegistry
	Tokens    auth.TokenParser
	Logger    *slog.Logger
	Issuer    string
	ServerURL string

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are honoured. Empty trusts nobody.
	TrustedProxies []netip.Prefix
}

// NewMux builds the router with OAuth discovery, token, session and
// admin endpoints. Admin routes require a bearer token with the Admin
// role; /api/clients is the read-only listing for machine clients
// granted ClientsReadScope.
func NewMux(cfg MuxConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(trustedRealIP(cfg.TrustedProxies))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	r.Get("/.well-known/oauth-authorization-server", auth.HandleServerMetadata(cfg.Issuer, cfg.ServerURL, cfg.Registry))
	r.Post("/oauth/token", auth.HandleToken(cfg.Grants, cfg.Logger))

	bearer := auth.Middleware(cfg.Tokens, cfg.Logger)
	sessions := auth.NewSessionHandlers(cfg.Sessions, cfg.Logger)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", sessions.Login)
		r.Post("/refresh", sessions.Refresh)
		r.Post("/logout", sessions.Logout)
		r.With(bearer).Get("/me", sessions.Me)
	})

	admin := auth.NewAdminHandlers(cfg.Registry, cfg.Logger)

	r.Route("/api/admin/clients", func(r chi.Router) {
		r.Use(bearer, auth.RequireRole(AdminRole))
		r.Get("/", admin.ListClients)
		r.Post("/", admin.CreateClient)
		r.Post("/{clientID}/deactivate", admin.DeactivateClient)
		r.Post("/{clientID}/activate", admin.ActivateClient)
		r.Post("/{clientID}/rotate-secret", admin.RotateSecret)
	})

	r.With(bearer, auth.RequireScope(ClientsReadScope)).Get("/api/clients", admin.ListClients)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
