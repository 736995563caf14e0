package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/models"
)

// clientView is the admin representation of a client. The secret hash
// never leaves the registry.
type clientView struct {
	ID           int64      `json:"id"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Scopes       []string   `json:"scopes"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

func newClientView(c *models.OAuthClient, secret string) clientView {
	scopes := c.Scopes()
	if scopes == nil {
		scopes = []string{}
	}

	return clientView{
		ID:           c.ID,
		ClientID:     c.ClientID,
		ClientSecret: secret,
		Name:         c.Name,
		Description:  c.Description,
		Scopes:       scopes,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		LastUsedAt:   c.LastUsedAt,
	}
}

// AdminHandlers serves client administration. Routes must be guarded
// by Middleware and RequireRole.
type AdminHandlers struct {
	registry *ClientRegistry
	logger   *slog.Logger
}

// NewAdminHandlers returns handlers backed by registry.
func NewAdminHandlers(registry *ClientRegistry, logger *slog.Logger) *AdminHandlers {
	return &AdminHandlers{registry: registry, logger: logger}
}

// ListClients handles GET /api/admin/clients.
func (h *AdminHandlers) ListClients(w http.ResponseWriter, r *http.Request) {
	clients := h.registry.GetAll(r.Context())

	out := make([]clientView, 0, len(clients))
	for i := range clients {
		out = append(out, newClientView(&clients[i], ""))
	}

	writeJSON(w, http.StatusOK, out)
}

// CreateClient handles POST /api/admin/clients. The plaintext secret
// is only ever present in this response.
func (h *AdminHandlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	var spec ClientSpec
	if !decodeBody(w, r, &spec) {
		return
	}

	if spec.Secret != "" && len(spec.Secret) < clientSecretMinLen {
		writeError(w, r, h.logger, fmt.Errorf("%w: client secret must be at least %d characters",
			apperrors.ErrInvalidInput, clientSecretMinLen))
		return
	}

	client, secret, err := h.registry.Create(r.Context(), spec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("admin: client created",
		slog.String("client_id", client.ClientID),
		slog.String("by", callerSubject(r)),
	)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, newClientView(client, secret))
}

// DeactivateClient handles POST /api/admin/clients/{clientID}/deactivate.
func (h *AdminHandlers) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// ActivateClient handles POST /api/admin/clients/{clientID}/activate.
func (h *AdminHandlers) ActivateClient(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AdminHandlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	client, err := h.registry.SetActive(r.Context(), chi.URLParam(r, "clientID"), active)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newClientView(client, ""))
}

// RotateSecret handles POST /api/admin/clients/{clientID}/rotate-secret.
func (h *AdminHandlers) RotateSecret(w http.ResponseWriter, r *http.Request) {
	client, secret, err := h.registry.RotateSecret(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("admin: client secret rotated",
		slog.String("client_id", client.ClientID),
		slog.String("by", callerSubject(r)),
	)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, newClientView(client, secret))
}

func callerSubject(r *http.Request) string {
	if c := ClaimsFromContext(r.Context()); c != nil {
		return c.Subject
	}

	return ""
}
