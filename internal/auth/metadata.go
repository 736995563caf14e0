package auth

import (
	"context"
	"net/http"
	"strings"
)

// ServerMetadata is the RFC 8414 response.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// HandleServerMetadata returns the /.well-known/oauth-authorization-server
// handler. Supported scopes are those held by registry's clients.
func HandleServerMetadata(issuer, baseURL string, registry *ClientRegistry) http.HandlerFunc {
	baseURL = strings.TrimRight(baseURL, "/")

	return func(w http.ResponseWriter, r *http.Request) {
		meta := ServerMetadata{
			Issuer:                            issuer,
			TokenEndpoint:                     baseURL + "/oauth/token",
			ResponseTypesSupported:            []string{},
			GrantTypesSupported:               []string{GrantTypeClientCredentials},
			TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic"},
		}
		if registry != nil {
			meta.ScopesSupported = registry.KnownScopes(r.Context())
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, meta)
	}
}

// KnownScopes returns the distinct scopes held by any registered
// client, in registration order.
func (r *ClientRegistry) KnownScopes(ctx context.Context) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, c := range r.GetAll(ctx) {
		for _, s := range c.Scopes() {
			if _, ok := seen[s]; ok {
				continue
			}

			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	return out
}
