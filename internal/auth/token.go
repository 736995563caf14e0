package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
)

// maxTokenBody caps the token request body.
const maxTokenBody = 16 << 10

// HandleToken returns the /oauth/token handler. Client credentials may
// arrive in the body (form or JSON) or in HTTP Basic authentication.
func HandleToken(grants *GrantService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxTokenBody)

		req, ok := decodeTokenRequest(r)
		if !ok {
			writeOAuthError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
			return
		}

		if id, secret, hasBasic := r.BasicAuth(); hasBasic {
			// RFC 6749 Section 2.3.1: one authentication method per request.
			if req.ClientSecret != "" {
				writeOAuthError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
					"multiple client authentication methods")
				return
			}

			req.ClientID = formUnescape(id)
			req.ClientSecret = formUnescape(secret)
		}

		resp, err := grants.ClientCredentials(r.Context(), req)
		if err != nil {
			var oe *OAuthError
			if !errors.As(err, &oe) {
				logger.Error("token endpoint: unexpected error", slog.String("error", err.Error()))
				oe = errInvalidRequest()
			}

			writeOAuthError(w, oe.Status, oe.Code, oe.Description)

			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeTokenRequest(r *http.Request) (TokenRequest, bool) {
	var req TokenRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}

		return req, true
	}

	if err := r.ParseForm(); err != nil {
		return req, false
	}

	return TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Scope:        r.PostFormValue("scope"),
	}, true
}

// formUnescape decodes Basic credentials, which RFC 6749 requires to be
// form-urlencoded. Values that do not decode are used as sent.
func formUnescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}

	return s
}
