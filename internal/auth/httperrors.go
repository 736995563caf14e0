package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
)

// CorrelationHeader carries a caller-chosen request correlation id.
const CorrelationHeader = "X-Correlation-ID"

// Problem is the error body of the non-OAuth endpoints.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type problemEnvelope struct {
	Success       bool    `json:"success"`
	Error         Problem `json:"error"`
	CorrelationID string  `json:"correlationId"`
}

// CorrelationID returns the request's X-Correlation-ID, or a new UUID
// when the caller sent none.
func CorrelationID(r *http.Request) string {
	if id := r.Header.Get(CorrelationHeader); id != "" && len(id) <= 128 {
		return id
	}

	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, title, detail string) {
	id := CorrelationID(r)
	w.Header().Set(CorrelationHeader, id)

	writeJSON(w, status, problemEnvelope{
		Error: Problem{
			Type:   typ,
			Title:  title,
			Status: status,
			Detail: detail,
		},
		CorrelationID: id,
	})
}

// writeError maps err onto the public error taxonomy. Unexpected
// errors are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeProblem(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials",
			"the username or password is incorrect")
	case errors.Is(err, apperrors.ErrInvalidToken):
		writeProblem(w, r, http.StatusUnauthorized, "invalid_token", "Invalid token",
			"the token is invalid or has expired")
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", "Invalid input", err.Error())
	case errors.Is(err, apperrors.ErrClientNotFound), errors.Is(err, apperrors.ErrUserNotFound):
		writeProblem(w, r, http.StatusNotFound, "not_found", "Not found", err.Error())
	case errors.Is(err, apperrors.ErrClientExists):
		writeProblem(w, r, http.StatusConflict, "conflict", "Conflict", err.Error())
	default:
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeProblem(w, r, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

// writeOAuthError writes an RFC 6749 Section 5.2 error body.
func writeOAuthError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}

	writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}
