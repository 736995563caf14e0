package auth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/alexjbarnes/txmon-auth/internal/tokens"
)

type contextKey int

const ctxClaims contextKey = iota

// TokenParser validates a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*tokens.Claims, error)
}

// ClaimsFromContext returns the authenticated caller's claims, or nil.
func ClaimsFromContext(ctx context.Context) *tokens.Claims {
	c, _ := ctx.Value(ctxClaims).(*tokens.Claims)
	return c
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *tokens.Claims) context.Context {
	return context.WithValue(ctx, ctxClaims, claims)
}

// RFC 6750 Section 3.1: no error attribute when no token was provided.
const (
	wwwAuthNoToken = `Bearer realm="txmon"`
	wwwAuthInvalid = `Bearer realm="txmon", error="invalid_token"`
)

// Middleware returns HTTP middleware that validates Bearer JWTs and
// places their claims in the request context.
func Middleware(parser TokenParser, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			ip := remoteIP(r)

			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				logger.Debug("middleware: no bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", wwwAuthNoToken)
				writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "Unauthorized",
					"a bearer token is required")

				return
			}

			claims, err := parser.Parse(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("middleware: invalid bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				w.Header().Set("WWW-Authenticate", wwwAuthInvalid)
				writeProblem(w, r, http.StatusUnauthorized, "invalid_token", "Invalid token",
					"the token is invalid or has expired")

				return
			}

			logger.Debug("middleware: authenticated",
				slog.String("sub", claims.Subject),
				slog.Bool("client", claims.IsClient()),
				slog.String("ip", ip),
			)

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects callers whose role claim is not one of roles.
// It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || !slices.Contains(roles, claims.Role) {
				writeProblem(w, r, http.StatusForbidden, "forbidden", "Forbidden",
					"the caller's role does not permit this operation")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope rejects callers whose token lacks scope. Scopes compare
// case-insensitively, like the grant that issued them.
func RequireScope(scope string) func(http.Handler) http.Handler {
	want := cases.Fold().String(scope)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())

			if claims != nil {
				fold := cases.Fold()
				for _, s := range claims.Scopes() {
					if fold.String(s) == want {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			w.Header().Set("WWW-Authenticate", `Bearer realm="txmon", error="insufficient_scope", scope="`+scope+`"`)
			writeProblem(w, r, http.StatusForbidden, "insufficient_scope", "Forbidden",
				"the token does not carry the required scope")
		})
	}
}
