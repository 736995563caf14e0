package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
	"github.com/alexjbarnes/txmon-auth/internal/models"
)

//go:generate mockgen -source=grant.go -destination=mock_grant_test.go -package=auth

// GrantTypeClientCredentials is the only grant_type the token
// endpoint accepts.
const GrantTypeClientCredentials = "client_credentials"

// OAuth2 error codes (RFC 6749 Section 5.2).
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidScope         = "invalid_scope"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
)

// ClientStore is the registry view the grant needs.
type ClientStore interface {
	GetByClientID(ctx context.Context, clientID string) (*models.OAuthClient, error)
	UpdateLastUsed(ctx context.Context, clientID string) error
}

// SecretVerifier checks a presented secret against a stored hash.
// Decoy returns a hash that costs the same to verify as a real one and
// matches nothing.
type SecretVerifier interface {
	Verify(secret, stored string) (bool, error)
	Decoy() string
}

// ClientTokenIssuer mints access tokens for OAuth clients.
type ClientTokenIssuer interface {
	IssueClientToken(client models.OAuthClient, scopes []string) (string, error)
	ExpirationSeconds() int
}

// TokenRequest carries the token endpoint parameters.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// TokenResponse is the RFC 6749 Section 5.1 success body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// OAuthError is an RFC 6749 Section 5.2 error.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return e.Code + ": " + e.Description
}

func oauthError(status int, code, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description, Status: status}
}

// Not-found, inactive and wrong-secret all return this same value so
// callers cannot enumerate client ids.
func errInvalidClient() *OAuthError {
	return oauthError(http.StatusUnauthorized, ErrCodeInvalidClient, "client authentication failed")
}

func errInvalidRequest() *OAuthError {
	return oauthError(http.StatusBadRequest, ErrCodeInvalidRequest, "the request could not be processed")
}

// GrantService implements the client credentials grant
// (RFC 6749 Section 4.4). It holds no per-request state.
type GrantService struct {
	clients  ClientStore
	verifier SecretVerifier
	issuer   ClientTokenIssuer
	logger   *slog.Logger
}

// NewGrantService wires the grant's collaborators.
func NewGrantService(clients ClientStore, verifier SecretVerifier, issuer ClientTokenIssuer, logger *slog.Logger) *GrantService {
	return &GrantService{
		clients:  clients,
		verifier: verifier,
		issuer:   issuer,
		logger:   logger,
	}
}

// ClientCredentials authenticates the client, narrows the requested
// scopes to the client's allowed set and issues an access token.
// Errors are always *OAuthError.
func (g *GrantService) ClientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := g.clientCredentials(ctx, req)

	result := "success"
	if err != nil {
		var oe *OAuthError
		if errors.As(err, &oe) {
			result = oe.Code
		}
	}

	metrics.Grants.WithLabelValues(GrantTypeClientCredentials, result).Inc()

	return resp, err
}

func (g *GrantService) clientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	// Checked before any lookup so unsupported grants cost nothing.
	if req.GrantType != GrantTypeClientCredentials {
		return nil, oauthError(http.StatusBadRequest, ErrCodeUnsupportedGrantType,
			"only client_credentials is supported")
	}

	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.ClientSecret) == "" {
		return nil, errInvalidClient()
	}

	client, err := g.clients.GetByClientID(ctx, req.ClientID)
	if errors.Is(err, apperrors.ErrClientNotFound) {
		g.burnVerify(req.ClientSecret)
		g.logger.Warn("client credentials: unknown client", slog.String("client_id", req.ClientID))

		return nil, errInvalidClient()
	}

	if err != nil {
		g.logger.Error("client credentials: client lookup failed",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)

		return nil, errInvalidRequest()
	}

	ok, err := verifySecret(g.verifier, req.ClientSecret, client.ClientSecret)
	if err != nil {
		g.logger.Error("client credentials: secret verification failed",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)

		return nil, errInvalidRequest()
	}

	if !ok || !client.Active {
		g.logger.Warn("client credentials: rejected",
			slog.String("client_id", req.ClientID),
			slog.Bool("active", client.Active),
		)

		return nil, errInvalidClient()
	}

	requested := ParseScopes(req.Scope)
	granted := IntersectScopes(requested, client.Scopes())

	if len(requested) > 0 && len(granted) == 0 {
		g.logger.Warn("client credentials: no requested scope allowed",
			slog.String("client_id", req.ClientID),
			slog.String("requested", req.Scope),
		)

		return nil, oauthError(http.StatusBadRequest, ErrCodeInvalidScope,
			"none of the requested scopes are allowed for this client")
	}

	token, err := g.issuer.IssueClientToken(*client, granted)
	if err != nil {
		g.logger.Error("client credentials: issuing token failed",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)

		return nil, errInvalidRequest()
	}

	if err := g.clients.UpdateLastUsed(ctx, client.ClientID); err != nil {
		g.logger.Warn("client credentials: recording last use failed",
			slog.String("client_id", client.ClientID),
			slog.String("error", err.Error()),
		)
	}

	scope := strings.Join(granted, " ")

	g.logger.Info("client credentials token issued",
		slog.String("client_id", client.ClientID),
		slog.String("scope", scope),
	)

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   g.issuer.ExpirationSeconds(),
		Scope:       scope,
	}, nil
}

// burnVerify spends the same work as a real verification so unknown
// client ids answer in the same time as known ones.
func (g *GrantService) burnVerify(secret string) {
	_, _ = verifySecret(g.verifier, secret, g.verifier.Decoy())
}

func verifySecret(v SecretVerifier, secret, stored string) (bool, error) {
	start := time.Now()
	defer func() { metrics.SecretVerify.Observe(time.Since(start).Seconds()) }()

	return v.Verify(secret, stored)
}
