package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
	"github.com/alexjbarnes/txmon-auth/internal/models"
	"github.com/alexjbarnes/txmon-auth/internal/tokens"
)

const (
	grantPassword = "password"
	grantRefresh  = "refresh_token"
)

// UserTokenIssuer mints access tokens for users.
type UserTokenIssuer interface {
	IssueUserToken(user models.User) (string, error)
	ExpirationOfNextIssue() time.Time
}

// SessionUser is the public view of a user returned with a session.
type SessionUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         SessionUser `json:"user"`
}

// SessionService runs the user login, refresh and logout flows.
type SessionService struct {
	users    UserRepository
	verifier SecretVerifier
	issuer   UserTokenIssuer
	refresh  tokens.RefreshStore
	logger   *slog.Logger
}

// NewSessionService wires the session collaborators.
func NewSessionService(users UserRepository, verifier SecretVerifier, issuer UserTokenIssuer, refresh tokens.RefreshStore, logger *slog.Logger) *SessionService {
	return &SessionService{
		users:    users,
		verifier: verifier,
		issuer:   issuer,
		refresh:  refresh,
		logger:   logger,
	}
}

// Login checks the password and starts a session. Unknown users,
// inactive users and wrong passwords all return ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	res, err := s.login(ctx, username, password)
	recordGrant(grantPassword, err)

	return res, err
}

func (s *SessionService) login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperrors.ErrInvalidInput)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		_, _ = verifySecret(s.verifier, password, s.verifier.Decoy())
		s.logger.Warn("login: unknown user")

		return nil, apperrors.ErrInvalidCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	ok, err := verifySecret(s.verifier, password, user.PasswordHash)
	if err != nil && !errors.Is(err, apperrors.ErrInvalidInput) {
		return nil, fmt.Errorf("verifying password: %w", err)
	}

	if !ok || !user.Active {
		s.logger.Warn("login: rejected",
			slog.String("user_id", user.ID),
			slog.Bool("active", user.Active),
		)

		return nil, apperrors.ErrInvalidCredentials
	}

	res, err := s.startSession(ctx, *user)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("login: recording last login failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return res, nil
}

// Refresh spends refreshToken and returns a new token pair. A token
// that is unknown, expired or already spent returns ErrInvalidToken.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	res, err := s.rotate(ctx, refreshToken)
	recordGrant(grantRefresh, err)

	return res, err
}

func (s *SessionService) rotate(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrInvalidToken
	}

	subject, err := s.refresh.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	removed, err := s.refresh.Invalidate(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("spending refresh token: %w", err)
	}

	// Validate does not consume, so a concurrent refresh with the same
	// token can pass it too. Only the caller whose Invalidate removed
	// the entry may continue.
	if !removed {
		metrics.RefreshReuse.Inc()
		s.logger.Warn("refresh: token already spent", slog.String("user_id", subject))

		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, subject)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrInvalidToken
	}

	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !user.Active {
		s.logger.Warn("refresh: user inactive", slog.String("user_id", user.ID))
		return nil, apperrors.ErrInvalidToken
	}

	return s.startSession(ctx, *user)
}

// Logout revokes refreshToken. Unknown tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if _, err := s.refresh.Invalidate(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}

	return nil
}

func (s *SessionService) startSession(ctx context.Context, user models.User) (*LoginResult, error) {
	expiresAt := s.issuer.ExpirationOfNextIssue()

	access, err := s.issuer.IssueUserToken(user)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	refresh, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User: SessionUser{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			Role:      user.Role,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
	}, nil
}

func recordGrant(grant string, err error) {
	result := "success"

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		result = "invalid_credentials"
	case errors.Is(err, apperrors.ErrInvalidToken):
		result = "invalid_token"
	case errors.Is(err, apperrors.ErrInvalidInput):
		result = "invalid_input"
	default:
		result = "error"
	}

	metrics.Grants.WithLabelValues(grant, result).Inc()
}
