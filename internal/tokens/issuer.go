// Package tokens issues and validates the credentials handed to
// callers: signed JWT access tokens for users and OAuth clients, and
// opaque refresh tokens for users.
package tokens

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/models"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MinSigningKeyLen is the shortest HS256 key NewIssuer accepts.
	MinSigningKeyLen = 32

	MinAccessTTL = time.Minute
	MaxAccessTTL = 120 * time.Minute
	MinClockSkew = time.Minute
	MaxClockSkew = 30 * time.Minute
)

// IssuerConfig is loaded once at startup.
type IssuerConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	ClockSkew  time.Duration
}

// Claims is the payload of every access token. User tokens fill the
// identity fields, client tokens fill ClientID and Scope.
type Claims struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	Scope      string `json:"scope,omitempty"`
	jwtv5.RegisteredClaims
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// IsClient reports whether the token was issued to an OAuth client.
func (c *Claims) IsClient() bool {
	return c.ClientID != ""
}

// Issuer signs access tokens with a shared HS256 key and validates
// tokens it signed.
type Issuer struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	skew      time.Duration
	now       func() time.Time
}

// NewIssuer validates cfg and returns an Issuer. Every error wraps
// ErrConfiguration; callers treat it as fatal.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLen {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", apperrors.ErrConfiguration, MinSigningKeyLen)
	}

	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("%w: issuer is required", apperrors.ErrConfiguration)
	}

	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("%w: audience is required", apperrors.ErrConfiguration)
	}

	if cfg.AccessTTL < MinAccessTTL || cfg.AccessTTL > MaxAccessTTL {
		return nil, fmt.Errorf("%w: access token TTL %s outside %s-%s", apperrors.ErrConfiguration, cfg.AccessTTL, MinAccessTTL, MaxAccessTTL)
	}

	if cfg.ClockSkew < MinClockSkew || cfg.ClockSkew > MaxClockSkew {
		return nil, fmt.Errorf("%w: clock skew %s outside %s-%s", apperrors.ErrConfiguration, cfg.ClockSkew, MinClockSkew, MaxClockSkew)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &Issuer{
		key:       key,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: cfg.AccessTTL,
		skew:      cfg.ClockSkew,
		now:       time.Now,
	}, nil
}

// IssueUserToken mints an access token for a human user.
func (i *Issuer) IssueUserToken(user models.User) (string, error) {
	return i.sign(Claims{
		Name:             user.Username,
		Email:            user.Email,
		Role:             user.Role,
		GivenName:        user.FirstName,
		FamilyName:       user.LastName,
		RegisteredClaims: i.registered(user.ID),
	})
}

// IssueClientToken mints an access token for an OAuth client carrying
// the granted scopes.
func (i *Issuer) IssueClientToken(client models.OAuthClient, scopes []string) (string, error) {
	return i.sign(Claims{
		Name:             client.Name,
		ClientID:         client.ClientID,
		Scope:            strings.Join(scopes, " "),
		RegisteredClaims: i.registered(client.ClientID),
	})
}

// ExpirationOfNextIssue is the expiry a token issued now would carry.
func (i *Issuer) ExpirationOfNextIssue() time.Time {
	return i.now().Add(i.accessTTL).UTC()
}

// ExpirationSeconds is the access token lifetime in seconds.
func (i *Issuer) ExpirationSeconds() int {
	return int(i.accessTTL / time.Second)
}

// Parse validates signature, issuer, audience and time claims with the
// configured clock skew. Every failure is reported as ErrInvalidToken.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwtv5.ParseWithClaims(token, claims, i.keyfunc,
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(i.issuer),
		jwtv5.WithAudience(i.audience),
		jwtv5.WithLeeway(i.skew),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	return claims, nil
}

func (i *Issuer) keyfunc(t *jwtv5.Token) (any, error) {
	if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}

	return i.key, nil
}

func (i *Issuer) registered(subject string) jwtv5.RegisteredClaims {
	now := i.now().UTC()

	return jwtv5.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    i.issuer,
		Audience:  jwtv5.ClaimStrings{i.audience},
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(i.accessTTL)),
	}
}

func (i *Issuer) sign(claims Claims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return signed, nil
}
