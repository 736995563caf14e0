package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/models"
)

const (
	// refreshTokenBytes is the entropy of a refresh token before
	// base64url encoding.
	refreshTokenBytes = 64

	MinRefreshTTL = 24 * time.Hour
	MaxRefreshTTL = 30 * 24 * time.Hour
)

// RefreshStore tracks issued refresh tokens.
//
// Validate never consumes a token. Callers that rotate tokens call
// Invalidate afterwards and must treat a false result as a lost race:
// another caller already spent the token.
type RefreshStore interface {
	// Issue records a new token for subject and returns it.
	Issue(ctx context.Context, subject string) (string, error)

	// Validate returns the token's subject, or ErrInvalidToken when the
	// token is unknown or expired. Expired entries are deleted.
	Validate(ctx context.Context, token string) (string, error)

	// Invalidate deletes the token. It is idempotent and reports
	// whether this call removed an entry.
	Invalidate(ctx context.Context, token string) (bool, error)
}

// NewRefreshToken returns an unguessable opaque token value.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validateRefreshTTL(ttl time.Duration) error {
	if ttl < MinRefreshTTL || ttl > MaxRefreshTTL {
		return fmt.Errorf("%w: refresh token TTL %s outside %s-%s", apperrors.ErrConfiguration, ttl, MinRefreshTTL, MaxRefreshTTL)
	}

	return nil
}

// MemoryRefreshStore keeps refresh tokens in process memory. Entries
// live in a sync.Map so unrelated tokens never contend on one lock.
// Expiry is checked on read; there is no background sweeper.
type MemoryRefreshStore struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map // token -> models.RefreshToken
}

// NewMemoryRefreshStore returns an empty store issuing tokens valid
// for ttl.
func NewMemoryRefreshStore(ttl time.Duration) (*MemoryRefreshStore, error) {
	if err := validateRefreshTTL(ttl); err != nil {
		return nil, err
	}

	return &MemoryRefreshStore{ttl: ttl, now: time.Now}, nil
}

// Issue stores a fresh token for subject.
func (s *MemoryRefreshStore) Issue(_ context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: refresh token subject is required", apperrors.ErrInvalidInput)
	}

	token, err := NewRefreshToken()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	s.entries.Store(token, models.RefreshToken{
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})

	return token, nil
}

// Validate returns the subject for a live token.
func (s *MemoryRefreshStore) Validate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", apperrors.ErrInvalidToken
	}

	v, ok := s.entries.Load(token)
	if !ok {
		return "", apperrors.ErrInvalidToken
	}

	rt := v.(models.RefreshToken)
	if rt.Expired(s.now()) {
		// Only remove the entry we inspected, not one stored since.
		s.entries.CompareAndDelete(token, rt)
		return "", apperrors.ErrInvalidToken
	}

	return rt.Subject, nil
}

// Invalidate removes token if present.
func (s *MemoryRefreshStore) Invalidate(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	_, removed := s.entries.LoadAndDelete(token)

	return removed, nil
}

// Len counts stored entries, expired ones included.
func (s *MemoryRefreshStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}
