package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/models"
)

//go:generate mockgen -source=users.go -destination=mock_users_test.go -package=auth

// UserRepository is the user lookup the session flows need. Missing
// users are reported as ErrUserNotFound.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// UserSpec describes a user to add. Password is plaintext and is
// hashed before storage.
type UserSpec struct {
	Username  string
	Password  string
	Email     string
	Role      string
	FirstName string
	LastName  string
	Disabled  bool
}

type userEntry struct {
	mu   sync.RWMutex
	user models.User
}

func (e *userEntry) snapshot() models.User {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u := e.user
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}

	return u
}

// MemoryUsers is an in-memory UserRepository. Usernames match
// case-insensitively.
type MemoryUsers struct {
	byID   sync.Map // string -> *userEntry
	byName sync.Map // folded username -> *userEntry

	hasher SecretHasher
	now    func() time.Time
}

// NewMemoryUsers returns an empty repository that hashes passwords
// with hasher.
func NewMemoryUsers(hasher SecretHasher) *MemoryUsers {
	return &MemoryUsers{hasher: hasher, now: time.Now}
}

func foldUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// Add hashes the password and stores a new user with a random id.
func (m *MemoryUsers) Add(_ context.Context, spec UserSpec) (*models.User, error) {
	username := strings.TrimSpace(spec.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperrors.ErrInvalidInput)
	}

	key := foldUsername(username)
	if _, exists := m.byName.Load(key); exists {
		return nil, fmt.Errorf("%w: username %q already taken", apperrors.ErrInvalidInput, username)
	}

	hash, err := m.hasher.Hash(spec.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password for %s: %w", username, err)
	}

	e := &userEntry{user: models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        spec.Email,
		Role:         spec.Role,
		FirstName:    spec.FirstName,
		LastName:     spec.LastName,
		PasswordHash: hash,
		Active:       !spec.Disabled,
		CreatedAt:    m.now().UTC(),
	}}

	if _, loaded := m.byName.LoadOrStore(key, e); loaded {
		return nil, fmt.Errorf("%w: username %q already taken", apperrors.ErrInvalidInput, username)
	}

	m.byID.Store(e.user.ID, e)

	u := e.snapshot()

	return &u, nil
}

// GetByUsername implements UserRepository.
func (m *MemoryUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	v, ok := m.byName.Load(foldUsername(username))
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}

	u := v.(*userEntry).snapshot()

	return &u, nil
}

// GetByID implements UserRepository.
func (m *MemoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	v, ok := m.byID.Load(id)
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}

	u := v.(*userEntry).snapshot()

	return &u, nil
}

// UpdateLastLogin implements UserRepository.
func (m *MemoryUsers) UpdateLastLogin(_ context.Context, id string) error {
	v, ok := m.byID.Load(id)
	if !ok {
		return apperrors.ErrUserNotFound
	}

	e := v.(*userEntry)
	now := m.now().UTC()

	e.mu.Lock()
	e.user.LastLoginAt = &now
	e.mu.Unlock()

	return nil
}
