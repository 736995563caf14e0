// Package auth implements credential flows for the transaction
// monitoring API: the OAuth2 client credentials grant, user login with
// refresh token rotation, the client registry and the HTTP handlers
// and bearer middleware that expose them.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
	"github.com/alexjbarnes/txmon-auth/internal/models"
)

const (
	// clientSecretMinLen is the shortest caller-chosen client secret
	// the admin API accepts. Seeded clients are not held to it.
	clientSecretMinLen = 16

	// generatedSecretBytes and generatedClientIDBytes size values the
	// registry generates itself (hex-encoded to twice this length).
	generatedSecretBytes   = 32
	generatedClientIDBytes = 12
)

// SecretHasher produces stored hashes for new or rotated secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)
}

// ClientPersister durably stores registry state. A nil persister keeps
// the registry purely in memory.
type ClientPersister interface {
	SaveOAuthClient(c models.OAuthClient) error
	AllOAuthClients() ([]models.OAuthClient, error)
}

// ClientSpec describes a client to register. Empty ClientID or Secret
// are generated.
type ClientSpec struct {
	ClientID    string   `json:"client_id"`
	Secret      string   `json:"client_secret,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Scopes      []string `json:"scopes"`
}

// clientEntry is shared by both indexes so a lookup by id and a lookup
// by client_id always observe the same record.
type clientEntry struct {
	mu     sync.RWMutex
	client models.OAuthClient
}

func (e *clientEntry) snapshot() models.OAuthClient {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return copyClient(e.client)
}

func copyClient(c models.OAuthClient) models.OAuthClient {
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		c.LastUsedAt = &t
	}

	return c
}

// ClientRegistry is the concurrent store of registered OAuth clients.
// Clients are never deleted, only deactivated.
type ClientRegistry struct {
	byID       sync.Map // int64 -> *clientEntry
	byClientID sync.Map // string -> *clientEntry
	nextID     atomic.Int64
	count      atomic.Int64

	hasher  SecretHasher
	persist ClientPersister
	logger  *slog.Logger
	now     func() time.Time
}

// NewClientRegistry returns an empty registry. persist may be nil.
func NewClientRegistry(hasher SecretHasher, persist ClientPersister, logger *slog.Logger) *ClientRegistry {
	return &ClientRegistry{
		hasher:  hasher,
		persist: persist,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore loads persisted clients and advances the id counter past
// the largest restored id. Call before serving traffic.
func (r *ClientRegistry) Restore(_ context.Context) (int, error) {
	if r.persist == nil {
		return 0, nil
	}

	clients, err := r.persist.AllOAuthClients()
	if err != nil {
		return 0, fmt.Errorf("loading persisted clients: %w", err)
	}

	restored := 0

	for _, c := range clients {
		e := &clientEntry{client: copyClient(c)}
		if _, loaded := r.byClientID.LoadOrStore(c.ClientID, e); loaded {
			r.logger.Warn("skipping duplicate persisted client", slog.String("client_id", c.ClientID))
			continue
		}

		r.byID.Store(c.ID, e)
		r.count.Add(1)
		restored++

		for {
			cur := r.nextID.Load()
			if c.ID <= cur || r.nextID.CompareAndSwap(cur, c.ID) {
				break
			}
		}
	}

	metrics.Clients.Set(float64(r.count.Load()))

	return restored, nil
}

// Create registers a client and returns it with the plaintext secret.
// The plaintext is not retained anywhere.
func (r *ClientRegistry) Create(_ context.Context, spec ClientSpec) (*models.OAuthClient, string, error) {
	clientID := strings.TrimSpace(spec.ClientID)
	if clientID == "" {
		clientID = RandomHex(generatedClientIDBytes)
	}

	secret := spec.Secret
	if strings.TrimSpace(secret) == "" {
		secret = RandomHex(generatedSecretBytes)
	}

	scopes := normalizeScopes(spec.Scopes)
	for _, s := range scopes {
		if strings.Contains(s, ",") || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
			return nil, "", fmt.Errorf("%w: scope %q must not contain commas or whitespace", apperrors.ErrInvalidInput, s)
		}
	}

	if _, exists := r.byClientID.Load(clientID); exists {
		return nil, "", fmt.Errorf("%w: %s", apperrors.ErrClientExists, clientID)
	}

	hash, err := r.hasher.Hash(secret)
	if err != nil {
		return nil, "", fmt.Errorf("hashing client secret: %w", err)
	}

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = clientID
	}

	now := r.now().UTC()
	e := &clientEntry{client: models.OAuthClient{
		ID:            r.nextID.Add(1),
		ClientID:      clientID,
		ClientSecret:  hash,
		Name:          name,
		Description:   spec.Description,
		AllowedScopes: models.JoinScopes(scopes),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}

	// LoadOrStore settles concurrent creates of the same client_id.
	// The id index is written before Create returns, so anyone who
	// learns the id sees both indexes populated.
	if _, loaded := r.byClientID.LoadOrStore(clientID, e); loaded {
		return nil, "", fmt.Errorf("%w: %s", apperrors.ErrClientExists, clientID)
	}

	r.byID.Store(e.client.ID, e)

	if r.persist != nil {
		if err := r.persist.SaveOAuthClient(e.client); err != nil {
			r.byID.Delete(e.client.ID)
			r.byClientID.CompareAndDelete(clientID, e)

			return nil, "", fmt.Errorf("persisting client: %w", err)
		}
	}

	metrics.Clients.Set(float64(r.count.Add(1)))

	r.logger.Info("oauth client registered",
		slog.Int64("id", e.client.ID),
		slog.String("client_id", clientID),
		slog.String("scopes", e.client.AllowedScopes),
	)

	c := copyClient(e.client)

	return &c, secret, nil
}

// GetByClientID returns a copy of the client, or ErrClientNotFound.
func (r *ClientRegistry) GetByClientID(_ context.Context, clientID string) (*models.OAuthClient, error) {
	v, ok := r.byClientID.Load(clientID)
	if !ok {
		return nil, apperrors.ErrClientNotFound
	}

	c := v.(*clientEntry).snapshot()

	return &c, nil
}

// GetByID returns a copy of the client, or ErrClientNotFound.
func (r *ClientRegistry) GetByID(_ context.Context, id int64) (*models.OAuthClient, error) {
	v, ok := r.byID.Load(id)
	if !ok {
		return nil, apperrors.ErrClientNotFound
	}

	c := v.(*clientEntry).snapshot()

	return &c, nil
}

// GetAll returns a snapshot of every client ordered by id. Later
// registry changes are not reflected in the returned slice.
func (r *ClientRegistry) GetAll(_ context.Context) []models.OAuthClient {
	var out []models.OAuthClient

	r.byID.Range(func(_, v any) bool {
		out = append(out, v.(*clientEntry).snapshot())
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Count returns the number of registered clients.
func (r *ClientRegistry) Count() int {
	return int(r.count.Load())
}

// UpdateLastUsed stamps the client's last use. The in-memory update
// always applies; a persistence failure is returned for logging only.
func (r *ClientRegistry) UpdateLastUsed(_ context.Context, clientID string) error {
	return r.mutate(clientID, func(c *models.OAuthClient, now time.Time) {
		c.LastUsedAt = &now
	})
}

// SetActive activates or deactivates a client.
func (r *ClientRegistry) SetActive(_ context.Context, clientID string, active bool) (*models.OAuthClient, error) {
	var updated models.OAuthClient

	err := r.mutate(clientID, func(c *models.OAuthClient, now time.Time) {
		c.Active = active
		c.UpdatedAt = now
		updated = copyClient(*c)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("oauth client active flag changed",
		slog.String("client_id", clientID),
		slog.Bool("active", active),
	)

	return &updated, nil
}

// RotateSecret replaces the client's secret with a generated one and
// returns the new plaintext.
func (r *ClientRegistry) RotateSecret(_ context.Context, clientID string) (*models.OAuthClient, string, error) {
	if _, ok := r.byClientID.Load(clientID); !ok {
		return nil, "", apperrors.ErrClientNotFound
	}

	secret := RandomHex(generatedSecretBytes)

	hash, err := r.hasher.Hash(secret)
	if err != nil {
		return nil, "", fmt.Errorf("hashing client secret: %w", err)
	}

	var updated models.OAuthClient

	err = r.mutate(clientID, func(c *models.OAuthClient, now time.Time) {
		c.ClientSecret = hash
		c.UpdatedAt = now
		updated = copyClient(*c)
	})
	if err != nil {
		return nil, "", err
	}

	r.logger.Info("oauth client secret rotated", slog.String("client_id", clientID))

	return &updated, secret, nil
}

// mutate applies fn under the entry's lock, then persists the result.
func (r *ClientRegistry) mutate(clientID string, fn func(c *models.OAuthClient, now time.Time)) error {
	v, ok := r.byClientID.Load(clientID)
	if !ok {
		return apperrors.ErrClientNotFound
	}

	e := v.(*clientEntry)

	e.mu.Lock()
	fn(&e.client, r.now().UTC())
	snapshot := copyClient(e.client)
	e.mu.Unlock()

	if r.persist == nil {
		return nil
	}

	if err := r.persist.SaveOAuthClient(snapshot); err != nil {
		return fmt.Errorf("persisting client %s: %w", clientID, err)
	}

	return nil
}

func normalizeScopes(scopes []string) []string {
	var out []string

	seen := make(map[string]struct{}, len(scopes))

	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		if _, dup := seen[s]; dup {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
