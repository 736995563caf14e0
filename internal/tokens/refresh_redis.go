package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisRefreshPrefix = "refresh:"

// RedisRefreshStore shares refresh tokens between instances. Redis
// expires keys at the token's expiry; the expiry recorded in the value
// is still checked on read so clock drift between instances cannot
// extend a token.
type RedisRefreshStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisRefreshStore wraps an existing client.
func NewRedisRefreshStore(client redis.UniversalClient, ttl time.Duration) (*RedisRefreshStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", apperrors.ErrConfiguration)
	}

	if err := validateRefreshTTL(ttl); err != nil {
		return nil, err
	}

	return &RedisRefreshStore{client: client, ttl: ttl, now: time.Now}, nil
}

// DialRedis parses url, connects and pings with a bounded timeout.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redis url: %v", apperrors.ErrConfiguration, err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

func redisKey(token string) string {
	return redisRefreshPrefix + token
}

// Issue stores a fresh token for subject.
func (s *RedisRefreshStore) Issue(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: refresh token subject is required", apperrors.ErrInvalidInput)
	}

	token, err := NewRefreshToken()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()

	payload, err := json.Marshal(models.RefreshToken{
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("encoding refresh token: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}

	return token, nil
}

// Validate returns the subject for a live token.
func (s *RedisRefreshStore) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperrors.ErrInvalidToken
	}

	raw, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.ErrInvalidToken
	}

	if err != nil {
		return "", fmt.Errorf("loading refresh token: %w", err)
	}

	var rt models.RefreshToken
	if err := json.Unmarshal(raw, &rt); err != nil {
		// Unreadable entries can never validate; drop them.
		s.client.Del(ctx, redisKey(token))
		return "", apperrors.ErrInvalidToken
	}

	if rt.Expired(s.now()) {
		s.client.Del(ctx, redisKey(token))
		return "", apperrors.ErrInvalidToken
	}

	return rt.Subject, nil
}

// Invalidate removes token if present. DEL is atomic, so exactly one
// concurrent caller observes removed == true.
func (s *RedisRefreshStore) Invalidate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	n, err := s.client.Del(ctx, redisKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("deleting refresh token: %w", err)
	}

	return n > 0, nil
}
