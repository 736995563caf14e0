package tokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
)

const redisTestTTL = 7 * 24 * time.Hour

func testRedisStore(t *testing.T) (*RedisRefreshStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewRedisRefreshStore(client, redisTestTTL)
	require.NoError(t, err)

	return s, mr
}

func TestRedisRefreshStore_IssueValidate(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)
	assert.NotContains(t, token, "user-1")
	assert.True(t, mr.Exists(redisKey(token)))
	assert.Equal(t, redisTestTTL, mr.TTL(redisKey(token)))

	subject, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)

	// Validation does not consume.
	subject, err = s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestRedisRefreshStore_BlankSubject(t *testing.T) {
	s, _ := testRedisStore(t)

	_, err := s.Issue(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRedisRefreshStore_UnknownToken(t *testing.T) {
	s, _ := testRedisStore(t)
	ctx := context.Background()

	_, err := s.Validate(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = s.Validate(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRedisRefreshStore_SingleUse(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	removed, err := s.Invalidate(ctx, token)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, mr.Exists(redisKey(token)))

	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	removed, err = s.Invalidate(ctx, token)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.Invalidate(ctx, "")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisRefreshStore_ExpiredValueIsPurged(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	// The recorded expiry is checked even while the key itself is live.
	s.now = func() time.Time { return time.Now().Add(redisTestTTL + time.Minute) }

	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	assert.False(t, mr.Exists(redisKey(token)))

	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRedisRefreshStore_KeyTTLExpires(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(redisTestTTL + time.Second)

	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRedisRefreshStore_UndecodableValueIsDropped(t *testing.T) {
	s, mr := testRedisStore(t)

	require.NoError(t, mr.Set(redisKey("garbled"), "{not json"))

	_, err := s.Validate(context.Background(), "garbled")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	assert.False(t, mr.Exists(redisKey("garbled")))
}

func TestRedisRefreshStore_ConcurrentInvalidateOneWinner(t *testing.T) {
	s, _ := testRedisStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	var winners atomic.Int32

	for _i := 0; _i < n; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed, err := s.Invalidate(ctx, token)
			assert.NoError(t, err)
			if removed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestRedisRefreshStore_BackendDown(t *testing.T) {
	s, mr := testRedisStore(t)
	mr.Close()

	_, err := s.Issue(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Validate(context.Background(), "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	s, err := NewRedisRefreshStore(client, redisTestTTL)
	require.NoError(t, err)

	token, err := s.Issue(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKey(token)))
}
