package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := New(Config{Client: client})
	require.NoError(t, err)
	return l, mr
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is required")
}

func TestTypes(t *testing.T) {
	assert.Equal(t, Type("UPDATE_PROFILE"), UpdateProfile)
	assert.Equal(t, Type("FLAG:pwn-101"), ChallengeType("pwn-101"))
	assert.Equal(t, Type("ROUTE:authLogin"), RouteType("authLogin"))

	l, err := New(Config{Client: redis.NewClient(&redis.Options{}), Prefix: " custom "})
	require.NoError(t, err)
	assert.Equal(t, "custom:FLAG:x:u1", l.Key(ChallengeType("x"), "u1"))
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	l, mr := setupTestRedis(t)
	ctx := context.Background()
	req := Request{Type: ChallengeType("baby-rev"), UserID: "u1", Limit: 3, Duration: 10 * time.Second}

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.OK, "attempt %d", i+1)
		assert.Zero(t, res.TimeLeft)
	}

	res, err := l.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 10*time.Second, res.TimeLeft)

	assert.True(t, mr.Exists("rl:FLAG:baby-rev:u1"))
	assert.Equal(t, 10*time.Second, mr.TTL("rl:FLAG:baby-rev:u1"))
}

func TestCheck_WindowResets(t *testing.T) {
	l, mr := setupTestRedis(t)
	ctx := context.Background()
	req := Request{Type: UpdateProfile, UserID: "u1", Limit: 1, Duration: time.Minute}

	res, err := l.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, res.OK)

	mr.FastForward(20 * time.Second)
	res, err = l.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 40*time.Second, res.TimeLeft)

	mr.FastForward(40 * time.Second)
	res, err = l.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestCheck_BucketsAreIndependent(t *testing.T) {
	l, _ := setupTestRedis(t)
	ctx := context.Background()
	base := Request{Type: ChallengeType("a"), UserID: "u1", Limit: 1, Duration: time.Minute}

	res, err := l.Check(ctx, base)
	require.NoError(t, err)
	require.True(t, res.OK)

	other := base
	other.UserID = "u2"
	res, err = l.Check(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.OK, "different user")

	other = base
	other.Type = ChallengeType("b")
	res, err = l.Check(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.OK, "different challenge")

	res, err = l.Check(ctx, base)
	require.NoError(t, err)
	assert.False(t, res.OK, "same bucket")
}

func TestCheck_RecoversBucketWithoutExpiry(t *testing.T) {
	l, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("rl:UPDATE_PROFILE:u1", "5"))

	res, err := l.Check(context.Background(), Request{Type: UpdateProfile, UserID: "u1", Limit: 1, Duration: 5 * time.Second})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 5*time.Second, res.TimeLeft)
	assert.Equal(t, 5*time.Second, mr.TTL("rl:UPDATE_PROFILE:u1"))
}

func TestCheck_RejectsInvalidRequests(t *testing.T) {
	l, mr := setupTestRedis(t)
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"missing type", Request{UserID: "u", Limit: 1, Duration: time.Second}, "type is required"},
		{"missing user", Request{Type: UpdateProfile, Limit: 1, Duration: time.Second}, "user id is required"},
		{"zero limit", Request{Type: UpdateProfile, UserID: "u", Duration: time.Second}, "limit must be greater than 0"},
		{"short duration", Request{Type: UpdateProfile, UserID: "u", Limit: 1, Duration: time.Microsecond}, "at least 1ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Check(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Empty(t, mr.Keys(), "invalid requests must not touch redis")
}

func TestCheck_RedisUnavailable(t *testing.T) {
	l, mr := setupTestRedis(t)
	mr.Close()

	_, err := l.Check(context.Background(), Request{Type: UpdateProfile, UserID: "u1", Limit: 1, Duration: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rl:UPDATE_PROFILE:u1")
}

func TestReset(t *testing.T) {
	l, mr := setupTestRedis(t)
	ctx := context.Background()
	req := Request{Type: RouteType("authLogin"), UserID: "u1", Limit: 1, Duration: time.Minute}

	_, err := l.Check(ctx, req)
	require.NoError(t, err)
	res, err := l.Check(ctx, req)
	require.NoError(t, err)
	require.False(t, res.OK)

	require.NoError(t, l.Reset(ctx, req.Type, req.UserID))
	assert.False(t, mr.Exists("rl:ROUTE:authLogin:u1"))

	res, err = l.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.OK)
}
