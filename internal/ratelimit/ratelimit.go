// Package ratelimit implements the fixed-window limiter used for abuse
// prevention on flag submissions, profile updates and individual routes.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Type names a rate limit bucket category.
type Type string

// UpdateProfile limits profile changes.
const UpdateProfile Type = "UPDATE_PROFILE"

const (
	challengePrefix = "FLAG"
	routePrefix     = "ROUTE"
)

// ChallengeType is the bucket category for flag submissions to one challenge.
func ChallengeType(name string) Type {
	return Type(challengePrefix + ":" + name)
}

// RouteType is the bucket category for a compiled route identifier.
func RouteType(ident string) Type {
	return Type(routePrefix + ":" + ident)
}

// DefaultPrefix starts every bucket key.
const DefaultPrefix = "rl"

// ErrInvalidRequest is returned for requests rejected before reaching Redis.
var ErrInvalidRequest = errors.New("ratelimit: invalid request")

// The first hit in a window sets the expiry. Once the count exceeds the limit
// the script returns the remaining window in milliseconds, otherwise nil. A
// bucket that lost its expiry gets a fresh window instead of blocking forever.
var checkScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
    ttl = tonumber(ARGV[2])
  end
  return ttl
end
return nil
`)

// Config holds configuration for a Limiter.
type Config struct {
	// Client may be a *redis.Client, *redis.ClusterClient or ring.
	Client redis.UniversalClient
	// Prefix replaces DefaultPrefix when set.
	Prefix string
	Logger zerolog.Logger
}

// Limiter performs atomic check-and-increment against Redis.
type Limiter struct {
	client redis.UniversalClient
	prefix string
	log    zerolog.Logger
}

// Request identifies one event to count.
type Request struct {
	Type     Type
	UserID   string
	Limit    int
	Duration time.Duration
}

// Result reports whether the event is allowed. TimeLeft is set only when it
// is not, and is the time until the bucket resets.
type Result struct {
	OK       bool
	TimeLeft time.Duration
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.Client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{client: cfg.Client, prefix: prefix, log: cfg.Logger}, nil
}

// Key returns the Redis key of the bucket a request counts against.
func (l *Limiter) Key(t Type, userID string) string {
	return l.prefix + ":" + string(t) + ":" + userID
}

func (r Request) validate() error {
	switch {
	case r.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidRequest)
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case r.Limit <= 0:
		return fmt.Errorf("%w: limit must be greater than 0, got %d", ErrInvalidRequest, r.Limit)
	case r.Duration < time.Millisecond:
		return fmt.Errorf("%w: duration must be at least 1ms, got %s", ErrInvalidRequest, r.Duration)
	}
	return nil
}

// Check counts one event and reports whether it fits in the current window.
func (l *Limiter) Check(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	key := l.Key(req.Type, req.UserID)
	ms, err := checkScript.Run(ctx, l.client, []string{key},
		strconv.Itoa(req.Limit),
		strconv.FormatInt(req.Duration.Milliseconds(), 10),
	).Int64()
	if errors.Is(err, redis.Nil) {
		return Result{OK: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: check %s: %w", key, err)
	}
	left := time.Duration(ms) * time.Millisecond
	l.log.Debug().Str("key", key).Dur("time_left", left).Msg("rate limited")
	return Result{OK: false, TimeLeft: left}, nil
}

// Reset clears the bucket for a type and user.
func (l *Limiter) Reset(ctx context.Context, t Type, userID string) error {
	if err := l.client.Del(ctx, l.Key(t, userID)).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
