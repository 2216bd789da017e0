package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "webpress:ratelimit"

// Policy allows Capacity requests per Window for each subject, refilled
// continuously.
type Policy struct {
	Capacity int
	Window   time.Duration
}

func (p Policy) validate() error {
	if p.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if p.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

// Decision is the outcome of one Allow call. ResetAfter is the time until
// the bucket is full again.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// TokenBucket keeps one bucket per subject in Redis. Time is read from the
// Redis server so API replicas with skewed clocks share the same buckets.
type TokenBucket struct {
	client    redis.UniversalClient
	policy    Policy
	keyPrefix string
}

func NewTokenBucket(client redis.UniversalClient, policy Policy, keyPrefix string) (*TokenBucket, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	keyPrefix = strings.TrimRight(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &TokenBucket{
		client:    client,
		policy:    policy,
		keyPrefix: keyPrefix,
	}, nil
}

func (b *TokenBucket) Policy() Policy {
	return b.policy
}

// takeScript returns {allowed, remaining, retry_after_ms, reset_after_ms}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local t = redis.call("TIME")
local now_ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local rate = capacity / window_ms

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now_ms
tokens = math.min(capacity, tokens + math.max(0, now_ms - ts) * rate)

local allowed = 0
local retry_after = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry_after = math.ceil((1 - tokens) / rate)
end

redis.call("HSET", key, "tokens", tostring(tokens), "ts", now_ms)
redis.call("PEXPIRE", key, window_ms * 2)

local reset_after = math.ceil((capacity - tokens) / rate)
return {allowed, math.floor(tokens), retry_after, reset_after}
`)

// Allow takes one token from the subject's bucket.
func (b *TokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	values, err := takeScript.Run(
		ctx,
		b.client,
		[]string{b.bucketKey(subject)},
		b.policy.Capacity,
		max(int64(1), b.policy.Window.Milliseconds()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take token: %w", err)
	}
	if len(values) != 4 {
		return Decision{}, fmt.Errorf("take token: unexpected reply length %d", len(values))
	}

	return Decision{
		Allowed:    values[0] == 1,
		Limit:      int64(b.policy.Capacity),
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
		ResetAfter: time.Duration(values[3]) * time.Millisecond,
	}, nil
}

func (b *TokenBucket) bucketKey(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return b.keyPrefix + ":" + subject
}
