package userlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultLeaseTTL      = 30 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// releaseScript deletes the lease only when it is still held by the caller,
// so an expired lease taken over by another instance is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker coordinates the per-user lease across service instances using
// a SET NX PX lease. Intended for deployments running more than one API
// process against the same persisted store.
type RedisLocker struct {
	client        redis.UniversalClient
	keyPrefix     string
	leaseTTL      time.Duration
	retryInterval time.Duration
}

// RedisLockerConfig tunes the distributed lease behaviour.
type RedisLockerConfig struct {
	KeyPrefix     string
	LeaseTTL      time.Duration
	RetryInterval time.Duration
}

// NewRedisLocker wraps an existing Redis client as a Locker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig) *RedisLocker {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "samhost:userlock:"
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	return &RedisLocker{client: client, keyPrefix: prefix, leaseTTL: ttl, retryInterval: retry}
}

// Acquire polls SET NX until the lease is granted or the context is done.
func (l *RedisLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	key := l.keyPrefix + userID

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
