package database

import (
	"context"
	"log"
	"time"

	"danceportal_go/services/billing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a billing.Locker shared by every instance using the same Redis.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// NewLocker returns a Redis-backed locker when Redis is connected and a
// process-local one otherwise.
func NewLocker() billing.Locker {
	if client := GetRedisClient(); client != nil {
		return NewRedisLocker(client)
	}
	return billing.NewLocalLocker()
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, billing.ErrLockHeld
	}
	return func() {
		// The caller's context may already be done when the work finishes.
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("Failed to release lock %s: %v", key, err)
		}
	}, nil
}
