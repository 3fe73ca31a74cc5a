package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrTitleLocked = errors.New("an upload with this title is already in progress")

// TitleLock serialises uploads of the same title across replicas for the
// duration of the uniqueness check and the writes that follow it.
type TitleLock interface {
	Acquire(ctx context.Context, title string) (release func(), err error)
}

type NoopTitleLock struct{}

func (NoopTitleLock) Acquire(ctx context.Context, title string) (func(), error) {
	return func() {}, nil
}

func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.Protocol = 2

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisTitleLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTitleLock(client *redis.Client, ttl time.Duration) *RedisTitleLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTitleLock{client: client, ttl: ttl}
}

func titleLockKey(title string) string {
	return "video:title:" + title
}

func (l *RedisTitleLock) Acquire(ctx context.Context, title string) (func(), error) {
	key := titleLockKey(title)
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire title lock: %w", err)
	}
	if !ok {
		return nil, ErrTitleLocked
	}

	release := func() {
		// the request context may already be cancelled
		releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, owner)
	}
	return release, nil
}
