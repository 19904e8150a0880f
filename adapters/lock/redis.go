package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// ErrLockTimeout is returned when a Redis lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock: timed out waiting for key lock")

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration
	// Wait is the longest Lock will block before giving up.
	Wait time.Duration
	// Retry is the polling interval while the lock is held elsewhere.
	Retry time.Duration
}

// Redis serializes work per key across processes with SET NX PX locks.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	retry     time.Duration
	token     func() string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, token func() string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, cfg, token), nil
}

// NewRedisWithClient creates a locker with an existing client.
// token must return a value unique to each Lock call.
func NewRedisWithClient(client *redis.Client, cfg RedisConfig, token func() string) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 10 * time.Millisecond
	}
	return &Redis{
		client:    client,
		keyPrefix: "biblioteca:admission:lock:",
		ttl:       cfg.TTL,
		wait:      cfg.Wait,
		retry:     cfg.Retry,
		token:     token,
	}
}

// Lock acquires the key's lock, polling until Wait elapses or ctx ends.
func (l *Redis) Lock(ctx context.Context, keyID string) (func(), error) {
	name := l.keyPrefix + keyID
	token := l.token()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// Release with a fresh context: the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, l.client, []string{name}, token).Err()
	}, nil
}

// Close closes the Redis client.
func (l *Redis) Close() error {
	return l.client.Close()
}

// Ensure interface compliance.
var _ ports.KeyLocker = (*Redis)(nil)
