package lock

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL       = 30 * time.Second
	DefaultRetryInterval = 200 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is left alone.
// extendScript pushes the expiry forward only while the key holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *log.Logger
}

// NewRedis connects to cfg.Addr and verifies the server answers.
func NewRedis(cfg RedisConfig, logger *log.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		MaxRetries:  -1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	if logger == nil {
		logger = log.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agora:lock:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, retry: DefaultRetryInterval, logger: logger}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// The key expires r.ttl after the last renewal, so a crashed holder
	// frees it. While we hold it, it is renewed every third of the TTL.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, r.ttl/3, func() (bool, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
			return n == 1, err
		}, r.logf(name))
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
				r.logger.Printf("Error releasing lock %s: %v", name, err)
			}
		})
	}, nil
}

func (r *Redis) logf(name string) func(format string, args ...any) {
	return func(format string, args ...any) {
		r.logger.Printf("lock %s: "+format, append([]any{name}, args...)...)
	}
}

// keepAlive calls extend every interval until stop is closed or extend
// reports the lock is no longer ours.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), logf func(string, ...any)) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extend()
			if err != nil {
				logf("renewal failed: %v", err)
				continue
			}
			if !held {
				logf("lost before release")
				return
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
