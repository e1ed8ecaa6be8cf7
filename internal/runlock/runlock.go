// internal/runlock/runlock.go
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLocked: operasi lain sedang berjalan terhadap database tujuan yang sama.
var ErrLocked = errors.New("another run holds the lock for this destination")

// Locker menjaga agar hanya satu operasi mutasi (migrate, cleanup, report, credentials)
// berjalan terhadap satu database tujuan.
type Locker interface {
	// Acquire mengembalikan fungsi release. release aman dipanggil lebih dari sekali.
	Acquire(ctx context.Context, name string) (release func(), err error)
	Close() error
}

// Config untuk RedisLocker.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Namespace membedakan database tujuan, misalnya "mysql/127.0.0.1:3306/app".
	Namespace string
}

// New: tanpa alamat Redis, lock adalah no-op.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Locker, error) {
	if cfg.Addr == "" {
		logger.Debug("REDIS_ADDR not set, run lock disabled")
		return Noop{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	logger.Info("Run lock enabled", zap.String("redis_addr", cfg.Addr), zap.Duration("ttl", ttl))
	return &RedisLocker{
		client:    client,
		locker:    redislock.New(client),
		ttl:       ttl,
		namespace: cfg.Namespace,
		logger:    logger.Named("runlock"),
	}, nil
}

// Noop tidak mengunci apa pun.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) { return func() {}, nil }
func (Noop) Close() error                                     { return nil }

// RedisLocker memakai redislock. Lock diperpanjang di background selama operasi berjalan.
type RedisLocker struct {
	client    *redis.Client
	locker    *redislock.Client
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
}

func (l *RedisLocker) key(name string) string {
	return fmt.Sprintf("shipmigrate:lock:%s:%s", l.namespace, name)
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := l.key(name)
	lock, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
					l.logger.Warn("Failed to refresh run lock", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("Failed to release run lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
	l.logger.Debug("Run lock acquired", zap.String("key", key))
	return release, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
