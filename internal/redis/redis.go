package redis

import (
	"context"
	"runtime"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient builds a pooled client sized to the host.
func NewClient(opt Options) *goredis.Client {
	poolSize := runtime.GOMAXPROCS(0) * 16
	if poolSize < 32 {
		poolSize = 32
	}
	if poolSize > 128 {
		poolSize = 128
	}

	return goredis.NewClient(&goredis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,

		PoolSize:     poolSize,
		MinIdleConns: poolSize / 4,

		PoolTimeout: 1 * time.Second,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      1,
		MinRetryBackoff: 25 * time.Millisecond,
		MaxRetryBackoff: 250 * time.Millisecond,
	})
}

// RedisStore is the room membership store: one set of user IDs per room.
// Every operation is a single atomic Redis command.
type RedisStore struct {
	rdb *goredis.Client

	opTimeout time.Duration
	inflight  chan struct{}
}

func NewRedisStore(rdb *goredis.Client, opTimeout time.Duration) *RedisStore {
	return &RedisStore{
		rdb:       rdb,
		opTimeout: opTimeout,
		inflight:  make(chan struct{}, rdb.Options().PoolSize),
	}
}

// acquire bounds in-flight commands to the pool size and applies the default
// operation timeout when the caller did not set a deadline.
func (s *RedisStore) acquire(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cancel := func() {}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.opTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
	}

	select {
	case s.inflight <- struct{}{}:
		return ctx, func() { <-s.inflight; cancel() }, nil
	case <-ctx.Done():
		cancel()
		return nil, nil, ctx.Err()
	}
}
