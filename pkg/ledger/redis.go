package ledger

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisLedger stores keys in a Redis set so several processes share one ledger
type RedisLedger struct {
	client *redis.Client
	setKey string
}

// RedisOptions selects the server and set
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	SetKey   string
}

// OpenRedis connects to Redis and verifies the connection
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, ioErr("connect", err)
	}
	return NewRedis(client, opts.SetKey), nil
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, setKey string) *RedisLedger {
	if setKey == "" {
		setKey = "igfetch:ledger"
	}
	return &RedisLedger{client: client, setKey: setKey}
}

func (l *RedisLedger) Has(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.setKey, key).Result()
	if err != nil {
		return false, ioErr("lookup", err)
	}
	return ok, nil
}

func (l *RedisLedger) Record(ctx context.Context, key string) error {
	if err := l.client.SAdd(ctx, l.setKey, key).Err(); err != nil {
		return ioErr("record", err)
	}
	return nil
}

// Len returns the number of recorded keys
func (l *RedisLedger) Len(ctx context.Context) (int64, error) {
	n, err := l.client.SCard(ctx, l.setKey).Result()
	if err != nil {
		return 0, ioErr("count", err)
	}
	return n, nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
