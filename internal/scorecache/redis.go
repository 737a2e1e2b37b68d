package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/job-sift/internal/ai"
)

const (
	DefaultTTL       = 30 * 24 * time.Hour
	defaultKeyPrefix = "jobsift:score:"

	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// Redis is a Cache shared between runs and machines.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedis(client, cfg.TTL, cfg.Prefix), nil
}

// NewRedis wraps an existing client. A non-positive ttl means DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

// redisKey hashes the composite key so arbitrary identity keys stay short.
func (r *Redis) redisKey(key Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *Redis) Get(ctx context.Context, key Key) (*ai.Assessment, bool, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var a ai.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, false, fmt.Errorf("decode cached assessment: %w", err)
	}
	return &a, true, nil
}

func (r *Redis) Put(ctx context.Context, key Key, a *ai.Assessment) error {
	if a == nil {
		return nil
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
