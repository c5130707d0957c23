// Package cache holds the Redis-backed standings cache and the lock the
// scheduler takes so replicas never run the same action at once.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

// Connect parses url, pings the server and returns the client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Standings caches rendered standings tables as JSON.
type Standings struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStandings(client *redis.Client, ttl time.Duration) *Standings {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Standings{client: client, ttl: ttl}
}

func standingsKey(season int, key string) string {
	return fmt.Sprintf("standings:%d:%s", season, key)
}

// Get decodes the cached value into dst. ok is false on a miss.
func (s *Standings) Get(ctx context.Context, season int, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, standingsKey(season, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshaling standings: %w", err)
	}
	return true, nil
}

func (s *Standings) Set(ctx context.Context, season int, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling standings: %w", err)
	}
	return s.client.Set(ctx, standingsKey(season, key), data, s.ttl).Err()
}

// Invalidate drops every cached table of season.
func (s *Standings) Invalidate(ctx context.Context, season int) error {
	iter := s.client.Scan(ctx, 0, standingsKey(season, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short-lived named locks via SET NX.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// TryLock takes name for ttl. ok is false when another holder has it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}
