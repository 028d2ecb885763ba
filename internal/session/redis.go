package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"luxe-booking/internal/booking"
	"luxe-booking/internal/clock"
	"luxe-booking/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wizard:"

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps sessions as JSON values that expire after ttl of inactivity.
type RedisStore struct {
	client redis.UniversalClient
	clock  clock.Clock
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, c clock.Clock, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, clock: c, ttl: ttl}
}

// NewRedisClient connects and pings. It returns nil when the server is unreachable
// so callers can fall back to the in-memory store.
func NewRedisClient(cfg config.Redis) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable at %s: %v", cfg.Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}

func sessionKey(id string) string { return keyPrefix + id }
func lockKey(id string) string    { return keyPrefix + "lock:" + id }

func (r *RedisStore) Create(ctx context.Context, ownerUID string) (Session, error) {
	s := Session{
		ID:        uuid.NewString(),
		OwnerUID:  ownerUID,
		State:     booking.NewState(),
		UpdatedAt: r.clock.Now().UTC(),
	}
	if err := r.write(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// Save overwrites an existing session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s Session) error {
	n, err := r.client.Exists(ctx, sessionKey(s.ID)).Result()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.UpdatedAt = r.clock.Now().UTC()
	return r.write(ctx, s)
}

func (r *RedisStore) write(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKey(id), token, LockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{lockKey(id)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("Error releasing lock for session %s: %v", id, err)
		}
	}, nil
}
