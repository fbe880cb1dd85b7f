package repository

import (
	"context"
	"fmt"
	"time"

	"busline/internal/config"

	"github.com/redis/go-redis/v9"
)

// Захват места: свободно или уже наше -> ставим/продлеваем TTL
var tryLockScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false or current == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  redis.call('SADD', KEYS[2], ARGV[3])
  local pttl = redis.call('PTTL', KEYS[2])
  if pttl < tonumber(ARGV[2]) then
    redis.call('PEXPIRE', KEYS[2], ARGV[2])
  end
  return 1
end
return 0
`)

// Снятие только своим держателем
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// Листинг и чистка индекса одним скриптом: удаляем только то, чего нет прямо сейчас
var listScript = redis.NewScript(`
local seats = redis.call('SMEMBERS', KEYS[1])
local out = {}
for _, seat in ipairs(seats) do
  local holder = redis.call('GET', ARGV[1] .. seat)
  if holder then
    out[#out + 1] = seat
    out[#out + 1] = holder
  else
    redis.call('SREM', KEYS[1], seat)
  end
end
return out
`)

// RedisSeatLockStore shares seat holds between instances. Expiry is enforced by
// Redis key TTLs; a per-trip set indexes the seats for listing.
type RedisSeatLockStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSeatLockStore(client *redis.Client) *RedisSeatLockStore {
	return &RedisSeatLockStore{client: client}
}

// Hash tags keep a trip's locks and index in one cluster slot.
func seatKey(tripID int64, seatCode string) string {
	return seatKeyPrefix(tripID) + seatCode
}

func seatKeyPrefix(tripID int64) string {
	return fmt.Sprintf("seat_lock:{%d}:", tripID)
}

func indexKey(tripID int64) string {
	return fmt.Sprintf("seat_locks:{%d}", tripID)
}

func (r *RedisSeatLockStore) TryLock(ctx context.Context, tripID int64, seatCode, holderID string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	keys := []string{seatKey(tripID, seatCode), indexKey(tripID)}
	res, err := tryLockScript.Run(ctx, r.client, keys, holderID, ms, seatCode).Int()
	if err != nil {
		return false, fmt.Errorf("failed to lock seat in redis: %w", err)
	}
	return res == 1, nil
}

func (r *RedisSeatLockStore) Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	keys := []string{seatKey(tripID, seatCode), indexKey(tripID)}
	if err := unlockScript.Run(ctx, r.client, keys, holderID, seatCode).Err(); err != nil {
		return fmt.Errorf("failed to unlock seat in redis: %w", err)
	}
	return nil
}

// List returns live holds and drops index entries whose lock key has expired.
// Both happen inside one script, so a seat re-locked concurrently stays indexed.
func (r *RedisSeatLockStore) List(ctx context.Context, tripID int64) (map[string]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	pairs, err := listScript.Run(ctx, r.client, []string{indexKey(tripID)}, seatKeyPrefix(tripID)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list seat locks: %w", err)
	}
	result := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		result[pairs[i]] = pairs[i+1]
	}
	return result, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
