// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/pixveil/internal/platform/constants"
)

// # Redis Token Store

// RedisTokenStore implements [TokenStore] on a shared Redis instance so any
// API replica can verify tokens minted by another.
//
// Records are stored as JSON values under a prefixed key; eviction is
// delegated to Redis TTLs instead of application timers.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Put stores a record as JSON with the given TTL.
func (store *RedisTokenStore) Put(context context.Context, token string, record *TokenRecord, ttl time.Duration) error {
	key := constants.RedisPrefixAccessToken + token

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis_token_put_encode_failed: %w", err)
	}

	if err := store.client.Set(context, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_token_put_failed: %w", err)
	}

	return nil
}

// Get retrieves and decodes the record for an exact token string.
func (store *RedisTokenStore) Get(context context.Context, token string) (*TokenRecord, error) {
	key := constants.RedisPrefixAccessToken + token

	payload, err := store.client.Get(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis_token_get_failed: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redis_token_get_decode_failed: %w", err)
	}

	return &record, nil
}

// consumeScript spends one use on the Redis side. The read, increment, and
// write run inside a single script execution, so two replicas verifying the
// same token can never both claim the last use — a client-side
// get-then-set would leave a double-spend window spanning two round trips.
// KEEPTTL preserves the eviction deadline set at mint time.
var consumeScript = redis.NewScript(`
local payload = redis.call('GET', KEYS[1])
if not payload then
	return nil
end
local record = cjson.decode(payload)
if record.usedCount >= record.maxUses then
	redis.call('DEL', KEYS[1])
	return 'EXHAUSTED'
end
record.usedCount = record.usedCount + 1
if record.usedCount >= record.maxUses then
	redis.call('DEL', KEYS[1])
else
	redis.call('SET', KEYS[1], cjson.encode(record), 'KEEPTTL')
end
return cjson.encode(record)
`)

// Consume atomically spends one use. Spending the last use removes the key.
func (store *RedisTokenStore) Consume(context context.Context, token string) (*TokenRecord, error) {
	key := constants.RedisPrefixAccessToken + token

	result, err := consumeScript.Run(context, store.client, []string{key}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis_token_consume_failed: %w", err)
	}
	if result == "EXHAUSTED" {
		return nil, ErrTokenExhausted
	}

	var record TokenRecord
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, fmt.Errorf("redis_token_consume_decode_failed: %w", err)
	}

	return &record, nil
}

// Delete removes the token record.
func (store *RedisTokenStore) Delete(context context.Context, token string) error {
	key := constants.RedisPrefixAccessToken + token

	if err := store.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_token_delete_failed: %w", err)
	}

	return nil
}

// Count scans the token keyspace and reports the number of live records.
//
// SCAN is O(keys) but token cardinality is bounded by (short TTL × mint
// rate), so this stays cheap at gallery-traffic scale.
func (store *RedisTokenStore) Count(context context.Context) (int, error) {
	var cursor uint64
	total := 0

	for {
		keys, next, err := store.client.Scan(context, cursor, constants.RedisPrefixAccessToken+"*", 200).Result()
		if err != nil {
			return 0, fmt.Errorf("redis_token_count_failed: %w", err)
		}

		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}
