// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/veriscore/internal/platform/constants"
	"github.com/taibuivan/veriscore/internal/platform/sec"
)

// RedisNonceStore implements [NonceStore] on Redis for multi-instance
// deployments. Expiry is delegated to Redis TTLs, so no sweeper is needed.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNonceStore constructs a Redis-backed nonce store.
func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{client: client, ttl: ttl}
}

/*
Issue generates a fresh nonce and stores it under the lower-cased address
key with a TTL, replacing any prior nonce for the same address.

Parameters:
  - context: context.Context
  - address: string

Returns:
  - string: Nonce value
  - error: Generation or storage failures
*/
func (store *RedisNonceStore) Issue(context context.Context, address string) (string, error) {
	nonce, err := sec.GenerateSecureToken(NonceLength)
	if err != nil {
		return "", err
	}

	key := redisNonceKey(address)
	if err := store.client.Set(context, key, nonce, store.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis_nonce_set_failed: %w", err)
	}

	return nonce, nil
}

// Match reads the stored nonce without consuming it. Connectivity errors
// fail closed.
func (store *RedisNonceStore) Match(context context.Context, address string, nonce string) bool {
	stored, err := store.client.Get(context, redisNonceKey(address)).Result()
	if err != nil {
		return false
	}
	return stored == nonce
}

// Consume atomically fetches-and-deletes via GETDEL, then compares. A
// mismatched candidate burns the stored nonce: the challenge must be
// re-issued, which is the safe direction for a single-use credential.
func (store *RedisNonceStore) Consume(context context.Context, address string, nonce string) bool {
	stored, err := store.client.GetDel(context, redisNonceKey(address)).Result()
	if err != nil {
		// Missing key or connectivity failure: fail closed either way.
		return false
	}
	return stored == nonce
}

// redisNonceKey builds the namespaced key for an address nonce.
func redisNonceKey(address string) string {
	return constants.RedisPrefixNonce + nonceKey(address)
}
