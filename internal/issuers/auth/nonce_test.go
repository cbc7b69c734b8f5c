// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

/*
TestMemoryNonceStore_SingleUse verifies that a nonce authenticates exactly
one consumption.
*/
func TestMemoryNonceStore_SingleUse(t *testing.T) {
	store := NewMemoryNonceStore(0, 0)
	ctx := context.Background()

	nonce, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	assert.True(t, store.Match(ctx, testAddress, nonce))
	assert.True(t, store.Match(ctx, testAddress, nonce), "match must not consume")

	assert.True(t, store.Consume(ctx, testAddress, nonce))
	assert.False(t, store.Consume(ctx, testAddress, nonce), "second consume must fail")
	assert.False(t, store.Match(ctx, testAddress, nonce))
}

/*
TestMemoryNonceStore_CaseInsensitiveAddress verifies mixed-case submissions
of the same address share one nonce slot.
*/
func TestMemoryNonceStore_CaseInsensitiveAddress(t *testing.T) {
	store := NewMemoryNonceStore(0, 0)
	ctx := context.Background()

	nonce, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)

	lower := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	assert.True(t, store.Match(ctx, lower, nonce))
	assert.True(t, store.Consume(ctx, lower, nonce))
}

/*
TestMemoryNonceStore_Overwrite verifies reissuing invalidates the previous
nonce for the address.
*/
func TestMemoryNonceStore_Overwrite(t *testing.T) {
	store := NewMemoryNonceStore(0, 0)
	ctx := context.Background()

	first, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)
	second, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.False(t, store.Match(ctx, testAddress, first))
	assert.False(t, store.Consume(ctx, testAddress, first))
	assert.True(t, store.Consume(ctx, testAddress, second))
}

/*
TestMemoryNonceStore_Expiry verifies an expired nonce neither matches nor
consumes, and that the sweeper evicts it.
*/
func TestMemoryNonceStore_Expiry(t *testing.T) {
	store := NewMemoryNonceStore(5*time.Minute, 0)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	nonce, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)

	current = current.Add(5*time.Minute + time.Second)
	assert.False(t, store.Match(ctx, testAddress, nonce))
	assert.False(t, store.Consume(ctx, testAddress, nonce))

	store.evictExpired()
	store.mutex.Lock()
	assert.Empty(t, store.entries)
	store.mutex.Unlock()
}

/*
TestMemoryNonceStore_ConcurrentConsume verifies check-and-delete atomicity:
out of many racing consumers, exactly one wins.
*/
func TestMemoryNonceStore_ConcurrentConsume(t *testing.T) {
	store := NewMemoryNonceStore(0, 0)
	ctx := context.Background()

	nonce, err := store.Issue(ctx, testAddress)
	require.NoError(t, err)

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Consume(ctx, testAddress, nonce) {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

/*
TestChallenge_MessageRoundTrip verifies a rendered challenge parses back to
the same values.
*/
func TestChallenge_MessageRoundTrip(t *testing.T) {
	challenge := Challenge{
		Nonce:     "abc123",
		Address:   testAddress,
		Timestamp: 1767225600,
		Domain:    "app.veriscore.app",
	}

	message, err := challenge.Message()
	require.NoError(t, err)

	parsed, err := ParseChallenge(message)
	require.NoError(t, err)
	assert.Equal(t, challenge, parsed)
}
