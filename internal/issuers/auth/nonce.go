// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/sec"
)

// # Login Challenge

// Challenge is the single-use payload a wallet must sign to log in.
type Challenge struct {
	Nonce     string `json:"nonce"`
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Domain    string `json:"domain"`
}

// Message renders the canonical JSON string the wallet signs. The client
// must sign and echo this string back verbatim.
func (challenge Challenge) Message() (string, error) {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseChallenge decodes a signed message string back into a [Challenge].
func ParseChallenge(message string) (Challenge, error) {
	var challenge Challenge
	err := json.Unmarshal([]byte(message), &challenge)
	return challenge, err
}

// # Nonce Store Contract

// NonceStore tracks the single-use login nonces keyed by wallet address.
//
// Issuing a second nonce for the same address overwrites the first: only
// the most recently issued challenge is ever valid for an address.
type NonceStore interface {

	/*
		Issue generates and stores a fresh nonce for the address.

		Parameters:
		  - context: context.Context
		  - address: string (stored lower-cased)

		Returns:
		  - string: Nonce value
		  - error: Generation or storage failures
	*/
	Issue(context context.Context, address string) (string, error)

	/*
		Match reports whether the stored nonce for the address equals the
		candidate, without consuming it.

		Parameters:
		  - context: context.Context
		  - address: string
		  - nonce: string

		Returns:
		  - bool: true when present, unexpired and equal
	*/
	Match(context context.Context, address string, nonce string) bool

	/*
		Consume atomically deletes the nonce if it matches (check-and-delete
		as one logical step).

		Parameters:
		  - context: context.Context
		  - address: string
		  - nonce: string

		Returns:
		  - bool: true exactly once per issued nonce
	*/
	Consume(context context.Context, address string, nonce string) bool
}

// # In-Memory Backend

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

// MemoryNonceStore keeps nonces in a mutex-guarded map with a background
// sweep. Suitable for single-instance deployments; multi-instance setups
// should use [RedisNonceStore].
type MemoryNonceStore struct {
	mutex   sync.Mutex
	entries map[string]nonceEntry
	ttl     time.Duration
	sweep   time.Duration
	now     func() time.Time
}

// NewMemoryNonceStore constructs an in-memory nonce store.
func NewMemoryNonceStore(ttl time.Duration, sweepInterval time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultNonceSweepInterval
	}
	return &MemoryNonceStore{
		entries: make(map[string]nonceEntry),
		ttl:     ttl,
		sweep:   sweepInterval,
		now:     time.Now,
	}
}

// StartSweeper launches the background goroutine that evicts expired
// nonces. It stops when the context is cancelled.
func (store *MemoryNonceStore) StartSweeper(context context.Context) {
	go func() {
		ticker := time.NewTicker(store.sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				store.evictExpired()
			case <-context.Done():
				return
			}
		}
	}()
}

// Issue stores a fresh random nonce for the address, replacing any
// previously issued one.
func (store *MemoryNonceStore) Issue(_ context.Context, address string) (string, error) {
	nonce, err := sec.GenerateSecureToken(NonceLength)
	if err != nil {
		return "", err
	}

	store.mutex.Lock()
	store.entries[nonceKey(address)] = nonceEntry{
		nonce:     nonce,
		expiresAt: store.now().Add(store.ttl),
	}
	store.mutex.Unlock()

	return nonce, nil
}

// Match checks the stored nonce without consuming it.
func (store *MemoryNonceStore) Match(_ context.Context, address string, nonce string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry, found := store.entries[nonceKey(address)]
	if !found || store.now().After(entry.expiresAt) {
		return false
	}
	return entry.nonce == nonce
}

// Consume deletes the nonce if it matches; check-and-delete runs under one
// lock acquisition so two concurrent consumers cannot both succeed.
func (store *MemoryNonceStore) Consume(_ context.Context, address string, nonce string) bool {
	key := nonceKey(address)

	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry, found := store.entries[key]
	if !found || store.now().After(entry.expiresAt) || entry.nonce != nonce {
		return false
	}
	delete(store.entries, key)
	return true
}

// evictExpired drops every entry past its expiry.
func (store *MemoryNonceStore) evictExpired() {
	now := store.now()

	store.mutex.Lock()
	for key, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, key)
		}
	}
	store.mutex.Unlock()
}

// nonceKey lower-cases the wallet address so mixed-case submissions of the
// same address share one nonce slot.
func nonceKey(address string) string {
	return strings.ToLower(address)
}
