// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// DefaultAccessTokenTTL is the duration a JWT access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the duration a refresh token remains valid.
	// Long-lived (7 days) to provide a good wallet-login experience. The
	// token service clamps configured lifetimes at a 30-day hard cap.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultTokenSweepInterval is the cadence of the expired-token purge.
	DefaultTokenSweepInterval = 1 * time.Hour

	// NonceLength is the byte length of the random login nonce.
	NonceLength = 32

	// DefaultNonceTTL is the duration a login nonce remains consumable.
	DefaultNonceTTL = 5 * time.Minute

	// DefaultNonceSweepInterval is the cadence of the expired-nonce sweep.
	DefaultNonceSweepInterval = 1 * time.Minute

	// DefaultSignatureMaxAge bounds the age of a signed challenge message,
	// independent of the nonce TTL (clock-skew and staleness guard).
	DefaultSignatureMaxAge = 15 * time.Minute
)
