// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/ctxutil"
	"github.com/taibuivan/veriscore/internal/platform/sec"
)

// # Token Lifecycle

// SessionTokens is a freshly issued access+refresh pair.
type SessionTokens struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresIn  time.Duration
	RefreshTokenExpiresAt time.Time
	RefreshTokenID        string
}

// TokenLifecycle manages the full life of session tokens: signing,
// persistence of refresh records, verification with the persisted state
// machine, rotation and revocation.
//
// # Ordering Invariant
//
// Rotation is issue-then-rotate: the successor token must be persisted
// before the predecessor is marked rotated. A crash between the two leaves
// the old token briefly double-valid, never the issuer locked out.
type TokenLifecycle struct {
	tokens     *sec.TokenService
	repository TokenRepository
	now        func() time.Time
}

// NewTokenLifecycle constructs a [TokenLifecycle].
func NewTokenLifecycle(tokens *sec.TokenService, repository TokenRepository) *TokenLifecycle {
	return &TokenLifecycle{
		tokens:     tokens,
		repository: repository,
		now:        time.Now,
	}
}

// StartSweeper launches the background purge of expired token records,
// mirroring the nonce store sweeper. Rotated and revoked records stay until
// their natural expiry so the audit trail of a session survives its end.
// It stops when the context is cancelled.
func (lifecycle *TokenLifecycle) StartSweeper(context context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deleted, err := lifecycle.repository.DeleteExpired(context)
				if err != nil {
					ctxutil.GetLogger(context).ErrorContext(context, "token_sweep_failed",
						slog.Any("cause", err),
					)
					continue
				}
				if deleted > 0 {
					ctxutil.GetLogger(context).InfoContext(context, "expired_tokens_purged",
						slog.Int("deleted", deleted),
					)
				}
			case <-context.Done():
				return
			}
		}
	}()
}

/*
IssuePair signs a new access+refresh pair and persists the refresh record.

Parameters:
  - context: context.Context
  - issuer: *Issuer (identity being authenticated)
  - accountID: string (wallet or social account used; may be empty)
  - securityContext: sec.SecurityContext

Returns:
  - *SessionTokens: Transport-ready token pair
  - error: Signing or persistence failures
*/
func (lifecycle *TokenLifecycle) IssuePair(context context.Context, issuer *Issuer, accountID string, securityContext sec.SecurityContext) (*SessionTokens, error) {

	// Sign the short-lived access token (never persisted)
	accessToken, _, err := lifecycle.tokens.Sign(issuer.ID, accountID, string(issuer.Role), sec.TokenTypeAccess, securityContext)
	if err != nil {
		return nil, fmt.Errorf("token_lifecycle_sign_access_failed: %w", err)
	}

	// Sign the long-lived refresh token
	refreshToken, refreshClaims, err := lifecycle.tokens.Sign(issuer.ID, accountID, string(issuer.Role), sec.TokenTypeRefresh, securityContext)
	if err != nil {
		return nil, fmt.Errorf("token_lifecycle_sign_refresh_failed: %w", err)
	}

	// Persist the refresh record with status active, keyed by jti
	record := &Token{
		ID:          refreshClaims.ID,
		IssuerID:    issuer.ID,
		AccountID:   accountID,
		Status:      TokenStatusActive,
		IP:          securityContext.IP,
		UserAgent:   securityContext.UserAgent,
		Fingerprint: securityContext.Fingerprint,
		ExpiresAt:   refreshClaims.ExpiresAt.Time,
	}
	if err := lifecycle.repository.Create(context, record); err != nil {
		return nil, fmt.Errorf("token_lifecycle_persist_refresh_failed: %w", err)
	}

	return &SessionTokens{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresIn:  lifecycle.tokens.AccessTTL(),
		RefreshTokenExpiresAt: refreshClaims.ExpiresAt.Time,
		RefreshTokenID:        refreshClaims.ID,
	}, nil
}

/*
VerifyRefresh checks a refresh token end to end: signature, expiry, type,
IP/fingerprint binding, and the persisted record's state machine.

Description: Every failure collapses into one opaque Unauthorized error;
the underlying cause is logged server-side only.

Parameters:
  - context: context.Context
  - refreshToken: string
  - securityContext: sec.SecurityContext

Returns:
  - *sec.AuthClaims: Verified claims
  - *Token: The persisted active record
  - error: apperr.Unauthorized on any failure
*/
func (lifecycle *TokenLifecycle) VerifyRefresh(context context.Context, refreshToken string, securityContext sec.SecurityContext) (*sec.AuthClaims, *Token, error) {

	// 1. Cryptographic verification plus binding policies
	claims, err := lifecycle.tokens.Verify(refreshToken, sec.TokenTypeRefresh, securityContext)
	if err != nil {
		return nil, nil, lifecycle.reject(context, "refresh_verify_failed", err)
	}

	// 2. The persisted record must exist and still be active (defense in
	//    depth: catches tokens revoked before their natural expiry)
	record, err := lifecycle.repository.FindByID(context, claims.ID)
	if err != nil {
		return nil, nil, lifecycle.reject(context, "refresh_record_missing", err)
	}
	if !record.IsUsable(lifecycle.now()) {
		return nil, nil, lifecycle.reject(context, "refresh_record_unusable",
			fmt.Errorf("token %s status %s", record.ID, record.Status))
	}

	return claims, record, nil
}

/*
Rotate exchanges a verified refresh token for a fresh pair.

Description: The new pair is issued and persisted FIRST; only then is the
old record marked rotated with a link to its successor.

Parameters:
  - context: context.Context
  - issuer: *Issuer
  - oldRecord: *Token (the verified predecessor)
  - securityContext: sec.SecurityContext

Returns:
  - *SessionTokens: The successor pair
  - error: Issuance or persistence failures
*/
func (lifecycle *TokenLifecycle) Rotate(context context.Context, issuer *Issuer, oldRecord *Token, securityContext sec.SecurityContext) (*SessionTokens, error) {

	// 1. Issue the successor pair
	pair, err := lifecycle.IssuePair(context, issuer, oldRecord.AccountID, securityContext)
	if err != nil {
		return nil, err
	}

	// 2. Retire the predecessor, linking it to the successor
	if err := lifecycle.repository.MarkRotated(context, oldRecord.ID, pair.RefreshTokenID); err != nil {
		return nil, fmt.Errorf("token_lifecycle_mark_rotated_failed: %w", err)
	}

	return pair, nil
}

/*
Revoke marks a single refresh token record revoked.

Parameters:
  - context: context.Context
  - tokenID: string (jti)

Returns:
  - error: Persistence failures
*/
func (lifecycle *TokenLifecycle) Revoke(context context.Context, tokenID string) error {
	if err := lifecycle.repository.Revoke(context, tokenID); err != nil {
		return fmt.Errorf("token_lifecycle_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAll bulk-revokes every active refresh token of the issuer.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - int: Number of sessions invalidated
  - error: Persistence failures
*/
func (lifecycle *TokenLifecycle) RevokeAll(context context.Context, issuerID string) (int, error) {
	revoked, err := lifecycle.repository.RevokeAll(context, issuerID)
	if err != nil {
		return 0, fmt.Errorf("token_lifecycle_revoke_all_failed: %w", err)
	}
	return revoked, nil
}

// reject logs the true verification failure and returns the opaque error
// the caller is allowed to see.
func (lifecycle *TokenLifecycle) reject(context context.Context, reason string, cause error) error {
	ctxutil.GetLogger(context).WarnContext(context, "refresh_token_rejected",
		slog.String("reason", reason),
		slog.Any("cause", cause),
	)
	return apperr.Unauthorized("Invalid or expired token")
}
