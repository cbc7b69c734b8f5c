// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the core identity and access management system.

It handles everything from nonce-challenge wallet login and multi-scheme
signature verification to session lifecycle management via rotated JWT
refresh tokens.

Architecture:

  - Service: Orchestrates the wallet login protocol and session operations.
  - SocialService: Orchestrates social account login/link/unlink.
  - TokenLifecycle: Owns the refresh-token state machine.
  - Repository: Abstracted interfaces for Postgres (identity, tokens) and
    the nonce store (memory or Redis).

The package ensures that identity data remains consistent and secure
throughout the platform's lifecycle.
*/
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/ctxutil"
	"github.com/taibuivan/veriscore/internal/platform/sec"
	"github.com/taibuivan/veriscore/pkg/pointer"
	"github.com/taibuivan/veriscore/pkg/slug"
	"github.com/taibuivan/veriscore/pkg/uuid"
)

// # Contracts & Types

// ScoreNotifier receives identity events that affect trust scores.
//
// # Why an interface?
//
// The auth layer must never fail a login because scoring is unavailable, so
// implementations absorb and log their own errors. It also keeps the auth
// package free of a compile-time dependency on the scoring package.
type ScoreNotifier interface {
	// IssuerProvisioned fires after a brand-new issuer is created.
	IssuerProvisioned(context context.Context, issuerID string)
	// SocialLinked fires after a social account is linked.
	SocialLinked(context context.Context, issuerID string, provider string, linkedAt time.Time)
	// SocialUnlinked fires after a social account is removed.
	SocialUnlinked(context context.Context, issuerID string, provider string)
}

// NopScoreNotifier ignores every event. Used when scoring is disabled.
type NopScoreNotifier struct{}

func (NopScoreNotifier) IssuerProvisioned(context.Context, string) {}

func (NopScoreNotifier) SocialLinked(context.Context, string, string, time.Time) {}

func (NopScoreNotifier) SocialUnlinked(context.Context, string, string) {}

// ScoreReader resolves the current trust score for the profile projection.
// Same decoupling as [ScoreNotifier]: the auth package never imports the
// scoring package directly.
type ScoreReader interface {
	// CurrentScore returns the issuer's current total and tier. NotFound
	// means the issuer has never been scored.
	CurrentScore(context context.Context, issuerID string) (*ScoreSummary, error)
}

// Options carries the protocol parameters of the wallet login flow.
type Options struct {
	// ClientDomain is the hostname signatures must be bound to.
	ClientDomain string
	// SignatureMaxAge bounds the age of the signed challenge message.
	SignatureMaxAge time.Duration
}

// Service implements the wallet authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to the login protocol
// or signature dispatch must be reviewed by the security team.
type Service struct {
	issuerRepository  IssuerRepository
	accountRepository AccountRepository
	nonceStore        NonceStore
	lifecycle         *TokenLifecycle
	scoreNotifier     ScoreNotifier
	scoreReader       ScoreReader
	options           Options
	now               func() time.Time
	verifySignature   func(address string, message string, signature json.RawMessage, now time.Time) bool
}

// NewService constructs a new auth [Service] with necessary dependencies.
// A nil scoreReader omits the score from profile projections.
func NewService(
	issuerRepo IssuerRepository,
	accountRepo AccountRepository,
	nonceStore NonceStore,
	lifecycle *TokenLifecycle,
	scoreNotifier ScoreNotifier,
	scoreReader ScoreReader,
	options Options,
) *Service {
	if options.SignatureMaxAge <= 0 {
		options.SignatureMaxAge = DefaultSignatureMaxAge
	}
	if scoreNotifier == nil {
		scoreNotifier = NopScoreNotifier{}
	}
	return &Service{
		issuerRepository:  issuerRepo,
		accountRepository: accountRepo,
		nonceStore:        nonceStore,
		lifecycle:         lifecycle,
		scoreNotifier:     scoreNotifier,
		scoreReader:       scoreReader,
		options:           options,
		now:               time.Now,
		verifySignature:   sec.VerifyWalletSignature,
	}
}

// # Challenge Flow

/*
GenerateNonce issues a fresh single-use login challenge for the address.

Description: Overwrites any previously issued nonce for the same address,
so only the newest challenge is ever valid.

Parameters:
  - context: context.Context
  - address: string

Returns:
  - Challenge: Nonce plus the canonical message to sign
  - error: Generation failures
*/
func (service *Service) GenerateNonce(context context.Context, address string) (Challenge, error) {
	nonce, err := service.nonceStore.Issue(context, address)
	if err != nil {
		return Challenge{}, fmt.Errorf("auth_service_nonce_issue_failed: %w", err)
	}

	return Challenge{
		Nonce:     nonce,
		Address:   address,
		Timestamp: service.now().Unix(),
		Domain:    service.options.ClientDomain,
	}, nil
}

// # Wallet Login Flow

// WalletLoginInput carries a signed challenge submission.
type WalletLoginInput struct {
	Address   string
	Network   Network
	Message   string
	Signature json.RawMessage
}

// LoginSession represents a successfully established issuer session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresIn  time.Duration
	RefreshTokenExpiresAt time.Time
	Issuer                *Profile
}

/*
WalletLogin authenticates a wallet-signed challenge and establishes a session.

Description: Implements the full login protocol: challenge reconstruction,
nonce matching, staleness and domain binding checks, signature verification,
single-use nonce consumption, issuer auto-provisioning, prior-session
revocation, and token pair issuance. Every failure before issuance
collapses into one opaque Unauthorized error to avoid oracle leakage.

Parameters:
  - context: context.Context
  - input: WalletLoginInput
  - securityContext: sec.SecurityContext

Returns:
  - *LoginSession: Tokens plus the public issuer projection
  - error: apperr.Unauthorized or internal failures
*/
func (service *Service) WalletLogin(context context.Context, input WalletLoginInput, securityContext sec.SecurityContext) (*LoginSession, error) {
	now := service.now()

	// 1. Parse the echoed challenge message
	challenge, err := ParseChallenge(input.Message)
	if err != nil || challenge.Nonce == "" || challenge.Address == "" || challenge.Timestamp == 0 || challenge.Domain == "" {
		return nil, service.rejectLogin(context, "malformed_challenge", err)
	}

	// 2. The stored nonce for the address must match the one in the message
	if !strings.EqualFold(challenge.Address, input.Address) {
		return nil, service.rejectLogin(context, "address_mismatch", nil)
	}
	if !service.nonceStore.Match(context, input.Address, challenge.Nonce) {
		return nil, service.rejectLogin(context, "nonce_mismatch", nil)
	}

	// 3. Staleness guard, independent of the nonce TTL
	age := now.Sub(time.Unix(challenge.Timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > service.options.SignatureMaxAge {
		return nil, service.rejectLogin(context, "stale_challenge", nil)
	}

	// 4. Domain binding (anti-phishing)
	if challenge.Domain != service.options.ClientDomain {
		return nil, service.rejectLogin(context, "domain_mismatch", nil)
	}

	// 5. Verify the signature against the claimed address
	if !service.verifySignature(input.Address, input.Message, input.Signature, now) {
		return nil, service.rejectLogin(context, "signature_invalid", nil)
	}

	// 6. Consume the nonce; each challenge authenticates at most one login
	if !service.nonceStore.Consume(context, input.Address, challenge.Nonce) {
		return nil, service.rejectLogin(context, "nonce_already_consumed", nil)
	}

	// 7. Find or auto-provision the issuer keyed by lower-cased address
	issuer, wallet, err := service.findOrCreateByWallet(context, input.Address, input.Network)
	if err != nil {
		return nil, err
	}
	if !issuer.CanAuthenticate() {
		return nil, service.rejectLogin(context, "issuer_"+string(issuer.Status), nil)
	}

	// 8. Invalidate every prior session for this issuer
	if _, err := service.lifecycle.RevokeAll(context, issuer.ID); err != nil {
		return nil, err
	}

	// 9. Issue the fresh pair and update last-login metadata
	pair, err := service.lifecycle.IssuePair(context, issuer, wallet.ID, securityContext)
	if err != nil {
		return nil, err
	}
	if err := service.issuerRepository.RecordLogin(context, issuer.ID, now, securityContext.IP, securityContext.UserAgent); err != nil {
		return nil, fmt.Errorf("auth_service_record_login_failed: %w", err)
	}
	_ = service.accountRepository.TouchWallet(context, wallet.ID, now)

	// 10. Return tokens plus the public projection
	profile, err := service.BuildProfile(context, issuer)
	if err != nil {
		return nil, err
	}

	return &LoginSession{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresIn:  pair.AccessTokenExpiresIn,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		Issuer:                profile,
	}, nil
}

// findOrCreateByWallet resolves the issuer for an address, provisioning a
// new profile plus wallet link on first login. Only a NotFound falls
// through to provisioning; a transient lookup failure must never mint a
// duplicate issuer for an existing wallet.
func (service *Service) findOrCreateByWallet(context context.Context, address string, network Network) (*Issuer, *WalletAccount, error) {
	normalized := strings.ToLower(address)

	issuer, err := service.issuerRepository.FindByWalletAddress(context, normalized)
	if err == nil {
		wallet, err := service.accountRepository.FindWalletByAddress(context, normalized)
		if err != nil {
			return nil, nil, fmt.Errorf("auth_service_wallet_link_missing: %w", err)
		}
		return issuer, wallet, nil
	}
	if appError := apperr.As(err); appError == nil || appError.Code != "NOT_FOUND" {
		return nil, nil, fmt.Errorf("auth_service_wallet_lookup_failed: %w", err)
	}

	if network == "" {
		network = NetworkEthereum
	}

	// First login for this wallet: provision issuer and link in one flow
	issuer = &Issuer{
		ID:          uuid.New(),
		Handle:      slug.From(shortAddress(normalized)),
		DisplayName: shortAddress(normalized),
		Role:        sec.RoleIssuer,
		Status:      IssuerStatusActive,
		KYCStatus:   KYCStatusNone,
	}
	if err := service.issuerRepository.Create(context, issuer); err != nil {
		return nil, nil, fmt.Errorf("auth_service_provision_issuer_failed: %w", err)
	}

	wallet := &WalletAccount{
		ID:       uuid.New(),
		IssuerID: issuer.ID,
		Address:  normalized,
		Network:  network,
	}
	if err := service.accountRepository.CreateWallet(context, wallet); err != nil {
		return nil, nil, fmt.Errorf("auth_service_provision_wallet_failed: %w", err)
	}

	service.scoreNotifier.IssuerProvisioned(context, issuer.ID)

	return issuer, wallet, nil
}

// shortAddress renders a compact display form of a wallet address.
func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "-" + address[len(address)-4:]
}

// # Session Management

/*
RefreshSession implements the Refresh Token Rotation mechanism.

Description: Verifies the presented refresh token (signature, bindings, and
persisted state), issues a fresh pair, and only then retires the old token
(issue-then-rotate ordering).

Parameters:
  - context: context.Context
  - refreshToken: string
  - securityContext: sec.SecurityContext

Returns:
  - *LoginSession: New session credentials
  - error: apperr.Unauthorized or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken string, securityContext sec.SecurityContext) (*LoginSession, error) {

	// Verify end to end; failures are already collapsed and logged
	claims, record, err := service.lifecycle.VerifyRefresh(context, refreshToken, securityContext)
	if err != nil {
		return nil, err
	}

	// The issuer must still exist and be in good standing
	issuer, err := service.issuerRepository.FindByID(context, claims.IssuerID)
	if err != nil || !issuer.CanAuthenticate() {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}

	pair, err := service.lifecycle.Rotate(context, issuer, record, securityContext)
	if err != nil {
		return nil, err
	}

	profile, err := service.BuildProfile(context, issuer)
	if err != nil {
		return nil, err
	}

	return &LoginSession{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresIn:  pair.AccessTokenExpiresIn,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		Issuer:                profile,
	}, nil
}

/*
Logout permanently revokes the presented refresh token.

Description: Idempotent; an already-invalid token is treated as logged out.

Parameters:
  - context: context.Context
  - refreshToken: string
  - securityContext: sec.SecurityContext

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string, securityContext sec.SecurityContext) error {
	_, record, err := service.lifecycle.VerifyRefresh(context, refreshToken, securityContext)
	if err != nil {
		// Already gone or invalid: logout is considered successful
		return nil
	}
	return service.lifecycle.Revoke(context, record.ID)
}

/*
RevokeAllSessions invalidates every active session of the issuer.

Description: The "log out everywhere" operation.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - int: Number of sessions invalidated
  - error: Persistence failures
*/
func (service *Service) RevokeAllSessions(context context.Context, issuerID string) (int, error) {
	revoked, err := service.lifecycle.RevokeAll(context, issuerID)
	if err != nil {
		return 0, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "all_sessions_revoked",
		slog.String("issuer_id", issuerID),
		slog.Int("revoked", revoked),
	)
	return revoked, nil
}

// # Profile Operations

/*
GetProfile returns the public projection of an issuer.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - *Profile: Public projection with wallet and social links
  - error: NotFound or retrieval failures
*/
func (service *Service) GetProfile(context context.Context, issuerID string) (*Profile, error) {
	issuer, err := service.issuerRepository.FindByID(context, issuerID)
	if err != nil {
		return nil, err
	}
	return service.BuildProfile(context, issuer)
}

// UpdateProfileInput carries the PATCH semantics of a profile update; nil
// pointers leave the field untouched.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	Website     *string
}

/*
UpdateProfile applies a partial update to the issuer's mutable fields.

Parameters:
  - context: context.Context
  - issuerID: string
  - input: UpdateProfileInput

Returns:
  - *Profile: Updated public projection
  - error: NotFound or persistence failures
*/
func (service *Service) UpdateProfile(context context.Context, issuerID string, input UpdateProfileInput) (*Profile, error) {
	issuer, err := service.issuerRepository.FindByID(context, issuerID)
	if err != nil {
		return nil, err
	}

	issuer.DisplayName = pointer.Fallback(input.DisplayName, issuer.DisplayName)
	issuer.Bio = pointer.Fallback(input.Bio, issuer.Bio)
	issuer.AvatarURL = pointer.Fallback(input.AvatarURL, issuer.AvatarURL)
	issuer.Website = pointer.Fallback(input.Website, issuer.Website)

	if err := service.issuerRepository.Update(context, issuer); err != nil {
		return nil, fmt.Errorf("auth_service_update_profile_failed: %w", err)
	}

	return service.BuildProfile(context, issuer)
}

// ListWallets returns the wallet links of the issuer.
func (service *Service) ListWallets(context context.Context, issuerID string) ([]WalletAccount, error) {
	return service.accountRepository.ListWallets(context, issuerID)
}

// ListSocials returns the social links of the issuer.
func (service *Service) ListSocials(context context.Context, issuerID string) ([]SocialAccount, error) {
	return service.accountRepository.ListSocials(context, issuerID)
}

// BuildProfile assembles the public projection for an issuer entity,
// including the current trust score when one exists.
func (service *Service) BuildProfile(context context.Context, issuer *Issuer) (*Profile, error) {
	wallets, err := service.accountRepository.ListWallets(context, issuer.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_list_wallets_failed: %w", err)
	}
	socials, err := service.accountRepository.ListSocials(context, issuer.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_list_socials_failed: %w", err)
	}

	return &Profile{
		Score: service.currentScore(context, issuer.ID),
		ID:           issuer.ID,
		Handle:       issuer.Handle,
		DisplayName:  issuer.DisplayName,
		Bio:          issuer.Bio,
		AvatarURL:    issuer.AvatarURL,
		Website:      issuer.Website,
		StakedAmount: issuer.StakedAmount,
		KYCStatus:    issuer.KYCStatus,
		Wallets:      wallets,
		Socials:      socials,
		CreatedAt:    issuer.CreatedAt,
	}, nil
}

// currentScore resolves the trust-score summary for the projection. A
// never-scored issuer, a disabled reader, and a scoring hiccup all omit the
// score; a profile read must never fail because scoring is down.
func (service *Service) currentScore(context context.Context, issuerID string) *ScoreSummary {
	if service.scoreReader == nil {
		return nil
	}
	summary, err := service.scoreReader.CurrentScore(context, issuerID)
	if err != nil {
		if appError := apperr.As(err); appError == nil || appError.Code != "NOT_FOUND" {
			ctxutil.GetLogger(context).WarnContext(context, "profile_score_unavailable",
				slog.String("issuer_id", issuerID),
				slog.Any("cause", err),
			)
		}
		return nil
	}
	return summary
}

// rejectLogin logs the true protocol failure and returns the opaque error.
func (service *Service) rejectLogin(context context.Context, reason string, cause error) error {
	ctxutil.GetLogger(context).WarnContext(context, "wallet_login_rejected",
		slog.String("reason", reason),
		slog.Any("cause", cause),
	)
	return apperr.Unauthorized("Invalid signature")
}
