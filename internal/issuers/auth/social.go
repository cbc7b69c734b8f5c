// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/ctxutil"
	"github.com/taibuivan/veriscore/internal/platform/dberr"
	"github.com/taibuivan/veriscore/internal/platform/sec"
	"github.com/taibuivan/veriscore/pkg/slug"
	"github.com/taibuivan/veriscore/pkg/uuid"
)

// # Provider Normalization

// Supported social providers.
const (
	ProviderGoogle   = "google"
	ProviderX        = "x"
	ProviderGithub   = "github"
	ProviderLinkedin = "linkedin"
	ProviderTelegram = "telegram"
)

// SupportedProviders lists every provider accepted by the social flows.
var SupportedProviders = []string{
	ProviderGoogle, ProviderX, ProviderGithub, ProviderLinkedin, ProviderTelegram,
}

// NormalizedProfile is the single internal shape every verified provider
// identity is converted into. It is produced by a [ProviderVerifier] only;
// profile data is never accepted from a client.
type NormalizedProfile struct {
	ID          string
	Provider    string
	Email       string
	Username    string
	DisplayName string
	ProfileURL  string
	AvatarURL   string
}

// Validate checks the minimal shape of a normalized profile.
func (profile NormalizedProfile) Validate() error {
	if profile.ID == "" {
		return apperr.ValidationError("Provider profile is missing an account id")
	}
	for _, provider := range SupportedProviders {
		if profile.Provider == provider {
			return nil
		}
	}
	return apperr.ValidationError(fmt.Sprintf("Unsupported provider %q", profile.Provider))
}

// # Social Orchestrator

// SocialService implements the social account use cases: login with a
// provider-issued credential, and linking/unlinking accounts to an existing
// issuer.
//
// Callers never submit profile data. They submit the credential the
// provider gave them; the verifier presents it back to the provider and
// only the identity the provider vouches for enters the system.
type SocialService struct {
	issuerRepository  IssuerRepository
	accountRepository AccountRepository
	lifecycle         *TokenLifecycle
	verifier          ProviderVerifier
	scoreNotifier     ScoreNotifier
	authService       *Service
	now               func() time.Time
}

// NewSocialService constructs a [SocialService].
func NewSocialService(
	issuerRepo IssuerRepository,
	accountRepo AccountRepository,
	lifecycle *TokenLifecycle,
	verifier ProviderVerifier,
	scoreNotifier ScoreNotifier,
	authService *Service,
) *SocialService {
	if scoreNotifier == nil {
		scoreNotifier = NopScoreNotifier{}
	}
	return &SocialService{
		issuerRepository:  issuerRepo,
		accountRepository: accountRepo,
		lifecycle:         lifecycle,
		verifier:          verifier,
		scoreNotifier:     scoreNotifier,
		authService:       authService,
		now:               time.Now,
	}
}

/*
HandleSocialLogin authenticates a provider-issued credential.

Description: Verifies the credential with the provider first; a credential
the provider rejects never reaches identity resolution. The verified
identity then resolves in order: by existing social link, then by matching
primary email, else auto-provisions a new issuer. New links emit a score
event; a fresh session pair is issued either way.

Parameters:
  - context: context.Context
  - provider: string (one of [SupportedProviders])
  - assertion: string (the provider-issued credential)
  - securityContext: sec.SecurityContext

Returns:
  - *LoginSession: Tokens plus the public issuer projection
  - error: Validation, Unauthorized or storage failures
*/
func (service *SocialService) HandleSocialLogin(context context.Context, provider string, assertion string, securityContext sec.SecurityContext) (*LoginSession, error) {
	profile, err := service.verifyIdentity(context, provider, assertion)
	if err != nil {
		return nil, err
	}
	now := service.now()

	issuer, social, err := service.resolveIssuer(context, profile)
	if err != nil {
		return nil, err
	}
	if !issuer.CanAuthenticate() {
		return nil, apperr.Unauthorized("Invalid login")
	}

	pair, err := service.lifecycle.IssuePair(context, issuer, social.ID, securityContext)
	if err != nil {
		return nil, err
	}
	if err := service.issuerRepository.RecordLogin(context, issuer.ID, now, securityContext.IP, securityContext.UserAgent); err != nil {
		return nil, fmt.Errorf("social_service_record_login_failed: %w", err)
	}
	_ = service.accountRepository.TouchSocial(context, social.ID, now)

	projection, err := service.authService.BuildProfile(context, issuer)
	if err != nil {
		return nil, err
	}

	return &LoginSession{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresIn:  pair.AccessTokenExpiresIn,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		Issuer:                projection,
	}, nil
}

// resolveIssuer finds the issuer for a provider identity, creating the
// issuer and/or the social link as needed.
func (service *SocialService) resolveIssuer(context context.Context, profile NormalizedProfile) (*Issuer, *SocialAccount, error) {

	// 1. Existing link wins
	social, err := service.accountRepository.FindSocial(context, profile.Provider, profile.ID)
	if err == nil {
		issuer, err := service.issuerRepository.FindByID(context, social.IssuerID)
		if err != nil {
			return nil, nil, fmt.Errorf("social_service_link_owner_missing: %w", err)
		}
		return issuer, social, nil
	}

	// 2. Fall back to the primary email of an existing issuer
	var issuer *Issuer
	if profile.Email != "" {
		issuer, _ = service.issuerRepository.FindByEmail(context, profile.Email)
	}

	// 3. Provision a brand-new issuer when nothing matched
	provisioned := false
	if issuer == nil {
		displayName := profile.DisplayName
		if displayName == "" {
			displayName = profile.Username
		}
		issuer = &Issuer{
			ID:          uuid.New(),
			Handle:      slug.From(displayName + "-" + profile.Provider),
			DisplayName: displayName,
			Email:       profile.Email,
			AvatarURL:   profile.AvatarURL,
			Role:        sec.RoleIssuer,
			Status:      IssuerStatusActive,
			KYCStatus:   KYCStatusNone,
		}
		if err := service.issuerRepository.Create(context, issuer); err != nil {
			return nil, nil, fmt.Errorf("social_service_provision_issuer_failed: %w", err)
		}
		provisioned = true
	}

	social, err = service.attachLink(context, issuer, profile)
	if err != nil {
		return nil, nil, err
	}

	if provisioned {
		service.scoreNotifier.IssuerProvisioned(context, issuer.ID)
	}
	return issuer, social, nil
}

// verifyIdentity runs the client-supplied credential through the provider
// verifier and sanity-checks the returned shape.
func (service *SocialService) verifyIdentity(context context.Context, provider string, assertion string) (NormalizedProfile, error) {
	profile, err := service.verifier.Verify(context, strings.ToLower(provider), assertion)
	if err != nil {
		return NormalizedProfile{}, err
	}
	if err := profile.Validate(); err != nil {
		return NormalizedProfile{}, err
	}
	return profile, nil
}

/*
LinkSocialAccount attaches a provider identity to an existing issuer.

Description: The credential is verified with the provider exactly like a
social login; owning an issuer session grants no shortcut around it. The
(provider, account id) pair is globally unique; linking an identity already
owned by another issuer fails with Conflict and creates nothing. A
successful link emits exactly one score event.

Parameters:
  - context: context.Context
  - issuerID: string
  - provider: string
  - assertion: string (the provider-issued credential)

Returns:
  - *SocialAccount: The created link
  - error: Conflict, Validation, Unauthorized or storage failures
*/
func (service *SocialService) LinkSocialAccount(context context.Context, issuerID string, provider string, assertion string) (*SocialAccount, error) {
	profile, err := service.verifyIdentity(context, provider, assertion)
	if err != nil {
		return nil, err
	}

	issuer, err := service.issuerRepository.FindByID(context, issuerID)
	if err != nil {
		return nil, err
	}

	if existing, err := service.accountRepository.FindSocial(context, profile.Provider, profile.ID); err == nil {
		if existing.IssuerID == issuer.ID {
			return nil, apperr.Conflict("This account is already linked to your profile")
		}
		return nil, apperr.Conflict("This account is already linked to another issuer")
	}

	return service.attachLink(context, issuer, profile)
}

// attachLink persists the social link and emits the score event.
func (service *SocialService) attachLink(context context.Context, issuer *Issuer, profile NormalizedProfile) (*SocialAccount, error) {
	now := service.now()
	social := &SocialAccount{
		ID:                uuid.New(),
		IssuerID:          issuer.ID,
		Provider:          profile.Provider,
		ProviderAccountID: profile.ID,
		Email:             profile.Email,
		Username:          profile.Username,
		ProfileURL:        profile.ProfileURL,
		AvatarURL:         profile.AvatarURL,
		LinkedAt:          now,
	}
	if err := service.accountRepository.CreateSocial(context, social); err != nil {
		// Unique violation means a concurrent link won the race
		return nil, dberr.Wrap(err, "social_service_create_link")
	}

	service.scoreNotifier.SocialLinked(context, issuer.ID, profile.Provider, now)

	ctxutil.GetLogger(context).InfoContext(context, "social_account_linked",
		slog.String("issuer_id", issuer.ID),
		slog.String("provider", profile.Provider),
	)
	return social, nil
}

/*
UnlinkSocialAccount removes a provider link from the issuer.

Description: Removal applies the unlink score penalty, which is deliberately
larger than the link reward to discourage link/unlink farming.

Parameters:
  - context: context.Context
  - issuerID: string
  - provider: string

Returns:
  - error: NotFound or storage failures
*/
func (service *SocialService) UnlinkSocialAccount(context context.Context, issuerID string, provider string) error {
	provider = strings.ToLower(provider)

	removed, err := service.accountRepository.DeleteSocial(context, issuerID, provider)
	if err != nil {
		return err
	}

	service.scoreNotifier.SocialUnlinked(context, issuerID, removed.Provider)

	ctxutil.GetLogger(context).InfoContext(context, "social_account_unlinked",
		slog.String("issuer_id", issuerID),
		slog.String("provider", removed.Provider),
	)
	return nil
}
