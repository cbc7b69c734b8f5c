// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
)

// # Test Doubles

// stubVerifier resolves provider credentials from a canned table. Anything
// not granted beforehand is rejected, mirroring a provider refusing an
// unknown or expired token.
type stubVerifier struct {
	profiles map[string]NormalizedProfile // keyed by provider + "/" + assertion
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{profiles: make(map[string]NormalizedProfile)}
}

func (verifier *stubVerifier) grant(provider string, assertion string, profile NormalizedProfile) {
	verifier.profiles[provider+"/"+assertion] = profile
}

func (verifier *stubVerifier) Verify(_ context.Context, provider string, assertion string) (NormalizedProfile, error) {
	if profile, found := verifier.profiles[provider+"/"+assertion]; found {
		return profile, nil
	}
	return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
}

// # Fixture

type socialFixture struct {
	*serviceFixture
	social   *SocialService
	verifier *stubVerifier
}

func newSocialFixture(t *testing.T) *socialFixture {
	t.Helper()
	base := newServiceFixture(t)
	verifier := newStubVerifier()
	social := NewSocialService(
		base.issuerRepo,
		base.accountRepo,
		base.service.lifecycle,
		verifier,
		base.notifier,
		base.service,
	)
	return &socialFixture{serviceFixture: base, social: social, verifier: verifier}
}

func googleProfile(accountID string) NormalizedProfile {
	return NormalizedProfile{
		ID:          accountID,
		Provider:    ProviderGoogle,
		Email:       "founder@acmelabs.io",
		Username:    "acmefounder",
		DisplayName: "Acme Founder",
		AvatarURL:   "https://lh3.example.com/avatar.png",
	}
}

// grantGoogle registers a credential the stub verifier will resolve to the
// canonical test profile.
func (fixture *socialFixture) grantGoogle(assertion string, accountID string) {
	fixture.verifier.grant(ProviderGoogle, assertion, googleProfile(accountID))
}

// # Tests

/*
TestSocialLogin_ProvisionsNewIssuer verifies a first social login creates the
issuer, the link, and a working session.
*/
func TestSocialLogin_ProvisionsNewIssuer(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotNil(t, session.Issuer)

	link, err := fixture.accountRepo.FindSocial(ctx, ProviderGoogle, "g-100")
	require.NoError(t, err)
	assert.Equal(t, session.Issuer.ID, link.IssuerID)

	assert.Equal(t, []string{session.Issuer.ID}, fixture.notifier.provisioned)
	assert.Equal(t, []string{session.Issuer.ID + "/" + ProviderGoogle}, fixture.notifier.linked)
}

/*
TestSocialLogin_ResolvesExistingLink verifies repeat logins with the same
provider identity reuse the issuer without re-provisioning.
*/
func TestSocialLogin_ResolvesExistingLink(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	first, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)
	second, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	assert.Equal(t, first.Issuer.ID, second.Issuer.ID)
	assert.Len(t, fixture.notifier.provisioned, 1)
	assert.Len(t, fixture.notifier.linked, 1, "existing link is not re-linked")
}

/*
TestSocialLogin_MatchesByEmail verifies a social identity with the email of
an existing issuer attaches to that issuer instead of creating a new one.
*/
func TestSocialLogin_MatchesByEmail(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	existing := testIssuer()
	existing.Email = "founder@acmelabs.io"
	require.NoError(t, fixture.issuerRepo.Create(ctx, existing))

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, session.Issuer.ID)
	assert.Empty(t, fixture.notifier.provisioned, "no new issuer was created")
	assert.Equal(t, []string{existing.ID + "/" + ProviderGoogle}, fixture.notifier.linked)
}

/*
TestSocialLogin_RejectsUnverifiedCredential verifies a credential the
provider does not vouch for cannot log in as anyone, even when the targeted
identity already has a linked account.
*/
func TestSocialLogin_RejectsUnverifiedCredential(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("victim-token", "g-100")

	victim, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "victim-token", testSecurityContext)
	require.NoError(t, err)

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "forged-token", testSecurityContext)
	require.Error(t, err)
	assert.Nil(t, session)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	// The victim's link is untouched and no extra events fired
	link, err := fixture.accountRepo.FindSocial(ctx, ProviderGoogle, "g-100")
	require.NoError(t, err)
	assert.Equal(t, victim.Issuer.ID, link.IssuerID)
	assert.Len(t, fixture.notifier.provisioned, 1)
}

/*
TestSocialLogin_RejectsMalformedVerifierProfile verifies the shape check on
whatever the verifier returns: an unsupported provider name never reaches
identity resolution.
*/
func TestSocialLogin_RejectsMalformedVerifierProfile(t *testing.T) {
	fixture := newSocialFixture(t)

	profile := googleProfile("g-100")
	profile.Provider = "myspace"
	fixture.verifier.grant("myspace", "tok-100", profile)

	_, err := fixture.social.HandleSocialLogin(context.Background(), "myspace", "tok-100", testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

/*
TestLinkSocialAccount_Conflict verifies the global uniqueness of a provider
identity: linking one owned by another issuer fails and creates nothing.
*/
func TestLinkSocialAccount_Conflict(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	// First issuer claims the identity via social login
	owner, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	// A second, wallet-provisioned issuer tries to link the same identity
	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	other, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)
	require.NotEqual(t, owner.Issuer.ID, other.Issuer.ID)

	_, err = fixture.social.LinkSocialAccount(ctx, other.Issuer.ID, ProviderGoogle, "tok-100")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)

	// The original link is untouched
	link, err := fixture.accountRepo.FindSocial(ctx, ProviderGoogle, "g-100")
	require.NoError(t, err)
	assert.Equal(t, owner.Issuer.ID, link.IssuerID)
}

/*
TestLinkSocialAccount_SelfRelink verifies relinking one's own identity is a
Conflict rather than a duplicate link or a duplicate score event.
*/
func TestLinkSocialAccount_SelfRelink(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	_, err = fixture.social.LinkSocialAccount(ctx, session.Issuer.ID, ProviderGoogle, "tok-100")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	assert.Len(t, fixture.notifier.linked, 1)
}

/*
TestLinkSocialAccount_RejectsUnverifiedCredential verifies a session grants
no shortcut: linking demands a provider-verified credential too.
*/
func TestLinkSocialAccount_RejectsUnverifiedCredential(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	_, err = fixture.social.LinkSocialAccount(ctx, session.Issuer.ID, ProviderGoogle, "forged-token")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	assert.Empty(t, fixture.notifier.linked)
}

/*
TestUnlinkSocialAccount verifies unlink removes the link and emits exactly
one penalty event, and that a second unlink is NotFound.
*/
func TestUnlinkSocialAccount(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	require.NoError(t, fixture.social.UnlinkSocialAccount(ctx, session.Issuer.ID, ProviderGoogle))
	assert.Equal(t, []string{session.Issuer.ID + "/" + ProviderGoogle}, fixture.notifier.unlinked)

	_, err = fixture.accountRepo.FindSocial(ctx, ProviderGoogle, "g-100")
	require.Error(t, err)

	err = fixture.social.UnlinkSocialAccount(ctx, session.Issuer.ID, ProviderGoogle)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

/*
TestSocialLogin_RejectsBannedIssuer verifies a banned issuer cannot enter
through the social door either.
*/
func TestSocialLogin_RejectsBannedIssuer(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()
	fixture.grantGoogle("tok-100", "g-100")

	session, err := fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.NoError(t, err)

	fixture.issuerRepo.mutex.Lock()
	fixture.issuerRepo.issuers[session.Issuer.ID].Status = IssuerStatusBanned
	fixture.issuerRepo.mutex.Unlock()

	_, err = fixture.social.HandleSocialLogin(ctx, ProviderGoogle, "tok-100", testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}
