// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/sec"
)

// # Test Doubles

type fakeIssuerRepo struct {
	mutex           sync.Mutex
	issuers         map[string]*Issuer
	accounts        *fakeAccountRepo // backs the wallet-address join
	walletLookupErr error            // injected infrastructure failure
}

func newFakeIssuerRepo() *fakeIssuerRepo {
	return &fakeIssuerRepo{issuers: make(map[string]*Issuer)}
}

func (repo *fakeIssuerRepo) FindByID(_ context.Context, id string) (*Issuer, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if issuer, found := repo.issuers[id]; found {
		copied := *issuer
		return &copied, nil
	}
	return nil, apperr.NotFound("Issuer")
}

func (repo *fakeIssuerRepo) FindByWalletAddress(ctx context.Context, address string) (*Issuer, error) {
	if repo.walletLookupErr != nil {
		return nil, repo.walletLookupErr
	}
	if repo.accounts != nil {
		if wallet, err := repo.accounts.FindWalletByAddress(ctx, address); err == nil {
			return repo.FindByID(ctx, wallet.IssuerID)
		}
	}
	return nil, apperr.NotFound("Issuer for this wallet")
}

func (repo *fakeIssuerRepo) FindByEmail(_ context.Context, email string) (*Issuer, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	for _, issuer := range repo.issuers {
		if issuer.Email != "" && issuer.Email == email {
			copied := *issuer
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Issuer with this email")
}

func (repo *fakeIssuerRepo) Create(_ context.Context, issuer *Issuer) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	copied := *issuer
	repo.issuers[issuer.ID] = &copied
	return nil
}

func (repo *fakeIssuerRepo) Update(_ context.Context, issuer *Issuer) error {
	return repo.Create(context.Background(), issuer)
}

func (repo *fakeIssuerRepo) RecordLogin(_ context.Context, issuerID string, at time.Time, ip string, userAgent string) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if issuer, found := repo.issuers[issuerID]; found {
		stamped := at
		issuer.LastLoginAt = &stamped
		issuer.LastLoginIP = ip
		issuer.LastLoginUA = userAgent
	}
	return nil
}

type fakeAccountRepo struct {
	mutex   sync.Mutex
	wallets map[string]*WalletAccount // keyed by lower-cased address
	socials map[string]*SocialAccount // keyed by provider + "/" + provider account id
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		wallets: make(map[string]*WalletAccount),
		socials: make(map[string]*SocialAccount),
	}
}

func socialKey(provider, providerAccountID string) string {
	return provider + "/" + providerAccountID
}

func (repo *fakeAccountRepo) FindWalletByAddress(_ context.Context, address string) (*WalletAccount, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if wallet, found := repo.wallets[strings.ToLower(address)]; found {
		copied := *wallet
		return &copied, nil
	}
	return nil, apperr.NotFound("Wallet")
}

func (repo *fakeAccountRepo) ListWallets(_ context.Context, issuerID string) ([]WalletAccount, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	wallets := []WalletAccount{}
	for _, wallet := range repo.wallets {
		if wallet.IssuerID == issuerID {
			wallets = append(wallets, *wallet)
		}
	}
	return wallets, nil
}

func (repo *fakeAccountRepo) CreateWallet(_ context.Context, wallet *WalletAccount) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	copied := *wallet
	copied.Address = strings.ToLower(wallet.Address)
	repo.wallets[copied.Address] = &copied
	return nil
}

func (repo *fakeAccountRepo) TouchWallet(_ context.Context, walletID string, at time.Time) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	for _, wallet := range repo.wallets {
		if wallet.ID == walletID {
			stamped := at
			wallet.LastUsedAt = &stamped
		}
	}
	return nil
}

func (repo *fakeAccountRepo) FindSocial(_ context.Context, provider string, providerAccountID string) (*SocialAccount, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if social, found := repo.socials[socialKey(provider, providerAccountID)]; found {
		copied := *social
		return &copied, nil
	}
	return nil, apperr.NotFound("Social account")
}

func (repo *fakeAccountRepo) ListSocials(_ context.Context, issuerID string) ([]SocialAccount, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	socials := []SocialAccount{}
	for _, social := range repo.socials {
		if social.IssuerID == issuerID {
			socials = append(socials, *social)
		}
	}
	return socials, nil
}

func (repo *fakeAccountRepo) CreateSocial(_ context.Context, social *SocialAccount) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	key := socialKey(social.Provider, social.ProviderAccountID)
	if _, found := repo.socials[key]; found {
		return apperr.Conflict("Resource already exists")
	}
	copied := *social
	repo.socials[key] = &copied
	return nil
}

func (repo *fakeAccountRepo) DeleteSocial(_ context.Context, issuerID string, provider string) (*SocialAccount, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	for key, social := range repo.socials {
		if social.IssuerID == issuerID && social.Provider == provider {
			copied := *social
			delete(repo.socials, key)
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Social link")
}

func (repo *fakeAccountRepo) TouchSocial(_ context.Context, socialID string, at time.Time) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	for _, social := range repo.socials {
		if social.ID == socialID {
			stamped := at
			social.LastUsedAt = &stamped
		}
	}
	return nil
}

// recordingNotifier captures score events for assertions.
type recordingNotifier struct {
	mutex       sync.Mutex
	provisioned []string
	linked      []string
	unlinked    []string
}

func (notifier *recordingNotifier) IssuerProvisioned(_ context.Context, issuerID string) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.provisioned = append(notifier.provisioned, issuerID)
}

func (notifier *recordingNotifier) SocialLinked(_ context.Context, issuerID string, provider string, _ time.Time) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.linked = append(notifier.linked, issuerID+"/"+provider)
}

func (notifier *recordingNotifier) SocialUnlinked(_ context.Context, issuerID string, provider string) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.unlinked = append(notifier.unlinked, issuerID+"/"+provider)
}

// stubScoreReader serves canned score summaries for profile assembly.
type stubScoreReader struct {
	summaries map[string]*ScoreSummary
	err       error
}

func newStubScoreReader() *stubScoreReader {
	return &stubScoreReader{summaries: make(map[string]*ScoreSummary)}
}

func (reader *stubScoreReader) CurrentScore(_ context.Context, issuerID string) (*ScoreSummary, error) {
	if reader.err != nil {
		return nil, reader.err
	}
	if summary, found := reader.summaries[issuerID]; found {
		copied := *summary
		return &copied, nil
	}
	return nil, apperr.NotFound("Score")
}

// # Fixture

const testDomain = "app.veriscore.app"

type serviceFixture struct {
	service     *Service
	issuerRepo  *fakeIssuerRepo
	accountRepo *fakeAccountRepo
	tokenRepo   *fakeTokenRepo
	nonces      *MemoryNonceStore
	notifier    *recordingNotifier
	scores      *stubScoreReader
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	issuerRepo := newFakeIssuerRepo()
	accountRepo := newFakeAccountRepo()
	issuerRepo.accounts = accountRepo
	tokenRepo := newFakeTokenRepo()
	nonces := NewMemoryNonceStore(0, 0)
	notifier := &recordingNotifier{}
	scores := newStubScoreReader()
	lifecycle := NewTokenLifecycle(newTestTokenService(t), tokenRepo)

	service := NewService(issuerRepo, accountRepo, nonces, lifecycle, notifier, scores, Options{
		ClientDomain:    testDomain,
		SignatureMaxAge: DefaultSignatureMaxAge,
	})

	// Signature verification is covered by the sec package tests; the
	// protocol tests stub it so they can steer each decision point.
	service.verifySignature = func(string, string, json.RawMessage, time.Time) bool { return true }

	return &serviceFixture{
		service:     service,
		issuerRepo:  issuerRepo,
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		nonces:      nonces,
		notifier:    notifier,
		scores:      scores,
	}
}

func (fixture *serviceFixture) loginInput(t *testing.T, challenge Challenge) WalletLoginInput {
	t.Helper()
	message, err := challenge.Message()
	require.NoError(t, err)
	return WalletLoginInput{
		Address:   challenge.Address,
		Network:   NetworkEthereum,
		Message:   message,
		Signature: json.RawMessage(`"0xsigned"`),
	}
}

var testSecurityContext = sec.SecurityContext{IP: "203.0.113.7", UserAgent: "veriscore-tests"}

// # Tests

/*
TestWalletLogin_AutoProvision verifies a first-time wallet login creates the
issuer, links the lower-cased wallet, emits the provisioning event, and
returns a working session.
*/
func TestWalletLogin_AutoProvision(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testDomain, challenge.Domain)

	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.NotNil(t, session.Issuer)

	// Wallet stored lower-cased, issuer provisioned and notified
	wallet, err := fixture.accountRepo.FindWalletByAddress(ctx, strings.ToLower(testAddress))
	require.NoError(t, err)
	assert.Equal(t, session.Issuer.ID, wallet.IssuerID)
	assert.Equal(t, []string{session.Issuer.ID}, fixture.notifier.provisioned)
	assert.Len(t, session.Issuer.Wallets, 1)

	// Last-login metadata stamped
	issuer, err := fixture.issuerRepo.FindByID(ctx, session.Issuer.ID)
	require.NoError(t, err)
	require.NotNil(t, issuer.LastLoginAt)
	assert.Equal(t, testSecurityContext.IP, issuer.LastLoginIP)
}

/*
TestWalletLogin_SecondLoginReusesIssuer verifies the same wallet resolves to
the same issuer and that prior sessions are revoked on login.
*/
func TestWalletLogin_SecondLoginReusesIssuer(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	first, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	challenge, err = fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	second, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	assert.Equal(t, first.Issuer.ID, second.Issuer.ID)
	assert.Len(t, fixture.notifier.provisioned, 1, "provisioning must happen once")

	// The first session's refresh token was revoked by the second login
	_, err = fixture.service.RefreshSession(ctx, first.RefreshToken, testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestWalletLogin_RejectsUnknownNonce verifies a challenge whose nonce was
never issued (or already consumed) fails with the opaque error.
*/
func TestWalletLogin_RejectsUnknownNonce(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge := Challenge{
		Nonce:     "never-issued",
		Address:   testAddress,
		Timestamp: time.Now().Unix(),
		Domain:    testDomain,
	}

	_, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)
	assert.Equal(t, "Invalid signature", appError.Message)
}

/*
TestWalletLogin_RejectsReplay verifies a consumed challenge cannot
authenticate a second login.
*/
func TestWalletLogin_RejectsReplay(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	input := fixture.loginInput(t, challenge)

	_, err = fixture.service.WalletLogin(ctx, input, testSecurityContext)
	require.NoError(t, err)

	_, err = fixture.service.WalletLogin(ctx, input, testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "Invalid signature", apperr.As(err).Message)
}

/*
TestWalletLogin_RejectsStaleChallenge verifies the staleness guard fires
independently of the nonce TTL.
*/
func TestWalletLogin_RejectsStaleChallenge(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)

	// Signed twenty minutes ago against a fifteen minute max age
	challenge.Timestamp = time.Now().Add(-20 * time.Minute).Unix()

	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "Invalid signature", apperr.As(err).Message)

	// The nonce survived the staleness rejection and is burned only by an
	// otherwise-valid attempt
	assert.True(t, fixture.nonces.Match(ctx, testAddress, challenge.Nonce))
}

/*
TestWalletLogin_RejectsWrongDomain verifies domain binding.
*/
func TestWalletLogin_RejectsWrongDomain(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	challenge.Domain = "evil.example.com"

	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "Invalid signature", apperr.As(err).Message)
}

/*
TestWalletLogin_RejectsBadSignature verifies an invalid signature fails after
the protocol checks but before nonce consumption.
*/
func TestWalletLogin_RejectsBadSignature(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.service.verifySignature = func(string, string, json.RawMessage, time.Time) bool { return false }
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)

	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "Invalid signature", apperr.As(err).Message)

	// Nonce not consumed by a failed signature: the wallet may retry
	assert.True(t, fixture.nonces.Match(ctx, testAddress, challenge.Nonce))
}

/*
TestWalletLogin_RejectsBannedIssuer verifies a banned issuer cannot log in
even with a fully valid challenge.
*/
func TestWalletLogin_RejectsBannedIssuer(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	// Provision through a normal login, then ban
	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	fixture.issuerRepo.mutex.Lock()
	fixture.issuerRepo.issuers[session.Issuer.ID].Status = IssuerStatusBanned
	fixture.issuerRepo.mutex.Unlock()

	challenge, err = fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestWalletLogin_RejectsSuspendedIssuer verifies a suspended issuer is locked
out of both fresh logins and refresh of an existing session.
*/
func TestWalletLogin_RejectsSuspendedIssuer(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	fixture.issuerRepo.mutex.Lock()
	fixture.issuerRepo.issuers[session.Issuer.ID].Status = IssuerStatusSuspended
	fixture.issuerRepo.mutex.Unlock()

	challenge, err = fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	_, err = fixture.service.RefreshSession(ctx, session.RefreshToken, testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestWalletLogin_LookupFailureDoesNotProvision verifies an infrastructure
failure during wallet resolution surfaces as an error instead of being
mistaken for a first-time wallet and provisioning a duplicate issuer.
*/
func TestWalletLogin_LookupFailureDoesNotProvision(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	fixture.issuerRepo.walletLookupErr = errors.New("connection reset")

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	_, err = fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.Error(t, err)

	// Only a NOT_FOUND may fall through to provisioning
	assert.Empty(t, fixture.issuerRepo.issuers)
	assert.Empty(t, fixture.notifier.provisioned)
}

/*
TestWalletLogin_SessionCarriesScore verifies the login payload embeds the
issuer's current score and tier, and that a scoring outage degrades to a
profile without a score rather than a failed login.
*/
func TestWalletLogin_SessionCarriesScore(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	first, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	fixture.scores.summaries[first.Issuer.ID] = &ScoreSummary{Total: 42.5, Tier: "silver"}

	challenge, err = fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	second, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)
	require.NotNil(t, second.Issuer.Score)
	assert.Equal(t, 42.5, second.Issuer.Score.Total)
	assert.Equal(t, "silver", second.Issuer.Score.Tier)

	// Scoring going dark must not break login
	fixture.scores.err = errors.New("scoring unavailable")
	profile, err := fixture.service.GetProfile(ctx, first.Issuer.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.Score)
}

/*
TestRefreshSession_RotationAndReplay verifies refresh rotation works once and
that replaying the rotated token fails.
*/
func TestRefreshSession_RotationAndReplay(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	refreshed, err := fixture.service.RefreshSession(ctx, session.RefreshToken, testSecurityContext)
	require.NoError(t, err)
	require.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, session.Issuer.ID, refreshed.Issuer.ID)

	// Replaying the pre-rotation token is rejected
	_, err = fixture.service.RefreshSession(ctx, session.RefreshToken, testSecurityContext)
	require.Error(t, err)
	assert.Equal(t, "Invalid or expired token", apperr.As(err).Message)

	// The successor keeps working
	_, err = fixture.service.RefreshSession(ctx, refreshed.RefreshToken, testSecurityContext)
	require.NoError(t, err)
}

/*
TestLogout_Idempotent verifies logout succeeds for valid, already-revoked
and garbage tokens alike.
*/
func TestLogout_Idempotent(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(ctx, session.RefreshToken, testSecurityContext))
	require.NoError(t, fixture.service.Logout(ctx, session.RefreshToken, testSecurityContext))
	require.NoError(t, fixture.service.Logout(ctx, "garbage", testSecurityContext))

	_, err = fixture.service.RefreshSession(ctx, session.RefreshToken, testSecurityContext)
	require.Error(t, err)
}

/*
TestUpdateProfile_PartialPatch verifies nil fields are left untouched.
*/
func TestUpdateProfile_PartialPatch(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	challenge, err := fixture.service.GenerateNonce(ctx, testAddress)
	require.NoError(t, err)
	session, err := fixture.service.WalletLogin(ctx, fixture.loginInput(t, challenge), testSecurityContext)
	require.NoError(t, err)

	bio := "Building token infrastructure"
	updated, err := fixture.service.UpdateProfile(ctx, session.Issuer.ID, UpdateProfileInput{Bio: &bio})
	require.NoError(t, err)

	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, session.Issuer.DisplayName, updated.DisplayName, "unset fields keep their value")
}
