// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veriscore/internal/issuers/auth"
	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/pkg/pagination"
)

// # In-Memory Fakes

type fakeScoreRepo struct {
	mutex     sync.Mutex
	scores    map[string]*Score
	histories map[string][]ScoreHistory
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{
		scores:    map[string]*Score{},
		histories: map[string][]ScoreHistory{},
	}
}

func (repo *fakeScoreRepo) Get(_ context.Context, issuerID string) (*Score, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	score, found := repo.scores[issuerID]
	if !found {
		return nil, apperr.NotFound("Score")
	}
	clone := *score
	return &clone, nil
}

func (repo *fakeScoreRepo) SaveRecalculation(_ context.Context, score *Score, history *ScoreHistory) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	clone := *score
	repo.scores[score.IssuerID] = &clone
	repo.appendHistory(history)
	return nil
}

func (repo *fakeScoreRepo) AddSocialDelta(_ context.Context, issuerID string, delta float64, maximum float64, recompute func(*Score), history func(*Score) *ScoreHistory) (*Score, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	score, found := repo.scores[issuerID]
	if !found {
		return nil, apperr.NotFound("Score")
	}

	score.Social += delta
	if score.Social < 0 {
		score.Social = 0
	}
	if score.Social > maximum {
		score.Social = maximum
	}
	recompute(score)
	repo.appendHistory(history(score))

	clone := *score
	return &clone, nil
}

func (repo *fakeScoreRepo) ListHistory(_ context.Context, issuerID string, params pagination.Params) ([]ScoreHistory, int, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	records := repo.histories[issuerID]
	return append([]ScoreHistory{}, records...), len(records), nil
}

// appendHistory mirrors the per-issuer version sequence; callers hold the mutex.
func (repo *fakeScoreRepo) appendHistory(history *ScoreHistory) {
	clone := *history
	clone.Version = len(repo.histories[history.IssuerID]) + 1
	repo.histories[history.IssuerID] = append(repo.histories[history.IssuerID], clone)
}

type fakeFlagRepo struct {
	mutex sync.Mutex
	flags map[string][]BehaviorFlag
}

func newFakeFlagRepo() *fakeFlagRepo {
	return &fakeFlagRepo{flags: map[string][]BehaviorFlag{}}
}

func (repo *fakeFlagRepo) Create(_ context.Context, flag *BehaviorFlag) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	repo.flags[flag.IssuerID] = append(repo.flags[flag.IssuerID], *flag)
	return nil
}

func (repo *fakeFlagRepo) ListByIssuer(_ context.Context, issuerID string) ([]BehaviorFlag, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	return append([]BehaviorFlag{}, repo.flags[issuerID]...), nil
}

type fakeLaunchRepo struct {
	mutex    sync.Mutex
	launches []Launch
}

func (repo *fakeLaunchRepo) Create(_ context.Context, launch *Launch) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	repo.launches = append(repo.launches, *launch)
	return nil
}

func (repo *fakeLaunchRepo) Stats(_ context.Context, issuerID string, since time.Time) (LaunchStats, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	stats := LaunchStats{}
	for _, launch := range repo.launches {
		if launch.IssuerID != issuerID || launch.LaunchedAt.Before(since) {
			continue
		}
		stats.Total++
		if launch.Successful {
			stats.Successful++
		}
	}
	return stats, nil
}

// stubIssuerRepo serves FindByID from a map; the scoring service never
// touches the other lookups.
type stubIssuerRepo struct {
	issuers map[string]*auth.Issuer
}

func (repo *stubIssuerRepo) FindByID(_ context.Context, id string) (*auth.Issuer, error) {
	issuer, found := repo.issuers[id]
	if !found {
		return nil, apperr.NotFound("Issuer")
	}
	clone := *issuer
	return &clone, nil
}

func (repo *stubIssuerRepo) FindByWalletAddress(context.Context, string) (*auth.Issuer, error) {
	return nil, apperr.NotFound("Issuer for this wallet")
}

func (repo *stubIssuerRepo) FindByEmail(context.Context, string) (*auth.Issuer, error) {
	return nil, apperr.NotFound("Issuer with this email")
}

func (repo *stubIssuerRepo) Create(context.Context, *auth.Issuer) error { return nil }
func (repo *stubIssuerRepo) Update(context.Context, *auth.Issuer) error { return nil }

func (repo *stubIssuerRepo) RecordLogin(context.Context, string, time.Time, string, string) error {
	return nil
}

// stubAccountRepo serves ListSocials from a map; nothing else is reachable
// from the scoring service.
type stubAccountRepo struct {
	socials map[string][]auth.SocialAccount
}

func (repo *stubAccountRepo) ListSocials(_ context.Context, issuerID string) ([]auth.SocialAccount, error) {
	return append([]auth.SocialAccount{}, repo.socials[issuerID]...), nil
}

func (repo *stubAccountRepo) FindWalletByAddress(context.Context, string) (*auth.WalletAccount, error) {
	return nil, apperr.NotFound("Wallet")
}

func (repo *stubAccountRepo) ListWallets(context.Context, string) ([]auth.WalletAccount, error) {
	return nil, nil
}

func (repo *stubAccountRepo) CreateWallet(context.Context, *auth.WalletAccount) error { return nil }

func (repo *stubAccountRepo) TouchWallet(context.Context, string, time.Time) error { return nil }

func (repo *stubAccountRepo) FindSocial(context.Context, string, string) (*auth.SocialAccount, error) {
	return nil, apperr.NotFound("Social account")
}

func (repo *stubAccountRepo) CreateSocial(context.Context, *auth.SocialAccount) error { return nil }

func (repo *stubAccountRepo) DeleteSocial(context.Context, string, string) (*auth.SocialAccount, error) {
	return nil, apperr.NotFound("Social link")
}

func (repo *stubAccountRepo) TouchSocial(context.Context, string, time.Time) error { return nil }

type fixedActivity struct{ days int }

func (activity fixedActivity) DistinctActiveDays(context.Context, string, time.Time) (int, error) {
	return activity.days, nil
}

type failingActivity struct{}

func (failingActivity) DistinctActiveDays(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("github unreachable")
}

// # Fixture

const testIssuerID = "01920000-0000-7000-8000-0000000000aa"

type scoringFixture struct {
	service  *Service
	scores   *fakeScoreRepo
	flags    *fakeFlagRepo
	launches *fakeLaunchRepo
	issuers  *stubIssuerRepo
	accounts *stubAccountRepo
}

func newScoringFixture(t *testing.T, github ActivitySource) *scoringFixture {
	t.Helper()

	issuers := &stubIssuerRepo{issuers: map[string]*auth.Issuer{
		testIssuerID: {
			ID:           testIssuerID,
			Handle:       "acme-labs",
			StakedAmount: 999,
			Status:       auth.IssuerStatusActive,
			KYCStatus:    auth.KYCStatusNone,
		},
	}}
	accounts := &stubAccountRepo{socials: map[string][]auth.SocialAccount{}}

	fixture := &scoringFixture{
		scores:   newFakeScoreRepo(),
		flags:    newFakeFlagRepo(),
		launches: &fakeLaunchRepo{},
		issuers:  issuers,
		accounts: accounts,
	}
	fixture.service = NewService(
		fixture.scores,
		fixture.flags,
		fixture.launches,
		accounts,
		issuers,
		github,
		NewEngine(DefaultPolicy(ProfileWeighted)),
	)
	fixture.service.now = func() time.Time { return testNow }
	return fixture
}

// requireAuditMatches asserts the latest audit record mirrors the persisted
// aggregate. Every mutation must leave exactly this trail.
func requireAuditMatches(t *testing.T, fixture *scoringFixture, wantRecords int) ScoreHistory {
	t.Helper()

	records, total, err := fixture.scores.ListHistory(context.Background(), testIssuerID, pagination.Params{Page: 1, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, wantRecords, total)

	latest := records[len(records)-1]
	score, err := fixture.scores.Get(context.Background(), testIssuerID)
	require.NoError(t, err)
	require.Equal(t, score.Total, latest.Total)
	require.Equal(t, score.Tier, latest.Tier)
	require.Equal(t, wantRecords, latest.Version)
	return latest
}

// # Tests

func TestRecalculate_PersistsScoreAndAudit(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	score, err := fixture.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)

	// Stake of 999 and clean behavior: staking 60, behavior 100, rest 0.
	assert.Equal(t, 60.0, score.Staking)
	assert.Equal(t, 100.0, score.WalletBehavior)
	assert.Equal(t, 0.0, score.Social)
	assert.Equal(t, 0.0, score.KYC)
	assert.Equal(t, 0.0, score.LaunchHistory)
	assert.Equal(t, 35.0, score.Total)
	assert.Equal(t, TierBronze, score.Tier)

	latest := requireAuditMatches(t, fixture, 1)
	assert.Equal(t, SourceSystem, latest.Source)
	assert.Len(t, latest.Entries, len(Categories))

	// A second run appends a new version instead of rewriting history.
	_, err = fixture.service.Recalculate(context.Background(), testIssuerID, SourceManual)
	require.NoError(t, err)
	latest = requireAuditMatches(t, fixture, 2)
	assert.Equal(t, SourceManual, latest.Source)
}

func TestRecalculate_UnknownIssuer(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	_, err := fixture.service.Recalculate(context.Background(), "missing", SourceSystem)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestAddSocialScore_SeedsMissingRow(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	// No score row yet: the delta path falls back to a full recalculation.
	score, err := fixture.service.AddSocialScore(context.Background(), testIssuerID, auth.ProviderGithub)
	require.NoError(t, err)
	require.NotNil(t, score)

	latest := requireAuditMatches(t, fixture, 1)
	assert.Equal(t, SourceSystem, latest.Source)
	assert.Len(t, latest.Entries, len(Categories))
}

func TestSocialDelta_LinkUnlinkAsymmetry(t *testing.T) {
	fixture := newScoringFixture(t, nil)
	_, err := fixture.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)

	linked, err := fixture.service.AddSocialScore(context.Background(), testIssuerID, auth.ProviderGithub)
	require.NoError(t, err)
	assert.Equal(t, 16.0, linked.Social)

	linkRecord := requireAuditMatches(t, fixture, 2)
	require.Len(t, linkRecord.Entries, 1)
	assert.Equal(t, CategorySocial, linkRecord.Entries[0].Category)
	assert.Equal(t, "social link: github", linkRecord.Entries[0].Note)

	// The unlink penalty is 1.5x the reward, clamped at the zero floor.
	unlinked, err := fixture.service.RemoveSocialScore(context.Background(), testIssuerID, auth.ProviderGithub)
	require.NoError(t, err)
	assert.Equal(t, 0.0, unlinked.Social)
	assert.Less(t, unlinked.Total, linked.Total)

	unlinkRecord := requireAuditMatches(t, fixture, 3)
	require.Len(t, unlinkRecord.Entries, 1)
	assert.Equal(t, "social unlink: github", unlinkRecord.Entries[0].Note)
}

func TestSocialDelta_CappedAtCategoryMax(t *testing.T) {
	fixture := newScoringFixture(t, nil)
	_, err := fixture.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)

	// Park the category just under its ceiling; the next reward must not
	// push past it.
	fixture.scores.mutex.Lock()
	fixture.scores.scores[testIssuerID].Social = 95
	fixture.scores.mutex.Unlock()

	capped, err := fixture.service.AddSocialScore(context.Background(), testIssuerID, auth.ProviderGithub)
	require.NoError(t, err)
	assert.Equal(t, 100.0, capped.Social)
}

func TestRecalculate_GithubFailureScoresZeroActivity(t *testing.T) {
	socials := []auth.SocialAccount{{
		Provider: auth.ProviderGithub,
		Username: "acmefounder",
		LinkedAt: testNow,
	}}

	healthy := newScoringFixture(t, fixedActivity{days: 20})
	healthy.accounts.socials[testIssuerID] = socials
	withBonus, err := healthy.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)

	degraded := newScoringFixture(t, failingActivity{})
	degraded.accounts.socials[testIssuerID] = socials
	withoutBonus, err := degraded.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)

	// An unreachable GitHub degrades to zero activity, never to a failure.
	assert.Equal(t, 26.0, withBonus.Social)
	assert.Equal(t, 16.0, withoutBonus.Social)
}

func TestFlagIssuer(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	_, _, err := fixture.service.FlagIssuer(context.Background(), testIssuerID, FlagInput{
		Type:     "gossip",
		Severity: SeverityLow,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	_, _, err = fixture.service.FlagIssuer(context.Background(), testIssuerID, FlagInput{
		Type:     FlagScam,
		Severity: FlagSeverity(2),
	})
	require.Error(t, err)

	flag, score, err := fixture.service.FlagIssuer(context.Background(), testIssuerID, FlagInput{
		Type:     FlagScam,
		Severity: SeverityHigh,
		Note:     "rug pull reports",
	})
	require.NoError(t, err)
	assert.Equal(t, testIssuerID, flag.IssuerID)
	assert.Equal(t, 60.0, score.WalletBehavior)

	latest := requireAuditMatches(t, fixture, 1)
	assert.Equal(t, SourceManual, latest.Source)
}

func TestRecordLaunch(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	_, _, err := fixture.service.RecordLaunch(context.Background(), testIssuerID, LaunchInput{Name: "  "})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	launch, score, err := fixture.service.RecordLaunch(context.Background(), testIssuerID, LaunchInput{
		Name:       "ACME Token",
		Successful: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ACME Token", launch.Name)
	assert.Equal(t, testNow, launch.LaunchedAt)
	assert.Equal(t, 100.0, score.LaunchHistory)

	requireAuditMatches(t, fixture, 1)
}

func TestRecordLaunch_LookbackWindow(t *testing.T) {
	fixture := newScoringFixture(t, nil)

	// A launch outside the lookback window contributes nothing.
	stale := &Launch{
		ID:         "stale",
		IssuerID:   testIssuerID,
		Name:       "Old Token",
		Successful: true,
		LaunchedAt: testNow.AddDate(-1, 0, 0),
	}
	require.NoError(t, fixture.launches.Create(context.Background(), stale))

	score, err := fixture.service.Recalculate(context.Background(), testIssuerID, SourceSystem)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.LaunchHistory)
}

func TestNotifier_AbsorbsFailures(t *testing.T) {
	fixture := newScoringFixture(t, nil)
	notifier := NewNotifier(fixture.service)

	// Unknown issuer: the hook logs and drops, callers never see an error.
	notifier.IssuerProvisioned(context.Background(), "missing")
	_, err := fixture.scores.Get(context.Background(), "missing")
	require.Error(t, err)

	notifier.IssuerProvisioned(context.Background(), testIssuerID)
	score, err := fixture.scores.Get(context.Background(), testIssuerID)
	require.NoError(t, err)

	notifier.SocialLinked(context.Background(), testIssuerID, auth.ProviderGoogle, testNow)
	updated, err := fixture.scores.Get(context.Background(), testIssuerID)
	require.NoError(t, err)
	assert.Greater(t, updated.Social, score.Social)

	notifier.SocialUnlinked(context.Background(), testIssuerID, auth.ProviderGoogle)
	final, err := fixture.scores.Get(context.Background(), testIssuerID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, final.Social)

	requireAuditMatches(t, fixture, 3)
}
