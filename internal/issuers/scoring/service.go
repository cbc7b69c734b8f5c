// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/veriscore/internal/issuers/auth"
	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/ctxutil"
	"github.com/taibuivan/veriscore/pkg/pagination"
	"github.com/taibuivan/veriscore/pkg/uuid"
)

// githubActivityLookback bounds the enrichment window. The public event
// feed only reaches back 90 days, so a wider window would change nothing.
const githubActivityLookback = 90 * 24 * time.Hour

// # Service

// Service orchestrates score recalculation, incremental social deltas and
// the operator-facing flag and launch operations. All score math lives in
// the Engine; the service's job is gathering inputs and persisting results
// with their audit records.
type Service struct {
	scores   ScoreRepository
	flags    FlagRepository
	launches LaunchRepository
	accounts auth.AccountRepository
	issuers  auth.IssuerRepository
	github   ActivitySource
	engine   *Engine

	now func() time.Time
}

/*
NewService creates a new scoring service.

Parameters:
  - scores: ScoreRepository
  - flags: FlagRepository
  - launches: LaunchRepository
  - accounts: auth.AccountRepository
  - issuers: auth.IssuerRepository
  - github: ActivitySource (nil disables the GitHub enrichment)
  - engine: *Engine

Returns:
  - *Service: Configured service
*/
func NewService(
	scores ScoreRepository,
	flags FlagRepository,
	launches LaunchRepository,
	accounts auth.AccountRepository,
	issuers auth.IssuerRepository,
	github ActivitySource,
	engine *Engine,
) *Service {
	return &Service{
		scores:   scores,
		flags:    flags,
		launches: launches,
		accounts: accounts,
		issuers:  issuers,
		github:   github,
		engine:   engine,
		now:      time.Now,
	}
}

// # Recalculation

/*
Recalculate rebuilds the issuer's full score from current inputs.

Description: Loads the issuer, their flags, social links, GitHub activity
and launch stats, runs the engine, and persists the new aggregate together
with a per-category audit record in one transaction.

Parameters:
  - context: context.Context
  - issuerID: string
  - source: HistorySource (who triggered the recalculation)

Returns:
  - *Score: Persisted aggregate
  - error: NotFound if the issuer does not exist, or persistence failures
*/
func (service *Service) Recalculate(context context.Context, issuerID string, source HistorySource) (*Score, error) {
	snapshot, err := service.buildSnapshot(context, issuerID)
	if err != nil {
		return nil, err
	}

	now := service.now()
	result := service.engine.Calculate(*snapshot, now)

	score := &Score{
		IssuerID:       issuerID,
		Staking:        result.Staking,
		WalletBehavior: result.WalletBehavior,
		Social:         result.Social,
		KYC:            result.KYC,
		LaunchHistory:  result.LaunchHistory,
		Total:          result.Total,
		Tier:           result.Tier,
	}

	history := service.fullHistory(score, source, now)
	if err := service.scores.SaveRecalculation(context, score, history); err != nil {
		return nil, fmt.Errorf("scoring_service_recalculate_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "score_recalculated",
		slog.String("issuer_id", issuerID),
		slog.Float64("total", score.Total),
		slog.String("tier", string(score.Tier)),
		slog.String("source", string(source)),
	)
	return score, nil
}

// buildSnapshot gathers every scoring input for the issuer. A GitHub
// enrichment failure is logged and scored as zero activity, never fatal.
func (service *Service) buildSnapshot(context context.Context, issuerID string) (*Snapshot, error) {
	issuer, err := service.issuers.FindByID(context, issuerID)
	if err != nil {
		return nil, err
	}

	flags, err := service.flags.ListByIssuer(context, issuerID)
	if err != nil {
		return nil, fmt.Errorf("scoring_service_list_flags_failed: %w", err)
	}

	socials, err := service.accounts.ListSocials(context, issuerID)
	if err != nil {
		return nil, fmt.Errorf("scoring_service_list_socials_failed: %w", err)
	}

	since := service.now().Add(-service.engine.Policy().LaunchLookback)
	launches, err := service.launches.Stats(context, issuerID, since)
	if err != nil {
		return nil, fmt.Errorf("scoring_service_launch_stats_failed: %w", err)
	}

	return &Snapshot{
		StakedAmount:     issuer.StakedAmount,
		Flags:            flags,
		Socials:          socials,
		GithubActiveDays: service.githubActiveDays(context, socials),
		KYCStatus:        issuer.KYCStatus,
		KYCApprovedAt:    issuer.KYCApprovedAt,
		KYCExpiresAt:     issuer.KYCExpiresAt,
		Launches:         launches,
	}, nil
}

// githubActiveDays resolves the linked GitHub username, if any, and asks
// the activity source for distinct push days.
func (service *Service) githubActiveDays(context context.Context, socials []auth.SocialAccount) int {
	if service.github == nil {
		return 0
	}

	username := ""
	for _, social := range socials {
		if social.Provider == auth.ProviderGithub && social.Username != "" {
			username = social.Username
			break
		}
	}
	if username == "" {
		return 0
	}

	days, err := service.github.DistinctActiveDays(context, username, service.now().Add(-githubActivityLookback))
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "github_activity_unavailable",
			slog.String("username", username),
			slog.Any("cause", err),
		)
		return 0
	}
	return days
}

// fullHistory builds the audit record for a full recalculation, one entry
// per category.
func (service *Service) fullHistory(score *Score, source HistorySource, now time.Time) *ScoreHistory {
	entries := make([]HistoryEntry, 0, len(Categories))
	for _, category := range Categories {
		raw := score.Category(category)
		entries = append(entries, HistoryEntry{
			Category: category,
			Raw:      raw,
			Weighted: service.engine.Weighted(category, raw),
		})
	}

	return &ScoreHistory{
		ID:         uuid.New(),
		IssuerID:   score.IssuerID,
		Entries:    entries,
		Total:      score.Total,
		Tier:       score.Tier,
		Source:     source,
		RecordedAt: now,
	}
}

// # Social Deltas

/*
AddSocialScore applies the link reward for a newly linked provider.

Description: Uses the repository's atomic increment so concurrent link
events compose instead of overwriting each other. If no score row exists
yet the issuer gets a full recalculation instead.

Parameters:
  - context: context.Context
  - issuerID: string
  - provider: string

Returns:
  - *Score: Updated aggregate
  - error: Persistence failures
*/
func (service *Service) AddSocialScore(context context.Context, issuerID string, provider string) (*Score, error) {
	reward := service.engine.Policy().LinkReward(provider)
	note := "social link: " + strings.ToLower(provider)
	return service.applySocialDelta(context, issuerID, reward, note)
}

/*
RemoveSocialScore applies the unlink penalty for a removed provider.

Description: The penalty deliberately exceeds the link reward so that
link/unlink churn farming is a net loss.

Parameters:
  - context: context.Context
  - issuerID: string
  - provider: string

Returns:
  - *Score: Updated aggregate
  - error: Persistence failures
*/
func (service *Service) RemoveSocialScore(context context.Context, issuerID string, provider string) (*Score, error) {
	penalty := service.engine.Policy().UnlinkPenalty(provider)
	note := "social unlink: " + strings.ToLower(provider)
	return service.applySocialDelta(context, issuerID, -penalty, note)
}

func (service *Service) applySocialDelta(context context.Context, issuerID string, delta float64, note string) (*Score, error) {
	now := service.now()

	recompute := func(score *Score) {
		score.Social = Round2(score.Social)
		score.Total = service.engine.Total(Result{
			Staking:        score.Staking,
			WalletBehavior: score.WalletBehavior,
			Social:         score.Social,
			KYC:            score.KYC,
			LaunchHistory:  score.LaunchHistory,
		})
		score.Tier = service.engine.TierFor(score.Total)
	}

	history := func(score *Score) *ScoreHistory {
		return &ScoreHistory{
			ID:       uuid.New(),
			IssuerID: issuerID,
			Entries: []HistoryEntry{{
				Category: CategorySocial,
				Raw:      score.Social,
				Weighted: service.engine.Weighted(CategorySocial, score.Social),
				Note:     note,
			}},
			Total:      score.Total,
			Tier:       score.Tier,
			Source:     SourceSystem,
			RecordedAt: now,
		}
	}

	score, err := service.scores.AddSocialDelta(context, issuerID, delta, service.engine.Policy().SocialMax, recompute, history)
	if err != nil {
		appError := apperr.As(err)
		if appError != nil && appError.Code == "NOT_FOUND" {
			// First scoring event for this issuer; seed the row instead.
			return service.Recalculate(context, issuerID, SourceSystem)
		}
		return nil, fmt.Errorf("scoring_service_social_delta_failed: %w", err)
	}
	return score, nil
}

// # Queries

/*
GetScore returns the issuer's current score aggregate.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - *Score: Current aggregate
  - error: NotFound if the issuer has never been scored
*/
func (service *Service) GetScore(context context.Context, issuerID string) (*Score, error) {
	return service.scores.Get(context, issuerID)
}

/*
GetHistory returns the issuer's audit trail, newest first.

Parameters:
  - context: context.Context
  - issuerID: string
  - params: pagination.Params

Returns:
  - []ScoreHistory: One page of records
  - int: Total record count
  - error: Query failures
*/
func (service *Service) GetHistory(context context.Context, issuerID string, params pagination.Params) ([]ScoreHistory, int, error) {
	return service.scores.ListHistory(context, issuerID, params)
}

// # Operator Operations

// FlagInput carries an operator's behavior flag.
type FlagInput struct {
	Type     FlagType
	Severity FlagSeverity
	Note     string
}

// Validate checks the flag's enum fields.
func (input FlagInput) Validate() error {
	validType := false
	for _, flagType := range FlagTypes {
		if input.Type == flagType {
			validType = true
			break
		}
	}
	if !validType {
		return apperr.ValidationError("Unsupported flag type")
	}

	switch input.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return nil
	default:
		return apperr.ValidationError("Unsupported flag severity")
	}
}

/*
FlagIssuer records a behavior flag and recalculates the issuer's score.

Parameters:
  - context: context.Context
  - issuerID: string
  - input: FlagInput

Returns:
  - *BehaviorFlag: Persisted flag
  - *Score: Recalculated aggregate
  - error: Validation, NotFound or persistence failures
*/
func (service *Service) FlagIssuer(context context.Context, issuerID string, input FlagInput) (*BehaviorFlag, *Score, error) {
	if err := input.Validate(); err != nil {
		return nil, nil, err
	}
	if _, err := service.issuers.FindByID(context, issuerID); err != nil {
		return nil, nil, err
	}

	flag := &BehaviorFlag{
		ID:        uuid.New(),
		IssuerID:  issuerID,
		Type:      input.Type,
		Severity:  input.Severity,
		Note:      input.Note,
		FlaggedAt: service.now(),
	}
	if err := service.flags.Create(context, flag); err != nil {
		return nil, nil, fmt.Errorf("scoring_service_create_flag_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "issuer_flagged",
		slog.String("issuer_id", issuerID),
		slog.String("type", string(flag.Type)),
		slog.Int("severity", int(flag.Severity)),
	)

	score, err := service.Recalculate(context, issuerID, SourceManual)
	if err != nil {
		return nil, nil, err
	}
	return flag, score, nil
}

// LaunchInput carries an operator's launch record.
type LaunchInput struct {
	Name       string
	Successful bool
	LaunchedAt time.Time
}

/*
RecordLaunch stores a launch outcome and recalculates the issuer's score.

Parameters:
  - context: context.Context
  - issuerID: string
  - input: LaunchInput

Returns:
  - *Launch: Persisted record
  - *Score: Recalculated aggregate
  - error: Validation, NotFound or persistence failures
*/
func (service *Service) RecordLaunch(context context.Context, issuerID string, input LaunchInput) (*Launch, *Score, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, nil, apperr.ValidationError("Launch name is required")
	}
	if _, err := service.issuers.FindByID(context, issuerID); err != nil {
		return nil, nil, err
	}

	launch := &Launch{
		ID:         uuid.New(),
		IssuerID:   issuerID,
		Name:       strings.TrimSpace(input.Name),
		Successful: input.Successful,
		LaunchedAt: input.LaunchedAt,
	}
	if launch.LaunchedAt.IsZero() {
		launch.LaunchedAt = service.now()
	}
	if err := service.launches.Create(context, launch); err != nil {
		return nil, nil, fmt.Errorf("scoring_service_create_launch_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "launch_recorded",
		slog.String("issuer_id", issuerID),
		slog.String("name", launch.Name),
		slog.Bool("successful", launch.Successful),
	)

	score, err := service.Recalculate(context, issuerID, SourceManual)
	if err != nil {
		return nil, nil, err
	}
	return launch, score, nil
}

// # Auth Notifier

// Notifier adapts the scoring service to the auth package's notification
// hooks. Every hook absorbs its own errors: a scoring hiccup must never
// fail a login or a social link.
type Notifier struct {
	service *Service
}

// NewNotifier wraps the service for use as an auth-side notifier.
func NewNotifier(service *Service) *Notifier {
	return &Notifier{service: service}
}

// IssuerProvisioned seeds the initial score row for a new issuer.
func (notifier *Notifier) IssuerProvisioned(context context.Context, issuerID string) {
	if _, err := notifier.service.Recalculate(context, issuerID, SourceSystem); err != nil {
		notifier.logDropped(context, "issuer_provisioned", issuerID, err)
	}
}

// SocialLinked applies the link reward for the provider.
func (notifier *Notifier) SocialLinked(context context.Context, issuerID string, provider string, _ time.Time) {
	if _, err := notifier.service.AddSocialScore(context, issuerID, provider); err != nil {
		notifier.logDropped(context, "social_linked", issuerID, err)
	}
}

// SocialUnlinked applies the unlink penalty for the provider.
func (notifier *Notifier) SocialUnlinked(context context.Context, issuerID string, provider string) {
	if _, err := notifier.service.RemoveSocialScore(context, issuerID, provider); err != nil {
		notifier.logDropped(context, "social_unlinked", issuerID, err)
	}
}

// CurrentScore satisfies the auth package's score reader so login responses
// and profile projections can carry the live total and tier.
func (notifier *Notifier) CurrentScore(context context.Context, issuerID string) (*auth.ScoreSummary, error) {
	score, err := notifier.service.GetScore(context, issuerID)
	if err != nil {
		return nil, err
	}
	return &auth.ScoreSummary{Total: score.Total, Tier: string(score.Tier)}, nil
}

func (notifier *Notifier) logDropped(context context.Context, event string, issuerID string, err error) {
	ctxutil.GetLogger(context).ErrorContext(context, "score_update_dropped",
		slog.String("event", event),
		slog.String("issuer_id", issuerID),
		slog.Any("cause", err),
	)
}

var (
	_ auth.ScoreNotifier = (*Notifier)(nil)
	_ auth.ScoreReader   = (*Notifier)(nil)
)
