// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"math"
	"time"

	"github.com/taibuivan/veriscore/internal/issuers/auth"
)

// # Pure Calculators

// Engine computes category scores from issuer state snapshots. Every method
// is a pure function of its inputs and the policy; the explicit now
// parameter keeps results reproducible.
type Engine struct {
	policy Policy
}

// NewEngine constructs an [Engine] bound to a policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy exposes the engine's active policy.
func (engine *Engine) Policy() Policy { return engine.policy }

// Snapshot is the issuer state a full recalculation consumes.
type Snapshot struct {
	StakedAmount     float64
	Flags            []BehaviorFlag
	Socials          []auth.SocialAccount
	GithubActiveDays int
	KYCStatus        auth.KYCStatus
	KYCApprovedAt    *time.Time
	KYCExpiresAt     *time.Time
	Launches         LaunchStats
}

// Result is the outcome of a full calculation.
type Result struct {
	Staking        float64
	WalletBehavior float64
	Social         float64
	KYC            float64
	LaunchHistory  float64
	Total          float64
	Tier           Tier
}

// Calculate runs every category calculator over the snapshot and composes
// the total and tier under the active profile.
func (engine *Engine) Calculate(snapshot Snapshot, now time.Time) Result {
	result := Result{
		Staking:        engine.StakingScore(snapshot.StakedAmount),
		WalletBehavior: engine.BehaviorScore(snapshot.Flags, now),
		Social:         engine.SocialScore(snapshot.Socials, snapshot.GithubActiveDays, now),
		KYC:            engine.KYCScore(snapshot.KYCStatus, snapshot.KYCApprovedAt, snapshot.KYCExpiresAt, now),
		LaunchHistory:  engine.LaunchScore(snapshot.Launches),
	}
	result.Total = engine.Total(result)
	result.Tier = engine.TierFor(result.Total)
	return result
}

/*
StakingScore scores the issuer's staked amount.

Description: min(log10(staked+1) * multiplier, max) — logarithmic
diminishing returns so large stakers do not dominate linearly.
*/
func (engine *Engine) StakingScore(stakedAmount float64) float64 {
	if stakedAmount <= 0 {
		return 0
	}
	score := math.Log10(stakedAmount+1) * engine.policy.StakingMultiplier
	return Round2(math.Min(score, engine.policy.StakingMax))
}

/*
BehaviorScore scores wallet behavior from moderation flags.

Description: Starts at the full baseline. Flags are grouped by severity;
each group subtracts (severity/5 * maxPoints) * recencyMultiplier *
log2(count+1). The recency multiplier decays linearly from the oldest flag
in the group down to a floor, so flags fade but never fully expire. The
result is floored at 0.
*/
func (engine *Engine) BehaviorScore(flags []BehaviorFlag, now time.Time) float64 {
	if len(flags) == 0 {
		return Round2(engine.policy.BehaviorBaseline)
	}

	type group struct {
		count  int
		oldest time.Time
	}
	groups := make(map[FlagSeverity]*group)
	for _, flag := range flags {
		g, found := groups[flag.Severity]
		if !found {
			groups[flag.Severity] = &group{count: 1, oldest: flag.FlaggedAt}
			continue
		}
		g.count++
		if flag.FlaggedAt.Before(g.oldest) {
			g.oldest = flag.FlaggedAt
		}
	}

	penalty := 0.0
	for severity, g := range groups {
		days := now.Sub(g.oldest).Hours() / 24
		recency := math.Max(engine.policy.BehaviorMinRecencyMultiple, 1-days/engine.policy.BehaviorDecayDays)
		diminishing := math.Log2(float64(g.count) + 1)
		penalty += (float64(severity) / 5 * engine.policy.BehaviorMaxPointsPerSev) * recency * diminishing
	}

	return Round2(math.Max(0, engine.policy.BehaviorBaseline-penalty))
}

/*
SocialScore scores linked social accounts.

Description: Sums per-provider weights scaled by the base fraction, adds an
age bonus per link older than the bonus threshold (doubled for links older
than a full year), adds the GitHub activity bonus, and caps at the category
max.
*/
func (engine *Engine) SocialScore(socials []auth.SocialAccount, githubActiveDays int, now time.Time) float64 {
	score := 0.0
	for _, social := range socials {
		score += engine.policy.SocialProviderWeights[social.Provider] * engine.policy.SocialBaseFraction

		ageDays := int(now.Sub(social.LinkedAt).Hours() / 24)
		if ageDays > engine.policy.SocialAgeBonusDays {
			score += engine.policy.SocialAgeBonus
		}
		if ageDays > engine.policy.SocialAgeYearDays {
			score += engine.policy.SocialAgeBonus
		}
	}

	githubBonus := math.Min(float64(githubActiveDays)*engine.policy.GithubBonusPerActiveDay, engine.policy.GithubBonusMax)
	score += githubBonus

	return Round2(math.Min(score, engine.policy.SocialMax))
}

/*
KYCScore scores the identity-verification state.

Description: 0 unless approved and unexpired. Approved and unexpired yields
the full baseline, reduced by the warning percentage when expiry falls
inside the warning window so issuers re-verify before lapse.
*/
func (engine *Engine) KYCScore(status auth.KYCStatus, approvedAt *time.Time, expiresAt *time.Time, now time.Time) float64 {
	if status != auth.KYCStatusApproved || approvedAt == nil {
		return 0
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return 0
	}

	score := engine.policy.KYCBaseline
	if expiresAt != nil && expiresAt.Sub(now) <= engine.policy.KYCWarningWindow {
		score *= 1 - engine.policy.KYCWarningPct
	}
	return Round2(score)
}

/*
LaunchScore scores the issuer's launch track record.

Description: successRate * categoryMax, plus a flat volume bonus once the
successful-launch count meets the minimum threshold, capped at the max.
*/
func (engine *Engine) LaunchScore(stats LaunchStats) float64 {
	score := stats.SuccessRate() * engine.policy.LaunchMax
	if stats.Successful >= engine.policy.LaunchVolumeMin {
		score += engine.policy.LaunchVolumeBonus
	}
	return Round2(math.Min(score, engine.policy.LaunchMax))
}

// Total composes category scores under the active profile.
func (engine *Engine) Total(result Result) float64 {
	if engine.policy.Profile == ProfileSimple {
		return Round2(result.Staking + result.WalletBehavior + result.Social + result.KYC + result.LaunchHistory)
	}

	total := result.Staking*engine.policy.Weights[CategoryStaking] +
		result.WalletBehavior*engine.policy.Weights[CategoryWalletBehavior] +
		result.Social*engine.policy.Weights[CategorySocial] +
		result.KYC*engine.policy.Weights[CategoryKYC] +
		result.LaunchHistory*engine.policy.Weights[CategoryLaunchHistory]
	return Round2(total)
}

// TierFor walks the threshold ladder, highest cutoff first. The ladder
// floor-starts at 0 so exactly one entry always matches.
func (engine *Engine) TierFor(total float64) Tier {
	for _, threshold := range engine.policy.Tiers {
		if total >= threshold.Min {
			return threshold.Tier
		}
	}
	return TierNewIssuer
}

// Weighted returns the contribution of a raw category value to the total
// under the active profile. Used to fill history entries.
func (engine *Engine) Weighted(category Category, raw float64) float64 {
	if engine.policy.Profile == ProfileSimple {
		return Round2(raw)
	}
	return Round2(raw * engine.policy.Weights[category])
}

// Round2 rounds to two decimal places, the precision every stored score and
// audit entry uses.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
