// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"fmt"
	"time"
)

// # Scoring Policy

// Profile selects how category scores compose into a total. The two
// profiles are mutually exclusive configurations, never mixed.
type Profile string

const (
	// ProfileWeighted multiplies each category by its configured weight.
	ProfileWeighted Profile = "weighted"
	// ProfileSimple sums the raw category scores directly.
	ProfileSimple Profile = "simple"
)

// TierThreshold maps a minimum total score to a tier label.
type TierThreshold struct {
	Min  float64
	Tier Tier
}

// Policy is the full scoring configuration, constructed once at startup and
// passed by reference into the engine. Calculators never read ambient
// config.
type Policy struct {
	Profile Profile

	// Weights apply per category under [ProfileWeighted]. They should sum
	// to 1 so the weighted total stays on the 0-100 scale.
	Weights map[Category]float64

	// Staking: min(log10(staked+1) * Multiplier, Max).
	StakingMultiplier float64
	StakingMax        float64

	// Wallet behavior: Baseline minus per-severity-group penalties.
	BehaviorBaseline           float64
	BehaviorMaxPointsPerSev    float64
	BehaviorDecayDays          float64
	BehaviorMinRecencyMultiple float64

	// Social: provider weights scaled by BaseFraction plus age bonuses.
	// The bonus pays once past AgeBonusDays and again past AgeYearDays
	// (links older than a full year).
	SocialProviderWeights map[string]float64
	SocialBaseFraction    float64
	SocialAgeBonus        float64
	SocialAgeBonusDays    int
	SocialAgeYearDays     int
	SocialMax             float64
	SocialUnlinkPenalty   float64 // multiplier applied to the link reward

	// GitHub enrichment: bonus per distinct active day, capped.
	GithubBonusPerActiveDay float64
	GithubBonusMax          float64

	// KYC: full baseline when approved and unexpired; percentage penalty
	// inside the expiry warning window.
	KYCBaseline      float64
	KYCWarningWindow time.Duration
	KYCWarningPct    float64

	// Launch history: successRate * Max plus a volume bonus.
	LaunchMax         float64
	LaunchVolumeBonus float64
	LaunchVolumeMin   int
	LaunchLookback    time.Duration

	// Tiers is the threshold ladder, highest cutoff first. It must be
	// contiguous and floor-start at 0 so exactly one tier always matches.
	Tiers []TierThreshold
}

// DefaultPolicy returns the canonical production policy.
func DefaultPolicy(profile Profile) Policy {
	if profile != ProfileSimple {
		profile = ProfileWeighted
	}
	return Policy{
		Profile: profile,

		Weights: map[Category]float64{
			CategoryStaking:        0.25,
			CategoryWalletBehavior: 0.20,
			CategorySocial:         0.25,
			CategoryKYC:            0.15,
			CategoryLaunchHistory:  0.15,
		},

		StakingMultiplier: 20,
		StakingMax:        100,

		BehaviorBaseline:           100,
		BehaviorMaxPointsPerSev:    40,
		BehaviorDecayDays:          365,
		BehaviorMinRecencyMultiple: 0.2,

		SocialProviderWeights: map[string]float64{
			"google":   10,
			"x":        15,
			"github":   20,
			"linkedin": 10,
			"telegram": 5,
		},
		SocialBaseFraction:  0.8,
		SocialAgeBonus:      5,
		SocialAgeBonusDays:  180,
		SocialAgeYearDays:   365,
		SocialMax:           100,
		SocialUnlinkPenalty: 1.5,

		GithubBonusPerActiveDay: 0.5,
		GithubBonusMax:          10,

		KYCBaseline:      100,
		KYCWarningWindow: 30 * 24 * time.Hour,
		KYCWarningPct:    0.25,

		LaunchMax:         100,
		LaunchVolumeBonus: 10,
		LaunchVolumeMin:   3,
		LaunchLookback:    6 * 30 * 24 * time.Hour,

		Tiers: []TierThreshold{
			{Min: 85, Tier: TierPlatinum},
			{Min: 65, Tier: TierGold},
			{Min: 40, Tier: TierSilver},
			{Min: 20, Tier: TierBronze},
			{Min: 0, Tier: TierNewIssuer},
		},
	}
}

// Validate checks the structural invariants of a policy.
func (policy Policy) Validate() error {
	if policy.Profile != ProfileWeighted && policy.Profile != ProfileSimple {
		return fmt.Errorf("scoring_policy_invalid_profile: %q", policy.Profile)
	}
	if len(policy.Tiers) == 0 {
		return fmt.Errorf("scoring_policy_empty_tier_ladder")
	}
	for i := 1; i < len(policy.Tiers); i++ {
		if policy.Tiers[i].Min >= policy.Tiers[i-1].Min {
			return fmt.Errorf("scoring_policy_tier_ladder_not_descending")
		}
	}
	if policy.Tiers[len(policy.Tiers)-1].Min != 0 {
		return fmt.Errorf("scoring_policy_tier_ladder_must_floor_at_zero")
	}
	if policy.Profile == ProfileWeighted {
		for _, category := range Categories {
			if _, found := policy.Weights[category]; !found {
				return fmt.Errorf("scoring_policy_missing_weight: %s", category)
			}
		}
	}
	return nil
}

// LinkReward returns the social score delta for linking a provider account.
func (policy Policy) LinkReward(provider string) float64 {
	return policy.SocialProviderWeights[provider] * policy.SocialBaseFraction
}

// UnlinkPenalty returns the (positive) social score deduction for removing
// a provider link. Deliberately larger than the link reward so link/unlink
// cycling always costs score.
func (policy Policy) UnlinkPenalty(provider string) float64 {
	return policy.LinkReward(provider) * policy.SocialUnlinkPenalty
}
