// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scoring implements the issuer trust-score engine.

It computes per-category reputation scores (staking, wallet behavior, social
accounts, KYC, launch history), composes them into a total under a configured
policy, classifies the total into a tier, and maintains an append-only audit
history of every score mutation.

# Architecture

  - Engine: pure calculators; policy passed in, never read ambiently.
  - Service: orchestrates recalculation and incremental updates; every score
    mutation persists the score and its history entry atomically.
  - Notifier: the adapter the auth layer calls on identity events.
*/
package scoring

import (
	"time"
)

// # Categories & Tiers

// Category identifies one scored dimension of an issuer's reputation.
type Category string

const (
	CategoryStaking        Category = "staking"
	CategoryWalletBehavior Category = "wallet_behavior"
	CategorySocial         Category = "social"
	CategoryKYC            Category = "kyc"
	CategoryLaunchHistory  Category = "launch_history"
)

// Categories lists every scored dimension in canonical order.
var Categories = []Category{
	CategoryStaking, CategoryWalletBehavior, CategorySocial,
	CategoryKYC, CategoryLaunchHistory,
}

// Tier is the badge classification derived from the total score.
type Tier string

const (
	TierNewIssuer Tier = "new_issuer"
	TierBronze    Tier = "bronze"
	TierSilver    Tier = "silver"
	TierGold      Tier = "gold"
	TierPlatinum  Tier = "platinum"
)

// Rank returns the ordering position of a tier, lowest first. Unknown tiers
// rank below new_issuer.
func (tier Tier) Rank() int {
	switch tier {
	case TierNewIssuer:
		return 1
	case TierBronze:
		return 2
	case TierSilver:
		return 3
	case TierGold:
		return 4
	case TierPlatinum:
		return 5
	default:
		return 0
	}
}

// # Entities

// Score is the one-per-issuer aggregate of category scores.
//
// Total is always a deterministic function of the category values and the
// active policy; it is never stored independently of them.
type Score struct {
	IssuerID       string    `json:"issuer_id"`
	Staking        float64   `json:"staking"`
	WalletBehavior float64   `json:"wallet_behavior"`
	Social         float64   `json:"social"`
	KYC            float64   `json:"kyc"`
	LaunchHistory  float64   `json:"launch_history"`
	Total          float64   `json:"total"`
	Tier           Tier      `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Category returns the raw value of one category.
func (score *Score) Category(category Category) float64 {
	switch category {
	case CategoryStaking:
		return score.Staking
	case CategoryWalletBehavior:
		return score.WalletBehavior
	case CategorySocial:
		return score.Social
	case CategoryKYC:
		return score.KYC
	case CategoryLaunchHistory:
		return score.LaunchHistory
	default:
		return 0
	}
}

// HistorySource records what triggered a score mutation.
type HistorySource string

const (
	SourceSystem    HistorySource = "system"
	SourceManual    HistorySource = "manual"
	SourceImport    HistorySource = "import"
	SourceMigration HistorySource = "migration"
)

// HistoryEntry is one category line inside an audit record.
type HistoryEntry struct {
	Category Category `json:"category"`
	Raw      float64  `json:"raw"`
	Weighted float64  `json:"weighted"`
	Note     string   `json:"note,omitempty"`
}

// ScoreHistory is an immutable audit record of one score mutation. Records
// are append-only: never updated, never deleted.
type ScoreHistory struct {
	ID         string         `json:"id"`
	IssuerID   string         `json:"issuer_id"`
	Entries    []HistoryEntry `json:"entries"`
	Total      float64        `json:"total"`
	Tier       Tier           `json:"tier"`
	Source     HistorySource  `json:"source"`
	Version    int            `json:"version"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// # Behavior Flags

// FlagSeverity weighs how damaging a behavior flag is, on a 1-5 scale.
type FlagSeverity int

const (
	SeverityLow    FlagSeverity = 1
	SeverityMedium FlagSeverity = 3
	SeverityHigh   FlagSeverity = 5
)

// FlagType classifies the reported behavior.
type FlagType string

const (
	FlagSpam     FlagType = "spam"
	FlagScam     FlagType = "scam"
	FlagMalware  FlagType = "malware"
	FlagPhishing FlagType = "phishing"
	FlagOther    FlagType = "other"
)

// FlagTypes lists the accepted flag classifications.
var FlagTypes = []FlagType{FlagSpam, FlagScam, FlagMalware, FlagPhishing, FlagOther}

// BehaviorFlag is a moderation mark against an issuer's wallet behavior.
type BehaviorFlag struct {
	ID        string       `json:"id"`
	IssuerID  string       `json:"issuer_id"`
	Type      FlagType     `json:"type"`
	Severity  FlagSeverity `json:"severity"`
	Note      string       `json:"note,omitempty"`
	FlaggedAt time.Time    `json:"flagged_at"`
}

// # Launches

// Launch is one token launch attributed to an issuer.
type Launch struct {
	ID         string    `json:"id"`
	IssuerID   string    `json:"issuer_id"`
	Name       string    `json:"name"`
	Successful bool      `json:"successful"`
	LaunchedAt time.Time `json:"launched_at"`
}

// LaunchStats is the aggregate the launch-history calculator consumes.
type LaunchStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// SuccessRate returns the fraction of successful launches, 0 when none.
func (stats LaunchStats) SuccessRate() float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Successful) / float64(stats.Total)
}
