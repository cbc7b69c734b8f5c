// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"context"
	"time"

	"github.com/taibuivan/veriscore/pkg/pagination"
)

// # Score Data Access

// ScoreRepository persists score aggregates and their audit history.
//
// # Atomicity
//
// Every mutation writes the score and its history entry inside one
// transaction. A crash must never leave a history entry without a matching
// score update, or vice versa.
type ScoreRepository interface {

	/*
		Get returns the issuer's current score aggregate.

		Parameters:
		  - context: context.Context
		  - issuerID: string

		Returns:
		  - *Score: Current aggregate
		  - error: apperr.NotFound when never scored, or storage failures
	*/
	Get(context context.Context, issuerID string) (*Score, error)

	/*
		SaveRecalculation upserts the full score aggregate and appends the
		audit record, atomically.

		Description: The row is locked for the duration so concurrent
		recalculations of one issuer serialize.

		Parameters:
		  - context: context.Context
		  - score: *Score (complete aggregate)
		  - history: *ScoreHistory

		Returns:
		  - error: Transaction failures
	*/
	SaveRecalculation(context context.Context, score *Score, history *ScoreHistory) error

	/*
		AddSocialDelta applies an atomic increment to the social category,
		recomputes the stored total and tier, and appends the audit record,
		all in one transaction.

		Description: The increment form (social = social + delta) avoids the
		lost-update race of read-then-write when two providers are linked
		concurrently. The stored value is clamped to [0, maximum] so
		repeated link events can never push the category past its ceiling.

		Parameters:
		  - context: context.Context
		  - issuerID: string
		  - delta: float64 (positive for link, negative for unlink)
		  - maximum: float64 (the category ceiling from the policy)
		  - recompute: func(*Score) — recomputes Total and Tier in place
		  - history: func(*Score) *ScoreHistory — built from the post-update row

		Returns:
		  - *Score: The updated aggregate
		  - error: apperr.NotFound when never scored, or transaction failures
	*/
	AddSocialDelta(context context.Context, issuerID string, delta float64, maximum float64, recompute func(*Score), history func(*Score) *ScoreHistory) (*Score, error)

	/*
		ListHistory returns the issuer's audit records, newest first.

		Parameters:
		  - context: context.Context
		  - issuerID: string
		  - params: pagination.Params

		Returns:
		  - []ScoreHistory: One page of records
		  - int: Total record count
		  - error: Query failures
	*/
	ListHistory(context context.Context, issuerID string, params pagination.Params) ([]ScoreHistory, int, error)
}

// # Flag Data Access

// FlagRepository persists wallet-behavior moderation flags.
type FlagRepository interface {

	// Create persists a new behavior flag.
	Create(context context.Context, flag *BehaviorFlag) error

	// ListByIssuer returns every flag against the issuer, oldest first.
	ListByIssuer(context context.Context, issuerID string) ([]BehaviorFlag, error)
}

// # Launch Data Access

// LaunchRepository persists launch records and serves the aggregate the
// launch-history calculator consumes.
type LaunchRepository interface {

	// Create persists a new launch record.
	Create(context context.Context, launch *Launch) error

	/*
		Stats aggregates total and successful launch counts for the issuer
		within the lookback window.

		Parameters:
		  - context: context.Context
		  - issuerID: string
		  - since: time.Time (window start)

		Returns:
		  - LaunchStats: Aggregate counts
		  - error: Query failures
	*/
	Stats(context context.Context, issuerID string, since time.Time) (LaunchStats, error)
}
