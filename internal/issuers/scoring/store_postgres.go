// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/pkg/pagination"
)

// # Score Repository

// PostgresScoreRepository implements the ScoreRepository interface using pgx
// transactions for the score+history atomicity requirement.
type PostgresScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new PostgreSQL implementation of ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool) *PostgresScoreRepository {
	return &PostgresScoreRepository{pool: pool}
}

const scoreColumns = `
	issuerid, staking, walletbehavior, social, kyc, launchhistory,
	total, tier, createdat, updatedat`

func scanScore(row pgx.Row) (*Score, error) {
	score := &Score{}
	err := row.Scan(
		&score.IssuerID,
		&score.Staking,
		&score.WalletBehavior,
		&score.Social,
		&score.KYC,
		&score.LaunchHistory,
		&score.Total,
		&score.Tier,
		&score.CreatedAt,
		&score.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return score, nil
}

/*
Get returns the issuer's current score aggregate.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - *Score: Current aggregate
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresScoreRepository) Get(context context.Context, issuerID string) (*Score, error) {
	const query = `
		SELECT ` + scoreColumns + `
		FROM issuers.score
		WHERE issuerid = $1`

	score, err := scanScore(repository.pool.QueryRow(context, query, issuerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Score")
		}
		return nil, fmt.Errorf("postgres_score_repo_get_failed: %w", err)
	}

	return score, nil
}

/*
SaveRecalculation upserts the score and appends its audit record atomically.

Description: A single transaction covers both writes; the ON CONFLICT upsert
plus the insert either land together or not at all.

Parameters:
  - context: context.Context
  - score: *Score
  - history: *ScoreHistory

Returns:
  - error: Transaction failures
*/
func (repository *PostgresScoreRepository) SaveRecalculation(context context.Context, score *Score, history *ScoreHistory) error {
	const upsert = `
		INSERT INTO issuers.score (
			issuerid, staking, walletbehavior, social, kyc, launchhistory,
			total, tier, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (issuerid) DO UPDATE SET
			staking = EXCLUDED.staking,
			walletbehavior = EXCLUDED.walletbehavior,
			social = EXCLUDED.social,
			kyc = EXCLUDED.kyc,
			launchhistory = EXCLUDED.launchhistory,
			total = EXCLUDED.total,
			tier = EXCLUDED.tier,
			updatedat = EXCLUDED.updatedat`

	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_score_repo_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	now := time.Now()
	score.UpdatedAt = now
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}

	_, err = transaction.Exec(context, upsert,
		score.IssuerID,
		score.Staking,
		score.WalletBehavior,
		score.Social,
		score.KYC,
		score.LaunchHistory,
		score.Total,
		score.Tier,
		now,
	)
	if err != nil {
		return fmt.Errorf("postgres_score_repo_upsert_failed: %w", err)
	}

	if err := insertHistory(context, transaction, history); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_score_repo_commit_failed: %w", err)
	}
	return nil
}

/*
AddSocialDelta applies an atomic social increment plus the audit record.

Description: The UPDATE uses the increment form (social = social + delta) so
concurrent link events never lose an update; the result is clamped to the
[0, maximum] band in the same statement, then the refreshed row is
recomposed (total, tier) and the history appended, all in one transaction.

Parameters:
  - context: context.Context
  - issuerID: string
  - delta: float64
  - maximum: float64
  - recompute: func(*Score)
  - history: func(*Score) *ScoreHistory

Returns:
  - *Score: The updated aggregate
  - error: apperr.NotFound or transaction failures
*/
func (repository *PostgresScoreRepository) AddSocialDelta(context context.Context, issuerID string, delta float64, maximum float64, recompute func(*Score), history func(*Score) *ScoreHistory) (*Score, error) {
	const increment = `
		UPDATE issuers.score
		SET social = LEAST($3, GREATEST(0, social + $2)), updatedat = NOW()
		WHERE issuerid = $1
		RETURNING ` + scoreColumns

	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return nil, fmt.Errorf("postgres_score_repo_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	score, err := scanScore(transaction.QueryRow(context, increment, issuerID, delta, maximum))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Score")
		}
		return nil, fmt.Errorf("postgres_score_repo_increment_failed: %w", err)
	}

	recompute(score)

	const settle = `
		UPDATE issuers.score
		SET total = $2, tier = $3
		WHERE issuerid = $1`
	if _, err := transaction.Exec(context, settle, issuerID, score.Total, score.Tier); err != nil {
		return nil, fmt.Errorf("postgres_score_repo_settle_failed: %w", err)
	}

	if err := insertHistory(context, transaction, history(score)); err != nil {
		return nil, err
	}

	if err := transaction.Commit(context); err != nil {
		return nil, fmt.Errorf("postgres_score_repo_commit_failed: %w", err)
	}
	return score, nil
}

// insertHistory appends one audit record inside the caller's transaction,
// assigning the next per-issuer version.
func insertHistory(context context.Context, transaction pgx.Tx, history *ScoreHistory) error {
	const insert = `
		INSERT INTO issuers.scorehistory (
			id, issuerid, entries, total, tier, source, version, recordedat
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM issuers.scorehistory WHERE issuerid = $2),
			$7
		)`

	entries, err := json.Marshal(history.Entries)
	if err != nil {
		return fmt.Errorf("postgres_score_repo_encode_history_failed: %w", err)
	}
	if history.RecordedAt.IsZero() {
		history.RecordedAt = time.Now()
	}

	_, err = transaction.Exec(context, insert,
		history.ID,
		history.IssuerID,
		entries,
		history.Total,
		history.Tier,
		history.Source,
		history.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_score_repo_insert_history_failed: %w", err)
	}
	return nil
}

/*
ListHistory returns the issuer's audit records, newest first, paginated.

Parameters:
  - context: context.Context
  - issuerID: string
  - params: pagination.Params

Returns:
  - []ScoreHistory: One page of records
  - int: Total record count
  - error: Query failures
*/
func (repository *PostgresScoreRepository) ListHistory(context context.Context, issuerID string, params pagination.Params) ([]ScoreHistory, int, error) {
	const count = `SELECT COUNT(*) FROM issuers.scorehistory WHERE issuerid = $1`
	const query = `
		SELECT id, issuerid, entries, total, tier, source, version, recordedat
		FROM issuers.scorehistory
		WHERE issuerid = $1
		ORDER BY recordedat DESC, version DESC
		LIMIT $2 OFFSET $3`

	total := 0
	if err := repository.pool.QueryRow(context, count, issuerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_score_repo_count_history_failed: %w", err)
	}

	rows, err := repository.pool.Query(context, query, issuerID, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_score_repo_list_history_failed: %w", err)
	}
	defer rows.Close()

	records := []ScoreHistory{}
	for rows.Next() {
		var record ScoreHistory
		var entries []byte
		err := rows.Scan(
			&record.ID,
			&record.IssuerID,
			&entries,
			&record.Total,
			&record.Tier,
			&record.Source,
			&record.Version,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_score_repo_scan_history_failed: %w", err)
		}
		if err := json.Unmarshal(entries, &record.Entries); err != nil {
			return nil, 0, fmt.Errorf("postgres_score_repo_decode_history_failed: %w", err)
		}
		records = append(records, record)
	}

	return records, total, rows.Err()
}

// # Flag Repository

// PostgresFlagRepository implements the FlagRepository interface.
type PostgresFlagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository creates a new PostgreSQL implementation of FlagRepository.
func NewFlagRepository(pool *pgxpool.Pool) *PostgresFlagRepository {
	return &PostgresFlagRepository{pool: pool}
}

/*
Create persists a new behavior flag.

Parameters:
  - context: context.Context
  - flag: *BehaviorFlag

Returns:
  - error: Storage failures
*/
func (repository *PostgresFlagRepository) Create(context context.Context, flag *BehaviorFlag) error {
	const query = `
		INSERT INTO issuers.behaviorflag (id, issuerid, type, severity, note, flaggedat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if flag.FlaggedAt.IsZero() {
		flag.FlaggedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		flag.ID,
		flag.IssuerID,
		flag.Type,
		flag.Severity,
		flag.Note,
		flag.FlaggedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_flag_repo_create_failed: %w", err)
	}
	return nil
}

/*
ListByIssuer returns every flag against the issuer, oldest first.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - []BehaviorFlag: Possibly empty slice
  - error: Query failures
*/
func (repository *PostgresFlagRepository) ListByIssuer(context context.Context, issuerID string) ([]BehaviorFlag, error) {
	const query = `
		SELECT id, issuerid, type, severity, note, flaggedat
		FROM issuers.behaviorflag
		WHERE issuerid = $1
		ORDER BY flaggedat ASC`

	rows, err := repository.pool.Query(context, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("postgres_flag_repo_list_failed: %w", err)
	}
	defer rows.Close()

	flags := []BehaviorFlag{}
	for rows.Next() {
		var flag BehaviorFlag
		err := rows.Scan(
			&flag.ID,
			&flag.IssuerID,
			&flag.Type,
			&flag.Severity,
			&flag.Note,
			&flag.FlaggedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_flag_repo_scan_failed: %w", err)
		}
		flags = append(flags, flag)
	}

	return flags, rows.Err()
}

// # Launch Repository

// PostgresLaunchRepository implements the LaunchRepository interface.
type PostgresLaunchRepository struct {
	pool *pgxpool.Pool
}

// NewLaunchRepository creates a new PostgreSQL implementation of LaunchRepository.
func NewLaunchRepository(pool *pgxpool.Pool) *PostgresLaunchRepository {
	return &PostgresLaunchRepository{pool: pool}
}

/*
Create persists a new launch record.

Parameters:
  - context: context.Context
  - launch: *Launch

Returns:
  - error: Storage failures
*/
func (repository *PostgresLaunchRepository) Create(context context.Context, launch *Launch) error {
	const query = `
		INSERT INTO issuers.launch (id, issuerid, name, successful, launchedat)
		VALUES ($1, $2, $3, $4, $5)`

	if launch.LaunchedAt.IsZero() {
		launch.LaunchedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		launch.ID,
		launch.IssuerID,
		launch.Name,
		launch.Successful,
		launch.LaunchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_launch_repo_create_failed: %w", err)
	}
	return nil
}

/*
Stats aggregates launch counts for the issuer within the lookback window.

Parameters:
  - context: context.Context
  - issuerID: string
  - since: time.Time

Returns:
  - LaunchStats: Aggregate counts
  - error: Query failures
*/
func (repository *PostgresLaunchRepository) Stats(context context.Context, issuerID string, since time.Time) (LaunchStats, error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE successful)
		FROM issuers.launch
		WHERE issuerid = $1 AND launchedat >= $2`

	stats := LaunchStats{}
	err := repository.pool.QueryRow(context, query, issuerID, since).Scan(&stats.Total, &stats.Successful)
	if err != nil {
		return LaunchStats{}, fmt.Errorf("postgres_launch_repo_stats_failed: %w", err)
	}
	return stats, nil
}
