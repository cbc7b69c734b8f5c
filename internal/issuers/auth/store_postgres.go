// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
)

// # Issuer Repository

const issuerColumns = `
	id, handle, displayname, email, bio, avatarurl, website, stakedamount,
	role, status, banreason, kycstatus, kycapprovedat, kycexpiresat,
	lastloginat, lastloginip, lastloginua, createdat, updatedat`

// PostgresIssuerRepository implements the IssuerRepository interface using pgx.
type PostgresIssuerRepository struct {
	pool *pgxpool.Pool
}

// NewIssuerRepository creates a new PostgreSQL implementation of the IssuerRepository.
func NewIssuerRepository(pool *pgxpool.Pool) *PostgresIssuerRepository {
	return &PostgresIssuerRepository{pool: pool}
}

func scanIssuer(row pgx.Row) (*Issuer, error) {
	issuer := &Issuer{}
	err := row.Scan(
		&issuer.ID,
		&issuer.Handle,
		&issuer.DisplayName,
		&issuer.Email,
		&issuer.Bio,
		&issuer.AvatarURL,
		&issuer.Website,
		&issuer.StakedAmount,
		&issuer.Role,
		&issuer.Status,
		&issuer.BanReason,
		&issuer.KYCStatus,
		&issuer.KYCApprovedAt,
		&issuer.KYCExpiresAt,
		&issuer.LastLoginAt,
		&issuer.LastLoginIP,
		&issuer.LastLoginUA,
		&issuer.CreatedAt,
		&issuer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return issuer, nil
}

/*
FindByID retrieves an issuer record by its unique ID.

Description: Primary key resolution for issuer profiles.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Issuer: Hydrated issuer entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIssuerRepository) FindByID(context context.Context, id string) (*Issuer, error) {
	const query = `
		SELECT ` + issuerColumns + `
		FROM issuers.account
		WHERE id = $1`

	issuer, err := scanIssuer(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Issuer")
		}
		return nil, fmt.Errorf("postgres_issuer_repo_find_by_id_failed: %w", err)
	}

	return issuer, nil
}

/*
FindByWalletAddress retrieves the issuer owning a wallet address.

Description: Joins through the wallet table; the address is compared in its
lower-cased canonical form.

Parameters:
  - context: context.Context
  - address: string

Returns:
  - *Issuer: Hydrated issuer entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIssuerRepository) FindByWalletAddress(context context.Context, address string) (*Issuer, error) {
	const query = `
		SELECT ` + issuerColumns + `
		FROM issuers.account
		WHERE id = (SELECT issuerid FROM issuers.wallet WHERE address = $1)`

	issuer, err := scanIssuer(repository.pool.QueryRow(context, query, strings.ToLower(address)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Issuer for this wallet")
		}
		return nil, fmt.Errorf("postgres_issuer_repo_find_by_wallet_failed: %w", err)
	}

	return issuer, nil
}

/*
FindByEmail retrieves an issuer record by its primary email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Issuer: Hydrated issuer entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIssuerRepository) FindByEmail(context context.Context, email string) (*Issuer, error) {
	const query = `
		SELECT ` + issuerColumns + `
		FROM issuers.account
		WHERE email = $1 AND email <> ''`

	issuer, err := scanIssuer(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Issuer with this email")
		}
		return nil, fmt.Errorf("postgres_issuer_repo_find_by_email_failed: %w", err)
	}

	return issuer, nil
}

/*
Create persists a new issuer record into the issuers.account table.

Description: Deep-persists profile metadata, ensuring timestamps are
initialized if not provided.

Parameters:
  - context: context.Context
  - issuer: *Issuer (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresIssuerRepository) Create(context context.Context, issuer *Issuer) error {
	const query = `
		INSERT INTO issuers.account (
			id, handle, displayname, email, bio, avatarurl, website, stakedamount,
			role, status, banreason, kycstatus, kycapprovedat, kycexpiresat,
			lastloginat, lastloginip, lastloginua, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	now := time.Now()
	if issuer.CreatedAt.IsZero() {
		issuer.CreatedAt = now
	}
	issuer.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		issuer.ID,
		issuer.Handle,
		issuer.DisplayName,
		issuer.Email,
		issuer.Bio,
		issuer.AvatarURL,
		issuer.Website,
		issuer.StakedAmount,
		issuer.Role,
		issuer.Status,
		issuer.BanReason,
		issuer.KYCStatus,
		issuer.KYCApprovedAt,
		issuer.KYCExpiresAt,
		issuer.LastLoginAt,
		issuer.LastLoginIP,
		issuer.LastLoginUA,
		issuer.CreatedAt,
		issuer.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_issuer_repo_create_failed: %w", err)
	}

	return nil
}

/*
Update persists changes to an issuer's mutable profile fields.

Description: Synchronizes the in-memory issuer state with the database,
refreshing the updatedat timestamp.

Parameters:
  - context: context.Context
  - issuer: *Issuer

Returns:
  - error: Update failures
*/
func (repository *PostgresIssuerRepository) Update(context context.Context, issuer *Issuer) error {
	const query = `
		UPDATE issuers.account
		SET handle = $2, displayname = $3, email = $4, bio = $5, avatarurl = $6,
		    website = $7, stakedamount = $8, status = $9, banreason = $10,
		    kycstatus = $11, kycapprovedat = $12, kycexpiresat = $13, updatedat = $14
		WHERE id = $1`

	issuer.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(context, query,
		issuer.ID,
		issuer.Handle,
		issuer.DisplayName,
		issuer.Email,
		issuer.Bio,
		issuer.AvatarURL,
		issuer.Website,
		issuer.StakedAmount,
		issuer.Status,
		issuer.BanReason,
		issuer.KYCStatus,
		issuer.KYCApprovedAt,
		issuer.KYCExpiresAt,
		issuer.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_issuer_repo_update_failed: %w", err)
	}

	return nil
}

/*
RecordLogin stamps the last successful login metadata on the issuer.

Parameters:
  - context: context.Context
  - issuerID: string
  - at: time.Time
  - ip: string
  - userAgent: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresIssuerRepository) RecordLogin(context context.Context, issuerID string, at time.Time, ip string, userAgent string) error {
	const query = `
		UPDATE issuers.account
		SET lastloginat = $2, lastloginip = $3, lastloginua = $4, updatedat = $2
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, issuerID, at, ip, userAgent)
	if err != nil {
		return fmt.Errorf("postgres_issuer_repo_record_login_failed: %w", err)
	}
	return nil
}

// # Account Repository

// PostgresAccountRepository implements the AccountRepository interface
// covering both wallet and social account links.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PostgreSQL implementation of AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

/*
FindWalletByAddress retrieves a wallet link by its canonical address.

Parameters:
  - context: context.Context
  - address: string (lower-cased before comparison)

Returns:
  - *WalletAccount: Hydrated wallet link
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindWalletByAddress(context context.Context, address string) (*WalletAccount, error) {
	const query = `
		SELECT id, issuerid, address, network, lastusedat, createdat
		FROM issuers.wallet
		WHERE address = $1`

	wallet := &WalletAccount{}
	err := repository.pool.QueryRow(context, query, strings.ToLower(address)).Scan(
		&wallet.ID,
		&wallet.IssuerID,
		&wallet.Address,
		&wallet.Network,
		&wallet.LastUsedAt,
		&wallet.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Wallet")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_wallet_failed: %w", err)
	}

	return wallet, nil
}

/*
ListWallets returns every wallet linked to the issuer, oldest first.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - []WalletAccount: Possibly empty slice
  - error: Query failures
*/
func (repository *PostgresAccountRepository) ListWallets(context context.Context, issuerID string) ([]WalletAccount, error) {
	const query = `
		SELECT id, issuerid, address, network, lastusedat, createdat
		FROM issuers.wallet
		WHERE issuerid = $1
		ORDER BY createdat ASC`

	rows, err := repository.pool.Query(context, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_repo_list_wallets_failed: %w", err)
	}
	defer rows.Close()

	wallets := []WalletAccount{}
	for rows.Next() {
		var wallet WalletAccount
		err := rows.Scan(
			&wallet.ID,
			&wallet.IssuerID,
			&wallet.Address,
			&wallet.Network,
			&wallet.LastUsedAt,
			&wallet.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_account_repo_scan_wallet_failed: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	return wallets, rows.Err()
}

/*
CreateWallet persists a new wallet link.

Description: The address is stored lower-cased; a unique index on the column
enforces one issuer per wallet globally.

Parameters:
  - context: context.Context
  - wallet: *WalletAccount

Returns:
  - error: Constraint violations or connectivity errors
*/
func (repository *PostgresAccountRepository) CreateWallet(context context.Context, wallet *WalletAccount) error {
	const query = `
		INSERT INTO issuers.wallet (id, issuerid, address, network, createdat)
		VALUES ($1, $2, $3, $4, $5)`

	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now()
	}
	wallet.Address = strings.ToLower(wallet.Address)

	_, err := repository.pool.Exec(context, query,
		wallet.ID,
		wallet.IssuerID,
		wallet.Address,
		wallet.Network,
		wallet.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_account_repo_create_wallet_failed: %w", err)
	}

	return nil
}

/*
TouchWallet updates the wallet's last-used timestamp.

Parameters:
  - context: context.Context
  - walletID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresAccountRepository) TouchWallet(context context.Context, walletID string, at time.Time) error {
	const query = "UPDATE issuers.wallet SET lastusedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, walletID, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_touch_wallet_failed: %w", err)
	}
	return nil
}

/*
FindSocial retrieves a social link by its globally unique provider identity.

Parameters:
  - context: context.Context
  - provider: string
  - providerAccountID: string

Returns:
  - *SocialAccount: Hydrated social link
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindSocial(context context.Context, provider string, providerAccountID string) (*SocialAccount, error) {
	const query = `
		SELECT id, issuerid, provider, provideraccountid, email, username,
		       profileurl, avatarurl, linkedat, lastusedat
		FROM issuers.social
		WHERE provider = $1 AND provideraccountid = $2`

	social := &SocialAccount{}
	err := repository.pool.QueryRow(context, query, provider, providerAccountID).Scan(
		&social.ID,
		&social.IssuerID,
		&social.Provider,
		&social.ProviderAccountID,
		&social.Email,
		&social.Username,
		&social.ProfileURL,
		&social.AvatarURL,
		&social.LinkedAt,
		&social.LastUsedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Social account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_social_failed: %w", err)
	}

	return social, nil
}

/*
ListSocials returns every social link of the issuer, oldest first.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - []SocialAccount: Possibly empty slice
  - error: Query failures
*/
func (repository *PostgresAccountRepository) ListSocials(context context.Context, issuerID string) ([]SocialAccount, error) {
	const query = `
		SELECT id, issuerid, provider, provideraccountid, email, username,
		       profileurl, avatarurl, linkedat, lastusedat
		FROM issuers.social
		WHERE issuerid = $1
		ORDER BY linkedat ASC`

	rows, err := repository.pool.Query(context, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_repo_list_socials_failed: %w", err)
	}
	defer rows.Close()

	socials := []SocialAccount{}
	for rows.Next() {
		var social SocialAccount
		err := rows.Scan(
			&social.ID,
			&social.IssuerID,
			&social.Provider,
			&social.ProviderAccountID,
			&social.Email,
			&social.Username,
			&social.ProfileURL,
			&social.AvatarURL,
			&social.LinkedAt,
			&social.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_account_repo_scan_social_failed: %w", err)
		}
		socials = append(socials, social)
	}

	return socials, rows.Err()
}

/*
CreateSocial persists a new social link.

Description: A unique index on (provider, provideraccountid) enforces global
ownership of the provider identity.

Parameters:
  - context: context.Context
  - social: *SocialAccount

Returns:
  - error: Constraint violations or connectivity errors
*/
func (repository *PostgresAccountRepository) CreateSocial(context context.Context, social *SocialAccount) error {
	const query = `
		INSERT INTO issuers.social (
			id, issuerid, provider, provideraccountid, email, username,
			profileurl, avatarurl, linkedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if social.LinkedAt.IsZero() {
		social.LinkedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		social.ID,
		social.IssuerID,
		social.Provider,
		social.ProviderAccountID,
		social.Email,
		social.Username,
		social.ProfileURL,
		social.AvatarURL,
		social.LinkedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_account_repo_create_social_failed: %w", err)
	}

	return nil
}

/*
DeleteSocial removes a social link owned by the issuer.

Description: Uses RETURNING to hand the removed row back to the caller so the
scoring layer can apply the matching penalty.

Parameters:
  - context: context.Context
  - issuerID: string
  - provider: string

Returns:
  - *SocialAccount: The removed link
  - error: apperr.NotFound or deletion failures
*/
func (repository *PostgresAccountRepository) DeleteSocial(context context.Context, issuerID string, provider string) (*SocialAccount, error) {
	const query = `
		DELETE FROM issuers.social
		WHERE issuerid = $1 AND provider = $2
		RETURNING id, issuerid, provider, provideraccountid, email, username,
		          profileurl, avatarurl, linkedat, lastusedat`

	social := &SocialAccount{}
	err := repository.pool.QueryRow(context, query, issuerID, provider).Scan(
		&social.ID,
		&social.IssuerID,
		&social.Provider,
		&social.ProviderAccountID,
		&social.Email,
		&social.Username,
		&social.ProfileURL,
		&social.AvatarURL,
		&social.LinkedAt,
		&social.LastUsedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Social link")
		}
		return nil, fmt.Errorf("postgres_account_repo_delete_social_failed: %w", err)
	}

	return social, nil
}

/*
TouchSocial updates the social link's last-used timestamp.

Parameters:
  - context: context.Context
  - socialID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresAccountRepository) TouchSocial(context context.Context, socialID string, at time.Time) error {
	const query = "UPDATE issuers.social SET lastusedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, socialID, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_touch_social_failed: %w", err)
	}
	return nil
}

// # Token Repository

// PostgresTokenRepository implements the TokenRepository interface.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new PostgreSQL implementation of TokenRepository.
func NewTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

/*
Create persists a new refresh token record into the issuers.token table.

Description: Records an issued refresh token keyed by its jti so later
verifications can consult the revocation state machine.

Parameters:
  - context: context.Context
  - token: *Token

Returns:
  - error: Storage failures
*/
func (repository *PostgresTokenRepository) Create(context context.Context, token *Token) error {
	const query = `
		INSERT INTO issuers.token (
			id, issuerid, accountid, status, rotatedto, ip, useragent,
			fingerprint, expiresat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		token.ID,
		token.IssuerID,
		token.AccountID,
		token.Status,
		token.RotatedTo,
		token.IP,
		token.UserAgent,
		token.Fingerprint,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_token_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves a refresh token record by its jti.

Parameters:
  - context: context.Context
  - id: string (JWT jti claim)

Returns:
  - *Token: Hydrated token record in any state
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresTokenRepository) FindByID(context context.Context, id string) (*Token, error) {
	const query = `
		SELECT id, issuerid, accountid, status, rotatedto, ip, useragent,
		       fingerprint, expiresat, createdat, updatedat
		FROM issuers.token
		WHERE id = $1`

	token := &Token{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&token.ID,
		&token.IssuerID,
		&token.AccountID,
		&token.Status,
		&token.RotatedTo,
		&token.IP,
		&token.UserAgent,
		&token.Fingerprint,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Token")
		}
		return nil, fmt.Errorf("postgres_token_repo_find_failed: %w", err)
	}

	return token, nil
}

/*
MarkRotated transitions an active token to the terminal rotated state.

Description: The status guard in the WHERE clause makes the transition a
compare-and-swap; a token already rotated or revoked is left untouched.

Parameters:
  - context: context.Context
  - id: string
  - rotatedTo: string (jti of the successor token)

Returns:
  - error: Execution errors
*/
func (repository *PostgresTokenRepository) MarkRotated(context context.Context, id string, rotatedTo string) error {
	const query = `
		UPDATE issuers.token
		SET status = $3, rotatedto = $2, updatedat = NOW()
		WHERE id = $1 AND status = $4`

	_, err := repository.pool.Exec(context, query, id, rotatedTo, TokenStatusRotated, TokenStatusActive)
	if err != nil {
		return fmt.Errorf("postgres_token_repo_mark_rotated_failed: %w", err)
	}
	return nil
}

/*
Revoke transitions an active token to the terminal revoked state.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Revocation failures
*/
func (repository *PostgresTokenRepository) Revoke(context context.Context, id string) error {
	const query = `
		UPDATE issuers.token
		SET status = $2, updatedat = NOW()
		WHERE id = $1 AND status = $3`

	_, err := repository.pool.Exec(context, query, id, TokenStatusRevoked, TokenStatusActive)
	if err != nil {
		return fmt.Errorf("postgres_token_repo_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAll revokes every active token belonging to the issuer.

Description: Security nuking of all active sessions for an issuer; returns
the number of tokens actually revoked for audit logging.

Parameters:
  - context: context.Context
  - issuerID: string

Returns:
  - int: Count of revoked tokens
  - error: Batch revocation failures
*/
func (repository *PostgresTokenRepository) RevokeAll(context context.Context, issuerID string) (int, error) {
	const query = `
		UPDATE issuers.token
		SET status = $2, updatedat = NOW()
		WHERE issuerid = $1 AND status = $3`

	tag, err := repository.pool.Exec(context, query, issuerID, TokenStatusRevoked, TokenStatusActive)
	if err != nil {
		return 0, fmt.Errorf("postgres_token_repo_revoke_all_failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

/*
DeleteExpired permanently removes all token records past their expiration.

Description: Cleanup task to reclaim storage from stale token records.

Parameters:
  - context: context.Context

Returns:
  - int: Number of records removed
  - error: Cleanup failures
*/
func (repository *PostgresTokenRepository) DeleteExpired(context context.Context) (int, error) {
	const query = "DELETE FROM issuers.token WHERE expiresat <= NOW()"
	tag, err := repository.pool.Exec(context, query)
	if err != nil {
		return 0, fmt.Errorf("postgres_token_repo_delete_expired_failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
