// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # Issuer Data Access

// IssuerRepository defines the data access contract for issuer profiles.
type IssuerRepository interface {

	/*
		FindByID returns the issuer with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Issuer: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Issuer, error)

	/*
		FindByWalletAddress returns the issuer owning the lower-cased address.

		Parameters:
		  - context: context.Context
		  - address: string

		Returns:
		  - *Issuer: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByWalletAddress(context context.Context, address string) (*Issuer, error)

	/*
		FindByEmail returns the issuer with the given primary email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Issuer: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Issuer, error)

	/*
		Create persists a brand-new issuer profile to the storage.

		Parameters:
		  - context: context.Context
		  - issuer: *Issuer

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, issuer *Issuer) error

	/*
		Update persists changes to mutable profile fields.

		Parameters:
		  - context: context.Context
		  - issuer: *Issuer

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, issuer *Issuer) error

	/*
		RecordLogin updates the issuer's last-login metadata.

		Parameters:
		  - context: context.Context
		  - issuerID: string
		  - at: time.Time
		  - ip: string
		  - userAgent: string

		Returns:
		  - error: Persistence failures
	*/
	RecordLogin(context context.Context, issuerID string, at time.Time, ip string, userAgent string) error
}

// # Account Data Access

// AccountRepository defines the data access contract for wallet and social
// account links.
type AccountRepository interface {

	/*
		FindWalletByAddress returns the wallet link for the lower-cased address.

		Parameters:
		  - context: context.Context
		  - address: string

		Returns:
		  - *WalletAccount: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindWalletByAddress(context context.Context, address string) (*WalletAccount, error)

	/*
		ListWallets returns every wallet linked to the issuer.

		Parameters:
		  - context: context.Context
		  - issuerID: string

		Returns:
		  - []WalletAccount: Linked wallets, oldest first
		  - error: Database retrieval failures
	*/
	ListWallets(context context.Context, issuerID string) ([]WalletAccount, error)

	/*
		CreateWallet persists a new wallet link.

		Parameters:
		  - context: context.Context
		  - wallet: *WalletAccount

		Returns:
		  - error: Conflict on duplicate address or persistence failures
	*/
	CreateWallet(context context.Context, wallet *WalletAccount) error

	/*
		TouchWallet updates the wallet's last-used timestamp.

		Parameters:
		  - context: context.Context
		  - walletID: string
		  - at: time.Time

		Returns:
		  - error: Persistence failures
	*/
	TouchWallet(context context.Context, walletID string, at time.Time) error

	/*
		FindSocial returns the social link for the (provider, account id) pair.

		Parameters:
		  - context: context.Context
		  - provider: string
		  - providerAccountID: string

		Returns:
		  - *SocialAccount: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindSocial(context context.Context, provider string, providerAccountID string) (*SocialAccount, error)

	/*
		ListSocials returns every social account linked to the issuer.

		Parameters:
		  - context: context.Context
		  - issuerID: string

		Returns:
		  - []SocialAccount: Linked accounts, oldest first
		  - error: Database retrieval failures
	*/
	ListSocials(context context.Context, issuerID string) ([]SocialAccount, error)

	/*
		CreateSocial persists a new social link.

		Parameters:
		  - context: context.Context
		  - social: *SocialAccount

		Returns:
		  - error: Conflict on duplicate (provider, account id) or persistence failures
	*/
	CreateSocial(context context.Context, social *SocialAccount) error

	/*
		DeleteSocial removes a social link owned by the issuer.

		Parameters:
		  - context: context.Context
		  - issuerID: string
		  - provider: string

		Returns:
		  - *SocialAccount: The removed link
		  - error: NotFound or persistence failures
	*/
	DeleteSocial(context context.Context, issuerID string, provider string) (*SocialAccount, error)

	/*
		TouchSocial updates the social link's last-used timestamp.

		Parameters:
		  - context: context.Context
		  - socialID: string
		  - at: time.Time

		Returns:
		  - error: Persistence failures
	*/
	TouchSocial(context context.Context, socialID string, at time.Time) error
}

// # Token Data Access

// TokenRepository defines the data access contract for persisted refresh
// tokens. Only refresh tokens are stored; access tokens live purely in
// their signature.
type TokenRepository interface {

	/*
		Create persists a freshly issued refresh token with status active.

		Parameters:
		  - context: context.Context
		  - token: *Token

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, token *Token) error

	/*
		FindByID returns the token record keyed by jti.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Token: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Token, error)

	/*
		MarkRotated transitions an active token to rotated and records its
		successor. The update must not touch tokens already rotated or revoked.

		Parameters:
		  - context: context.Context
		  - id: string
		  - rotatedTo: string

		Returns:
		  - error: Persistence failures
	*/
	MarkRotated(context context.Context, id string, rotatedTo string) error

	/*
		Revoke transitions an active token to revoked.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Revoke(context context.Context, id string) error

	/*
		RevokeAll transitions every active token of the issuer to revoked.

		Parameters:
		  - context: context.Context
		  - issuerID: string

		Returns:
		  - int: Number of tokens revoked
		  - error: Persistence failures
	*/
	RevokeAll(context context.Context, issuerID string) (int, error)

	/*
		DeleteExpired physically removes token records past their expiry.
		Run periodically by the lifecycle sweeper.

		Parameters:
		  - context: context.Context

		Returns:
		  - int: Number of records removed
		  - error: Persistence failures
	*/
	DeleteExpired(context context.Context) (int, error)
}
