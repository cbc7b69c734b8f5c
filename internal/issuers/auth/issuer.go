// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the issuer identity and session management layer.

It defines the core domain entities (Issuer, WalletAccount, SocialAccount,
Token) and the logic for wallet-signature authentication, social account
linking, and refresh-token lifecycle management.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to issuer identity.
*/
package auth

import (
	"time"

	"github.com/taibuivan/veriscore/internal/platform/sec"
)

// # Domain Entities

// IssuerStatus describes the lifecycle state of an issuer profile.
// Issuers are never hard-deleted; bans are a status flip with attached info.
type IssuerStatus string

const (
	IssuerStatusActive    IssuerStatus = "active"
	IssuerStatusSuspended IssuerStatus = "suspended"
	IssuerStatusBanned    IssuerStatus = "banned"
)

// KYCStatus describes the identity-verification state of an issuer.
type KYCStatus string

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// Network identifies the chain family a wallet account belongs to.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkBSC      Network = "bsc"
	NetworkSolana   Network = "solana"
	NetworkAptos    Network = "aptos"
)

// Issuer represents a token-issuing identity on the Veriscore platform.
type Issuer struct {
	ID            string       `json:"id"`
	Handle        string       `json:"handle"`
	DisplayName   string       `json:"display_name"`
	Email         string       `json:"email,omitempty"`
	Bio           string       `json:"bio,omitempty"`
	AvatarURL     string       `json:"avatar_url,omitempty"`
	Website       string       `json:"website,omitempty"`
	StakedAmount  float64      `json:"staked_amount"`
	Role          sec.Role     `json:"role"`
	Status        IssuerStatus `json:"status"`
	BanReason     string       `json:"-"` // Internal moderation detail, never exposed.
	KYCStatus     KYCStatus    `json:"kyc_status"`
	KYCApprovedAt *time.Time   `json:"kyc_approved_at,omitempty"`
	KYCExpiresAt  *time.Time   `json:"kyc_expires_at,omitempty"`
	LastLoginAt   *time.Time   `json:"last_login_at,omitempty"`
	LastLoginIP   string       `json:"-"` // Security metadata, never exposed.
	LastLoginUA   string       `json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CanAuthenticate reports whether the issuer may establish new sessions.
// Suspended and banned issuers are both locked out of every login door.
func (issuer *Issuer) CanAuthenticate() bool {
	return issuer.Status == IssuerStatusActive
}

// WalletAccount links a chain address to an issuer. The address is stored
// lower-cased and is globally unique: one wallet authenticates one issuer.
type WalletAccount struct {
	ID         string     `json:"id"`
	IssuerID   string     `json:"issuer_id"`
	Address    string     `json:"address"`
	Network    Network    `json:"network"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SocialAccount links an external provider identity to an issuer. The
// (provider, provider account id) pair is globally unique.
type SocialAccount struct {
	ID                string     `json:"id"`
	IssuerID          string     `json:"issuer_id"`
	Provider          string     `json:"provider"`
	ProviderAccountID string     `json:"provider_account_id"`
	Email             string     `json:"email,omitempty"`
	Username          string     `json:"username,omitempty"`
	ProfileURL        string     `json:"profile_url,omitempty"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	LinkedAt          time.Time  `json:"linked_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// TokenStatus is the state of a persisted refresh token.
//
// # State Machine
//
// active → rotated (on refresh, successor recorded) and active → revoked
// (on logout or mass revoke) are the only transitions; both end states are
// terminal.
type TokenStatus string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusRotated TokenStatus = "rotated"
	TokenStatusRevoked TokenStatus = "revoked"
)

// Token is the persisted record of an issued refresh token, keyed by the
// JWT's jti claim. Access tokens are never persisted.
type Token struct {
	ID          string      `json:"id"`
	IssuerID    string      `json:"issuer_id"`
	AccountID   string      `json:"account_id,omitempty"`
	Status      TokenStatus `json:"status"`
	RotatedTo   string      `json:"rotated_to,omitempty"`
	IP          string      `json:"ip"`
	UserAgent   string      `json:"user_agent,omitempty"`
	Fingerprint string      `json:"-"`
	ExpiresAt   time.Time   `json:"expires_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsUsable reports whether the record still backs a valid refresh token.
func (token *Token) IsUsable(now time.Time) bool {
	return token.Status == TokenStatusActive && now.Before(token.ExpiresAt)
}

// # Projections

// ScoreSummary is the trust-score slice embedded in the profile projection.
type ScoreSummary struct {
	Total float64 `json:"total"`
	Tier  string  `json:"tier"`
}

// Profile is the public projection of an issuer returned after login and
// from the profile endpoints.
type Profile struct {
	ID           string          `json:"id"`
	Handle       string          `json:"handle"`
	DisplayName  string          `json:"display_name"`
	Bio          string          `json:"bio,omitempty"`
	AvatarURL    string          `json:"avatar_url,omitempty"`
	Website      string          `json:"website,omitempty"`
	StakedAmount float64         `json:"staked_amount"`
	KYCStatus    KYCStatus       `json:"kyc_status"`
	Score        *ScoreSummary   `json:"score,omitempty"`
	Wallets      []WalletAccount `json:"wallets,omitempty"`
	Socials      []SocialAccount `json:"socials,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the auth domain.
const (
	FieldAddress     = "address"
	FieldNetwork     = "network"
	FieldSignature   = "signature"
	FieldMessage     = "message"
	FieldProvider    = "provider"
	FieldAssertion   = "assertion"
	FieldAccountID   = "provider_account_id"
	FieldDisplayName = "display_name"
	FieldToken       = "token"
	FieldAccessToken = "access_token"
	FieldTokenType   = "token_type"
	FieldExpiresIn   = "expires_in"
	FieldIssuer      = "issuer"
	FieldNonce       = "nonce"
)
