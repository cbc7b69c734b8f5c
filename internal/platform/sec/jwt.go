// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides the security primitives of the platform: session
// token signing and verification, wallet signature verification across the
// supported schemes, client security-context extraction and secure random
// token generation.
package sec

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/veriscore/internal/platform/constants"
	"github.com/taibuivan/veriscore/pkg/uuid"
)

// # Token Model

// TokenType discriminates the two session token kinds. Access and refresh
// tokens are signed with distinct secrets and are never interchangeable.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// IPBindingMode selects how strictly a token is bound to the issuing IP.
type IPBindingMode string

const (
	// IPBindingExact requires the verifying IP to equal the issuing IP.
	IPBindingExact IPBindingMode = "exact"
	// IPBindingSubnet requires the verifying IP to share the issuing
	// IP's /24 (IPv4) or /64 (IPv6) network.
	IPBindingSubnet IPBindingMode = "subnet"
	// IPBindingDisabled skips the IP check entirely.
	IPBindingDisabled IPBindingMode = "disabled"
)

// AuthClaims is the payload carried by every session token.
type AuthClaims struct {
	IssuerID    string     `json:"issuerId"`
	AccountID   string     `json:"accountId,omitempty"`
	Role        string     `json:"role,omitempty"`
	TokenType   TokenType  `json:"type"`
	IP          string     `json:"ip"`
	UserAgent   string     `json:"userAgent,omitempty"`
	Device      DeviceInfo `json:"deviceInfo,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	jwt.RegisteredClaims
}

// Verification failure sentinels. Callers are expected to log the detail and
// collapse every one of them into an opaque unauthorized response.
var (
	ErrTokenInvalid      = errors.New("sec_token_invalid")
	ErrTokenTypeMismatch = errors.New("sec_token_type_mismatch")
	ErrTokenIPMismatch   = errors.New("sec_token_ip_mismatch")
	ErrTokenFingerprint  = errors.New("sec_token_fingerprint_mismatch")
)

// # Token Service

// TokenServiceOptions configures a [TokenService].
type TokenServiceOptions struct {
	AccessSecret       []byte
	RefreshSecret      []byte
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	IPBinding          IPBindingMode
	FingerprintBinding bool
}

// TokenService signs and verifies session tokens. Access and refresh tokens
// use separate HMAC secrets so a leaked access secret cannot mint refresh
// tokens.
type TokenService struct {
	options TokenServiceOptions
	now     func() time.Time
}

// NewTokenService builds a [TokenService] from the provided options.
func NewTokenService(options TokenServiceOptions) (*TokenService, error) {
	if len(options.AccessSecret) == 0 || len(options.RefreshSecret) == 0 {
		return nil, errors.New("sec_token_service_missing_secret")
	}
	if string(options.AccessSecret) == string(options.RefreshSecret) {
		return nil, errors.New("sec_token_service_shared_secret")
	}
	switch options.IPBinding {
	case IPBindingExact, IPBindingSubnet, IPBindingDisabled:
	default:
		return nil, fmt.Errorf("sec_token_service_invalid_ip_binding: %q", options.IPBinding)
	}

	// The refresh lifetime is capped regardless of configuration; a typo in
	// an env var must not hand out effectively permanent sessions.
	if options.RefreshTTL <= 0 || options.RefreshTTL > constants.MaxRefreshTokenTTL {
		options.RefreshTTL = constants.MaxRefreshTokenTTL
	}

	return &TokenService{options: options, now: time.Now}, nil
}

/*
Sign issues a session token of the requested type.

Description:
  - Embeds the caller identity together with the request's security context
    so verification can detect token replay from a different client.

Parameters:
  - issuerID: identity the token authenticates.
  - accountID: wallet or social account used to log in; may be empty.
  - role: authorization level of the identity.
  - tokenType: [TokenTypeAccess] or [TokenTypeRefresh].
  - securityContext: client attributes of the issuing request.

Returns:
  - string: the signed compact JWT.
  - *AuthClaims: the claims embedded in the token, including the generated JTI.
  - error: when signing fails.
*/
func (service *TokenService) Sign(issuerID string, accountID string, role string, tokenType TokenType, securityContext SecurityContext) (string, *AuthClaims, error) {
	secret, ttl, err := service.keyFor(tokenType)
	if err != nil {
		return "", nil, err
	}

	issuedAt := service.now()
	claims := &AuthClaims{
		IssuerID:    issuerID,
		AccountID:   accountID,
		Role:        role,
		TokenType:   tokenType,
		IP:          securityContext.IP,
		UserAgent:   securityContext.UserAgent,
		Device:      securityContext.Device,
		Fingerprint: securityContext.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New(),
			Issuer:    constants.AuthIssuer,
			Subject:   issuerID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("sec_token_sign_failed: %w", err)
	}
	return signed, claims, nil
}

/*
Verify checks a session token against the live request context.

Description:
  - Validates the signature and expiry, then enforces the type match and the
    configured IP and fingerprint binding policies.

Parameters:
  - token: the compact JWT to verify.
  - tokenType: the type the caller expects; a refresh token presented where
    an access token is expected fails even when otherwise valid.
  - securityContext: client attributes of the verifying request.

Returns:
  - *AuthClaims: the verified claims.
  - error: one of the sec sentinel errors wrapping the underlying cause.
*/
func (service *TokenService) Verify(token string, tokenType TokenType, securityContext SecurityContext) (*AuthClaims, error) {
	secret, _, err := service.keyFor(tokenType)
	if err != nil {
		return nil, err
	}

	claims := &AuthClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(constants.AuthIssuer),
		jwt.WithTimeFunc(service.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: got %q want %q", ErrTokenTypeMismatch, claims.TokenType, tokenType)
	}
	if err := service.checkIPBinding(claims.IP, securityContext.IP); err != nil {
		return nil, err
	}
	if service.options.FingerprintBinding && claims.Fingerprint != "" &&
		claims.Fingerprint != securityContext.Fingerprint {
		return nil, ErrTokenFingerprint
	}
	return claims, nil
}

// VerifyRequest verifies an access token against the request it arrived on.
// It satisfies the middleware token verifier contract.
func (service *TokenService) VerifyRequest(request *http.Request, token string) (*AuthClaims, error) {
	return service.Verify(token, TokenTypeAccess, ExtractContext(request))
}

// AccessTTL exposes the configured access token lifetime.
func (service *TokenService) AccessTTL() time.Duration { return service.options.AccessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (service *TokenService) RefreshTTL() time.Duration { return service.options.RefreshTTL }

// # Internals

func (service *TokenService) keyFor(tokenType TokenType) ([]byte, time.Duration, error) {
	switch tokenType {
	case TokenTypeAccess:
		return service.options.AccessSecret, service.options.AccessTTL, nil
	case TokenTypeRefresh:
		return service.options.RefreshSecret, service.options.RefreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("sec_token_unknown_type: %q", tokenType)
	}
}

func (service *TokenService) checkIPBinding(issued string, current string) error {
	switch service.options.IPBinding {
	case IPBindingDisabled:
		return nil
	case IPBindingExact:
		if issued != current {
			return fmt.Errorf("%w: issued %s current %s", ErrTokenIPMismatch, issued, current)
		}
		return nil
	case IPBindingSubnet:
		if !sameSubnet(issued, current) {
			return fmt.Errorf("%w: issued %s current %s", ErrTokenIPMismatch, issued, current)
		}
		return nil
	default:
		return ErrTokenIPMismatch
	}
}

// sameSubnet reports whether two addresses share a /24 (IPv4) or /64 (IPv6).
func sameSubnet(a string, b string) bool {
	first, second := net.ParseIP(a), net.ParseIP(b)
	if first == nil || second == nil {
		return false
	}
	if first4, second4 := first.To4(), second.To4(); first4 != nil && second4 != nil {
		mask := net.CIDRMask(24, 32)
		return first4.Mask(mask).Equal(second4.Mask(mask))
	}
	mask := net.CIDRMask(64, 128)
	return first.Mask(mask).Equal(second.Mask(mask))
}
