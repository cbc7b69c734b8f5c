// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
	"github.com/taibuivan/veriscore/internal/platform/constants"
	"github.com/taibuivan/veriscore/internal/platform/middleware"
	requestutil "github.com/taibuivan/veriscore/internal/platform/request"
	"github.com/taibuivan/veriscore/internal/platform/respond"
	"github.com/taibuivan/veriscore/internal/platform/sec"
	"github.com/taibuivan/veriscore/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the issuer session lifecycle
// entry points (Nonce challenge, Wallet login, Social login, Refresh) plus
// the authenticated profile surface.
type Handler struct {
	authService   *Service
	socialService *SocialService
}

// NewHandler constructs a new [Handler] with its service dependencies.
func NewHandler(authService *Service, socialService *SocialService) *Handler {
	return &Handler{authService: authService, socialService: socialService}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /nonce : Issues a login challenge for a wallet.
//   - POST /login : Verifies a signed challenge and returns a session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/nonce", handler.nonce)
	router.Post("/login", handler.login)
	router.Post("/social/login", handler.socialLogin)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/revoke-all", handler.revokeAll)
		r.Post("/social/link", handler.linkSocial)
		r.Delete("/social/{provider}", handler.unlinkSocial)
	})

	return router
}

// ProfileRoutes returns a [chi.Router] with the authenticated issuer profile
// surface. Mounted separately from the session routes so the refresh cookie
// path can stay scoped to /auth.
func (handler *Handler) ProfileRoutes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Get("/me", handler.getProfile)
	router.Patch("/me", handler.updateProfile)
	router.Get("/me/wallets", handler.listWallets)
	router.Get("/me/socials", handler.listSocials)

	return router
}

// # Request Payloads

type nonceRequest struct {
	Address string `json:"address"`
}

type loginRequest struct {
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	Message   string          `json:"message"`
	Signature json.RawMessage `json:"signature"`
}

type socialLoginRequest struct {
	Provider  string `json:"provider"`
	Assertion string `json:"assertion"`
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
	Website     *string `json:"website"`
}

/*
Nonce issues a single-use login challenge for a wallet address.

POST /api/v1/auth/nonce

Description: Generates a fresh nonce bound to the address and returns the
canonical challenge the wallet must sign. Re-requesting overwrites any
previous unconsumed nonce for the same address.

Request:
  - Body: nonceRequest (Address)

Response:
  - 200: Challenge: Nonce, address, timestamp and domain to sign
  - 400: ErrInvalidJSON: Bad input or malformed address
*/
func (handler *Handler) nonce(writer http.ResponseWriter, request *http.Request) {
	var input nonceRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldAddress, input.Address).
		WalletAddress(FieldAddress, input.Address)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	challenge, err := handler.authService.GenerateNonce(request.Context(), input.Address)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	message, err := challenge.Message()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldNonce:   challenge.Nonce,
		FieldMessage: message,
		"address":    challenge.Address,
		"timestamp":  challenge.Timestamp,
		"domain":     challenge.Domain,
	})
}

/*
Login verifies a signed challenge and establishes an issuer session.

POST /api/v1/auth/login

Description: Runs the full wallet verification pipeline, auto-provisions
first-time issuers, generates JWT access tokens and injects a secure refresh
token cookie into the response.

Request:
  - Body: loginRequest (Address, Network, Message, Signature)

Response:
  - 200: Session: Access token and Issuer profile
  - 401: ErrUnauthorized: Invalid signature (single opaque reason)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldAddress, input.Address).
		WalletAddress(FieldAddress, input.Address).
		Required(FieldMessage, input.Message).
		Custom(FieldSignature, len(input.Signature) == 0, "This field is required").
		OneOf(FieldNetwork, input.Network,
			string(NetworkEthereum), string(NetworkPolygon), string(NetworkBSC),
			string(NetworkSolana), string(NetworkAptos))

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.WalletLogin(request.Context(), WalletLoginInput{
		Address:   input.Address,
		Network:   Network(input.Network),
		Message:   input.Message,
		Signature: input.Signature,
	}, sec.ExtractContext(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(session.AccessTokenExpiresIn / time.Second),
		FieldIssuer:      session.Issuer,
	})
}

/*
SocialLogin authenticates a provider-issued credential.

POST /api/v1/auth/social/login

Description: The body carries the credential the provider handed the client
(an OAuth bearer token, or the signed Telegram payload). The credential is
verified with the provider server-side; the verified identity then resolves
or provisions the issuer and a session is established.

Request:
  - Body: socialLoginRequest (Provider, Assertion)

Response:
  - 200: Session: Access token and Issuer profile
  - 400: ErrInvalidJSON: Unsupported provider or missing fields
  - 401: ErrUnauthorized: Credential rejected by the provider, or issuer
    barred from authenticating
*/
func (handler *Handler) socialLogin(writer http.ResponseWriter, request *http.Request) {
	var input socialLoginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldProvider, input.Provider).
		OneOf(FieldProvider, input.Provider, SupportedProviders...).
		Required(FieldAssertion, input.Assertion)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.socialService.HandleSocialLogin(request.Context(), input.Provider, input.Assertion, sec.ExtractContext(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(session.AccessTokenExpiresIn / time.Second),
		FieldIssuer:      session.Issuer,
	})
}

/*
Refresh issues a new token pair using a valid refresh token.

POST /api/v1/auth/refresh

Description: Rotates the session by validating the refresh token cookie
against the persisted state machine and issuing a fresh pair. The old
refresh token is permanently retired.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing, rotated, revoked or expired refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.RefreshSession(request.Context(), cookie.Value, sec.ExtractContext(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(session.AccessTokenExpiresIn / time.Second),
	})
}

/*
Logout terminates the current issuer session.

POST /api/v1/auth/logout

Description: Revokes the refresh token (if present) and clears the security
cookie from the client. Always succeeds, even with no active session.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)

	if err == nil && cookie != nil && cookie.Value != "" {
		_ = handler.authService.Logout(request.Context(), cookie.Value, sec.ExtractContext(request))
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
RevokeAll terminates every active session of the authenticated issuer.

POST /api/v1/auth/revoke-all

Description: Revokes all active refresh tokens for the issuer in one pass
and clears the current cookie. Used after a suspected wallet compromise.

Response:
  - 200: Count of revoked sessions
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) revokeAll(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	count, err := handler.authService.RevokeAllSessions(request.Context(), issuerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearRefreshCookie(writer)
	respond.OK(writer, map[string]any{"revoked": count})
}

/*
LinkSocial attaches a provider identity to the authenticated issuer.

POST /api/v1/auth/social/link

Description: The credential is verified with the provider exactly like a
social login before any link is created.

Request:
  - Body: socialLoginRequest (Provider, Assertion)

Response:
  - 201: SocialAccount: The created link
  - 401: ErrUnauthorized: Credential rejected by the provider
  - 409: ErrConflict: Identity already linked to an issuer
*/
func (handler *Handler) linkSocial(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input socialLoginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldProvider, input.Provider).
		OneOf(FieldProvider, input.Provider, SupportedProviders...).
		Required(FieldAssertion, input.Assertion)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	social, err := handler.socialService.LinkSocialAccount(request.Context(), issuerID, input.Provider, input.Assertion)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, social)
}

/*
UnlinkSocial removes a provider link from the authenticated issuer.

DELETE /api/v1/auth/social/{provider}

Response:
  - 204: No Content: Link removed and penalty applied
  - 404: ErrNotFound: No link for this provider
*/
func (handler *Handler) unlinkSocial(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	provider := chi.URLParam(request, FieldProvider)
	if provider == "" {
		respond.Error(writer, request, validate.RequiredError(FieldProvider, "is required"))
		return
	}

	if err := handler.socialService.UnlinkSocialAccount(request.Context(), issuerID, provider); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GetProfile returns the authenticated issuer's public projection.

GET /api/v1/issuers/me

Response:
  - 200: Profile: Issuer projection with linked wallets and socials
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) getProfile(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.GetProfile(request.Context(), issuerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}

/*
UpdateProfile applies a partial update to the issuer's mutable fields.

PATCH /api/v1/issuers/me

Description: Fields absent from the body are left untouched.

Request:
  - Body: updateProfileRequest (DisplayName, Bio, AvatarURL, Website)

Response:
  - 200: Profile: Updated projection
  - 400: ErrInvalidJSON: Validation failure
*/
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateProfileRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if input.DisplayName != nil {
		validator.Required(FieldDisplayName, *input.DisplayName).
			MaxLen(FieldDisplayName, *input.DisplayName, 64)
	}
	if input.Bio != nil {
		validator.MaxLen("bio", *input.Bio, 500)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.UpdateProfile(request.Context(), issuerID, UpdateProfileInput{
		DisplayName: input.DisplayName,
		Bio:         input.Bio,
		AvatarURL:   input.AvatarURL,
		Website:     input.Website,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}

/*
ListWallets returns the wallet links of the authenticated issuer.

GET /api/v1/issuers/me/wallets

Response:
  - 200: []WalletAccount
*/
func (handler *Handler) listWallets(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	wallets, err := handler.authService.ListWallets(request.Context(), issuerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, wallets)
}

/*
ListSocials returns the social links of the authenticated issuer.

GET /api/v1/issuers/me/socials

Response:
  - 200: []SocialAccount
*/
func (handler *Handler) listSocials(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	socials, err := handler.authService.ListSocials(request.Context(), issuerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, socials)
}

// # Cookie Helpers

func setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
