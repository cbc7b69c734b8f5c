// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
)

// # Provider Identity Verification

const (
	// providerRequestTimeout bounds every provider userinfo call.
	providerRequestTimeout = 10 * time.Second

	// telegramAuthMaxAge bounds the age of a Telegram login payload. The
	// payload carries no nonce, so freshness is the only replay guard.
	telegramAuthMaxAge = 24 * time.Hour
)

/*
ProviderVerifier exchanges a provider-issued credential for the profile it
belongs to.

Description: Social identities are a login credential, so the profile MUST
come from the provider itself, never from the request body. Implementations
present the client-supplied credential back to the provider and return the
identity the provider vouches for. A credential the provider rejects fails
with Unauthorized.
*/
type ProviderVerifier interface {
	Verify(context context.Context, provider string, assertion string) (NormalizedProfile, error)
}

// HTTPProviderVerifier verifies provider credentials against the providers'
// own identity endpoints: OAuth bearer tokens are resolved through the
// userinfo endpoint of each provider, Telegram login payloads through the
// bot-token HMAC scheme.
type HTTPProviderVerifier struct {
	httpClient       *http.Client
	endpoints        map[string]string
	telegramBotToken string
	now              func() time.Time
}

// ProviderVerifierOptions configures a [HTTPProviderVerifier].
type ProviderVerifierOptions struct {
	// TelegramBotToken signs Telegram login payloads. Empty disables the
	// Telegram provider entirely.
	TelegramBotToken string
}

// NewProviderVerifier constructs the production verifier with the canonical
// provider endpoints.
func NewProviderVerifier(options ProviderVerifierOptions) *HTTPProviderVerifier {
	return &HTTPProviderVerifier{
		httpClient: &http.Client{Timeout: providerRequestTimeout},
		endpoints: map[string]string{
			ProviderGoogle:   "https://openidconnect.googleapis.com/v1/userinfo",
			ProviderX:        "https://api.x.com/2/users/me?user.fields=profile_image_url",
			ProviderGithub:   "https://api.github.com/user",
			ProviderLinkedin: "https://api.linkedin.com/v2/userinfo",
		},
		telegramBotToken: options.TelegramBotToken,
		now:              time.Now,
	}
}

/*
Verify resolves a provider credential into the verified profile.

Parameters:
  - context: context.Context
  - provider: string (one of [SupportedProviders])
  - assertion: string (bearer token, or the signed Telegram payload)

Returns:
  - NormalizedProfile: The identity the provider vouches for
  - error: Validation for unknown providers, Unauthorized for rejected
    credentials, Upstream for provider outages
*/
func (verifier *HTTPProviderVerifier) Verify(context context.Context, provider string, assertion string) (NormalizedProfile, error) {
	provider = strings.ToLower(provider)
	if assertion == "" {
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}

	var profile NormalizedProfile
	if provider == ProviderTelegram {
		verified, err := verifier.verifyTelegram(assertion)
		if err != nil {
			return NormalizedProfile{}, err
		}
		profile = verified
	} else {
		endpoint, found := verifier.endpoints[provider]
		if !found {
			return NormalizedProfile{}, apperr.ValidationError(fmt.Sprintf("Unsupported provider %q", provider))
		}
		body, err := verifier.fetchUserInfo(context, provider, endpoint, assertion)
		if err != nil {
			return NormalizedProfile{}, err
		}
		profile, err = decodeProviderProfile(provider, body)
		if err != nil {
			return NormalizedProfile{}, fmt.Errorf("provider_verifier_decode_failed: %w", err)
		}
	}

	if profile.ID == "" {
		// A verified payload without an account id is not an identity we
		// can trust.
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}
	profile.Provider = provider
	return profile, nil
}

// fetchUserInfo presents the bearer credential to the provider's identity
// endpoint and returns the raw response body.
func (verifier *HTTPProviderVerifier) fetchUserInfo(context context.Context, provider string, endpoint string, assertion string) ([]byte, error) {
	request, err := http.NewRequestWithContext(context, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("provider_verifier_build_request_failed: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+assertion)

	response, err := verifier.httpClient.Do(request)
	if err != nil {
		return nil, apperr.Upstream(provider, fmt.Errorf("provider_verifier_request_failed: %w", err))
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		// The provider itself refused the credential.
		return nil, apperr.Unauthorized("Invalid login")
	default:
		return nil, apperr.Upstream(provider, fmt.Errorf("provider_userinfo_status_%d", response.StatusCode))
	}

	decoded := json.RawMessage{}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, apperr.Upstream(provider, fmt.Errorf("provider_verifier_read_failed: %w", err))
	}
	return decoded, nil
}

// decodeProviderProfile maps a provider-specific userinfo payload into the
// internal normalized shape. Provider payloads never travel past this point.
func decodeProviderProfile(provider string, body []byte) (NormalizedProfile, error) {
	switch provider {

	case ProviderGoogle, ProviderLinkedin:
		// Both speak the OIDC userinfo schema.
		var payload struct {
			Sub     string `json:"sub"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return NormalizedProfile{}, err
		}
		return NormalizedProfile{
			ID:          payload.Sub,
			Email:       payload.Email,
			DisplayName: payload.Name,
			AvatarURL:   payload.Picture,
		}, nil

	case ProviderGithub:
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
			HTMLURL   string `json:"html_url"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return NormalizedProfile{}, err
		}
		profile := NormalizedProfile{
			Username:    payload.Login,
			Email:       payload.Email,
			DisplayName: payload.Name,
			AvatarURL:   payload.AvatarURL,
			ProfileURL:  payload.HTMLURL,
		}
		if payload.ID != 0 {
			profile.ID = strconv.FormatInt(payload.ID, 10)
		}
		if profile.DisplayName == "" {
			profile.DisplayName = payload.Login
		}
		return profile, nil

	case ProviderX:
		var payload struct {
			Data struct {
				ID              string `json:"id"`
				Name            string `json:"name"`
				Username        string `json:"username"`
				ProfileImageURL string `json:"profile_image_url"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return NormalizedProfile{}, err
		}
		profile := NormalizedProfile{
			ID:          payload.Data.ID,
			Username:    payload.Data.Username,
			DisplayName: payload.Data.Name,
			AvatarURL:   payload.Data.ProfileImageURL,
		}
		if payload.Data.Username != "" {
			profile.ProfileURL = "https://x.com/" + payload.Data.Username
		}
		return profile, nil

	default:
		return NormalizedProfile{}, fmt.Errorf("provider_verifier_unknown_provider: %q", provider)
	}
}

// # Telegram Login Widget

/*
verifyTelegram checks a Telegram login payload.

Description: Telegram has no bearer-token userinfo endpoint. The login
widget hands the client a field set signed with HMAC-SHA256 under
SHA256(botToken); the signature proves the payload came from Telegram for
this bot. The assertion is that field set, URL-query encoded.
*/
func (verifier *HTTPProviderVerifier) verifyTelegram(assertion string) (NormalizedProfile, error) {
	if verifier.telegramBotToken == "" {
		return NormalizedProfile{}, apperr.ValidationError("The telegram provider is not configured")
	}

	values, err := url.ParseQuery(assertion)
	if err != nil {
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}
	presented, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(presented) == 0 {
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}

	if !hmac.Equal(presented, telegramSignature(values, verifier.telegramBotToken)) {
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || verifier.now().Sub(time.Unix(authDate, 0)) > telegramAuthMaxAge {
		return NormalizedProfile{}, apperr.Unauthorized("Invalid login")
	}

	displayName := strings.TrimSpace(values.Get("first_name") + " " + values.Get("last_name"))
	return NormalizedProfile{
		ID:          values.Get("id"),
		Username:    values.Get("username"),
		DisplayName: displayName,
		AvatarURL:   values.Get("photo_url"),
	}, nil
}

// telegramSignature computes the HMAC Telegram uses: every field except the
// hash itself, sorted, joined by newlines, keyed by SHA256(botToken).
func telegramSignature(values url.Values, botToken string) []byte {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return mac.Sum(nil)
}
