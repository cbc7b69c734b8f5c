// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
)

const testBotToken = "123456:test-bot-token"

// # Helpers

// newTestVerifier points one provider's endpoint at a local test server.
func newTestVerifier(t *testing.T, provider string, handler http.HandlerFunc) *HTTPProviderVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	verifier := NewProviderVerifier(ProviderVerifierOptions{TelegramBotToken: testBotToken})
	verifier.httpClient = server.Client()
	verifier.endpoints[provider] = server.URL
	return verifier
}

// signedTelegramPayload builds a login-widget field set signed with the bot
// token, the way Telegram hands it to the client.
func signedTelegramPayload(botToken string, fields url.Values) string {
	fields.Set("hash", hex.EncodeToString(telegramSignature(fields, botToken)))
	return fields.Encode()
}

func telegramFields(authDate time.Time) url.Values {
	return url.Values{
		"id":         {"777000"},
		"first_name": {"Acme"},
		"last_name":  {"Founder"},
		"username":   {"acmefounder"},
		"photo_url":  {"https://t.me/i/userpic/acme.jpg"},
		"auth_date":  {strconv.FormatInt(authDate.Unix(), 10)},
	}
}

// # Userinfo Tests

/*
TestProviderVerifier_Github verifies the credential is presented as a bearer
token and the GitHub payload maps into the normalized shape, including the
login fallback for an empty display name.
*/
func TestProviderVerifier_Github(t *testing.T) {
	verifier := newTestVerifier(t, ProviderGithub, func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "Bearer gh-token", request.Header.Get("Authorization"))
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"id":98765,"login":"acmefounder","name":"","email":"founder@acmelabs.io","avatar_url":"https://avatars.example.com/u/98765","html_url":"https://github.com/acmefounder"}`)
	})

	profile, err := verifier.Verify(context.Background(), ProviderGithub, "gh-token")
	require.NoError(t, err)
	assert.Equal(t, ProviderGithub, profile.Provider)
	assert.Equal(t, "98765", profile.ID)
	assert.Equal(t, "acmefounder", profile.Username)
	assert.Equal(t, "acmefounder", profile.DisplayName, "login backfills an empty name")
	assert.Equal(t, "founder@acmelabs.io", profile.Email)
	assert.Equal(t, "https://github.com/acmefounder", profile.ProfileURL)
}

/*
TestProviderVerifier_Google verifies the OIDC userinfo mapping shared by
Google and LinkedIn.
*/
func TestProviderVerifier_Google(t *testing.T) {
	verifier := newTestVerifier(t, ProviderGoogle, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"sub":"g-100","email":"founder@acmelabs.io","name":"Acme Founder","picture":"https://lh3.example.com/avatar.png"}`)
	})

	profile, err := verifier.Verify(context.Background(), ProviderGoogle, "g-token")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, profile.Provider)
	assert.Equal(t, "g-100", profile.ID)
	assert.Equal(t, "Acme Founder", profile.DisplayName)
	assert.Equal(t, "founder@acmelabs.io", profile.Email)
}

/*
TestProviderVerifier_X verifies the nested X payload and the derived profile
URL.
*/
func TestProviderVerifier_X(t *testing.T) {
	verifier := newTestVerifier(t, ProviderX, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"data":{"id":"x-42","name":"Acme Founder","username":"acmefounder","profile_image_url":"https://pbs.example.com/acme.jpg"}}`)
	})

	profile, err := verifier.Verify(context.Background(), ProviderX, "x-token")
	require.NoError(t, err)
	assert.Equal(t, "x-42", profile.ID)
	assert.Equal(t, "https://x.com/acmefounder", profile.ProfileURL)
}

/*
TestProviderVerifier_RejectedCredential verifies a credential the provider
refuses surfaces as Unauthorized, not as an upstream failure.
*/
func TestProviderVerifier_RejectedCredential(t *testing.T) {
	verifier := newTestVerifier(t, ProviderGoogle, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	})

	_, err := verifier.Verify(context.Background(), ProviderGoogle, "stolen-token")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestProviderVerifier_ProviderOutage verifies a 5xx from the provider is an
upstream failure rather than a rejected login.
*/
func TestProviderVerifier_ProviderOutage(t *testing.T) {
	verifier := newTestVerifier(t, ProviderGoogle, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusInternalServerError)
	})

	_, err := verifier.Verify(context.Background(), ProviderGoogle, "g-token")
	require.Error(t, err)
	assert.Equal(t, "UPSTREAM_ERROR", apperr.As(err).Code)
}

/*
TestProviderVerifier_MissingAccountID verifies a 200 payload without an
account id is rejected as an invalid login.
*/
func TestProviderVerifier_MissingAccountID(t *testing.T) {
	verifier := newTestVerifier(t, ProviderGoogle, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"email":"founder@acmelabs.io"}`)
	})

	_, err := verifier.Verify(context.Background(), ProviderGoogle, "g-token")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestProviderVerifier_Boundaries covers the cheap rejections that never reach
the network: empty credentials and unknown providers.
*/
func TestProviderVerifier_Boundaries(t *testing.T) {
	verifier := NewProviderVerifier(ProviderVerifierOptions{})

	_, err := verifier.Verify(context.Background(), ProviderGoogle, "")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	_, err = verifier.Verify(context.Background(), "myspace", "some-token")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

// # Telegram Tests

/*
TestProviderVerifier_Telegram verifies a correctly signed, fresh login
payload resolves to the embedded identity.
*/
func TestProviderVerifier_Telegram(t *testing.T) {
	verifier := NewProviderVerifier(ProviderVerifierOptions{TelegramBotToken: testBotToken})
	payload := signedTelegramPayload(testBotToken, telegramFields(time.Now()))

	profile, err := verifier.Verify(context.Background(), ProviderTelegram, payload)
	require.NoError(t, err)
	assert.Equal(t, ProviderTelegram, profile.Provider)
	assert.Equal(t, "777000", profile.ID)
	assert.Equal(t, "acmefounder", profile.Username)
	assert.Equal(t, "Acme Founder", profile.DisplayName)
}

/*
TestProviderVerifier_TelegramTamperedPayload verifies changing any signed
field after signing breaks the HMAC.
*/
func TestProviderVerifier_TelegramTamperedPayload(t *testing.T) {
	verifier := NewProviderVerifier(ProviderVerifierOptions{TelegramBotToken: testBotToken})
	payload := signedTelegramPayload(testBotToken, telegramFields(time.Now()))

	values, err := url.ParseQuery(payload)
	require.NoError(t, err)
	values.Set("id", "999999") // claim someone else's identity

	_, err = verifier.Verify(context.Background(), ProviderTelegram, values.Encode())
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestProviderVerifier_TelegramStalePayload verifies the freshness window: a
validly signed payload older than a day is refused.
*/
func TestProviderVerifier_TelegramStalePayload(t *testing.T) {
	verifier := NewProviderVerifier(ProviderVerifierOptions{TelegramBotToken: testBotToken})
	payload := signedTelegramPayload(testBotToken, telegramFields(time.Now().Add(-25*time.Hour)))

	_, err := verifier.Verify(context.Background(), ProviderTelegram, payload)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestProviderVerifier_TelegramUnconfigured verifies the telegram door stays
closed when no bot token is configured.
*/
func TestProviderVerifier_TelegramUnconfigured(t *testing.T) {
	verifier := NewProviderVerifier(ProviderVerifierOptions{})
	payload := signedTelegramPayload(testBotToken, telegramFields(time.Now()))

	_, err := verifier.Verify(context.Background(), ProviderTelegram, payload)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}
