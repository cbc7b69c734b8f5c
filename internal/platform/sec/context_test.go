// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPHeaderPriority(t *testing.T) {
	request := httptest.NewRequest("GET", "/", nil)
	request.RemoteAddr = "192.0.2.1:1234"
	request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	request.Header.Set("X-Client-IP", "203.0.113.9")

	assert.Equal(t, "203.0.113.9", ClientIP(request))
}

func TestClientIPForwardedForFirstEntry(t *testing.T) {
	request := httptest.NewRequest("GET", "/", nil)
	request.RemoteAddr = "192.0.2.1:1234"
	request.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")

	assert.Equal(t, "203.0.113.7", ClientIP(request))
}

func TestClientIPSocketFallback(t *testing.T) {
	request := httptest.NewRequest("GET", "/", nil)
	request.RemoteAddr = "192.0.2.1:9999"

	assert.Equal(t, "192.0.2.1", ClientIP(request))
}

func TestExtractContextParsesDevice(t *testing.T) {
	request := httptest.NewRequest("GET", "/", nil)
	request.RemoteAddr = "192.0.2.1:1234"
	request.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	securityContext := ExtractContext(request)

	assert.Equal(t, "192.0.2.1", securityContext.IP)
	assert.Equal(t, "Chrome", securityContext.Device.Browser)
	assert.Equal(t, "Windows", securityContext.Device.OS)
	assert.False(t, securityContext.Device.Mobile)
	assert.NotEmpty(t, securityContext.Fingerprint)
}

func TestExtractContextFingerprintIsStable(t *testing.T) {
	build := func() SecurityContext {
		request := httptest.NewRequest("GET", "/", nil)
		request.RemoteAddr = "192.0.2.1:1234"
		request.Header.Set("User-Agent", "Mozilla/5.0")
		request.Header.Set("Accept-Language", "en-US")
		return ExtractContext(request)
	}

	assert.Equal(t, build().Fingerprint, build().Fingerprint)

	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "192.0.2.2:1234"
	other.Header.Set("User-Agent", "Mozilla/5.0")
	assert.NotEqual(t, build().Fingerprint, ExtractContext(other).Fingerprint)
}
