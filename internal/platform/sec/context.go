// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"
)

// # Security Context

// DeviceInfo describes the client device as parsed from the User-Agent header.
type DeviceInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Device         string `json:"device,omitempty"`
	Mobile         bool   `json:"mobile,omitempty"`
	Bot            bool   `json:"bot,omitempty"`
}

// SecurityContext captures the client-identifying attributes of a single
// HTTP request. It is embedded into session tokens at issuance and compared
// against the live request at verification.
type SecurityContext struct {
	IP          string     `json:"ip"`
	UserAgent   string     `json:"userAgent,omitempty"`
	Device      DeviceInfo `json:"device,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// ipHeaderPriority lists the proxy headers consulted for the client address,
// most trustworthy first. The socket address is the fallback.
var ipHeaderPriority = []string{
	"x-client-ip",
	"x-forwarded-for",
	"cf-connecting-ip",
	"x-real-ip",
	"x-forwarded",
	"forwarded-for",
	"x-cluster-client-ip",
}

/*
ExtractContext derives the [SecurityContext] for an incoming request.

Description:
  - Resolves the client IP through the proxy header chain, parses the
    User-Agent into device attributes, and computes a stable fingerprint
    over the identifying headers.

Parameters:
  - request: the incoming HTTP request.

Returns:
  - SecurityContext: never empty; IP falls back to the socket peer address.
*/
func ExtractContext(request *http.Request) SecurityContext {
	ip := ClientIP(request)
	rawAgent := request.UserAgent()
	return SecurityContext{
		IP:          ip,
		UserAgent:   rawAgent,
		Device:      parseDevice(rawAgent),
		Fingerprint: fingerprint(ip, rawAgent, request.Header.Get("Accept-Language")),
	}
}

// ClientIP returns the best-effort client address for the request.
// Multi-valued headers keep only the first (origin) entry.
func ClientIP(request *http.Request) string {
	for _, header := range ipHeaderPriority {
		value := request.Header.Get(header)
		if value == "" {
			continue
		}
		if comma := strings.IndexByte(value, ','); comma >= 0 {
			value = value[:comma]
		}
		if ip := strings.TrimSpace(value); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}

func parseDevice(rawAgent string) DeviceInfo {
	if rawAgent == "" {
		return DeviceInfo{}
	}
	parsed := useragent.Parse(rawAgent)
	return DeviceInfo{
		Browser:        parsed.Name,
		BrowserVersion: parsed.Version,
		OS:             parsed.OS,
		Device:         parsed.Device,
		Mobile:         parsed.Mobile || parsed.Tablet,
		Bot:            parsed.Bot,
	}
}

// fingerprint hashes the identifying headers into a compact opaque value.
// It deliberately excludes volatile headers so the value survives page loads.
func fingerprint(parts ...string) string {
	digest := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
