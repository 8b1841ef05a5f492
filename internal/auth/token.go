// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package auth derives the Sec-MS-GEC token Edge TTS requires on every new
// connection: a SHA-256 digest of a Windows FILETIME-epoch tick count plus
// a fixed salt, recomputed per connection attempt (spec.md §4.3).
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// windowsEpochOffsetSeconds is the gap between the Unix epoch
	// (1970-01-01) and the Windows FILETIME epoch (1601-01-01), in seconds.
	windowsEpochOffsetSeconds = 11_644_473_600
	// ticksPerSecond is the number of 100-nanosecond FILETIME ticks in a
	// second.
	ticksPerSecond = 10_000_000

	tokenSalt = "MSEdgeSpeechTTS"

	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	secMsGecVersion    = "1-130.0.2849.68"

	wsURLTemplate = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1" +
		"?TrustedClientToken=" + trustedClientToken +
		"&Sec-MS-GEC={secMsGec}&Sec-MS-GEC-Version={secMsGecVersion}&ConnectionId={connectionId}"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
	origin = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
)

// Ticks returns the Windows FILETIME-epoch tick count for t.
func Ticks(t time.Time) int64 {
	return (t.Unix() + windowsEpochOffsetSeconds) * ticksPerSecond
}

// GenerateToken computes the Sec-MS-GEC token for the given wall-clock
// time: SHA256(ascii("{ticks}MSEdgeSpeechTTS")), hex, uppercase.
func GenerateToken(t time.Time) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%d%s", Ticks(t), tokenSalt)))
	return strings.ToUpper(hex.EncodeToString(digest[:]))
}

// SecMSGECVersion is the fixed client version string Edge TTS expects
// alongside the token.
func SecMSGECVersion() string {
	return secMsGecVersion
}

// BuildURL substitutes the computed token, the fixed version string, and
// connectionId into the Edge TTS WebSocket URL template.
func BuildURL(connectionId string, now time.Time) string {
	token := GenerateToken(now)
	replacer := strings.NewReplacer(
		"{secMsGec}", token,
		"{secMsGecVersion}", secMsGecVersion,
		"{connectionId}", connectionId,
	)
	return replacer.Replace(wsURLTemplate)
}

// Headers returns the WebSocket handshake headers Edge TTS requires
// alongside the URL's query parameters.
func Headers(connectionId string, now time.Time) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Origin", origin)
	h.Set("Sec-MS-GEC", GenerateToken(now))
	h.Set("Sec-MS-GEC-Version", secMsGecVersion)
	return h
}

// ParsedQuery is a convenience for tests that want to assert on individual
// query parameters rather than the raw URL string.
func ParsedQuery(rawURL string) (url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return u.Query(), nil
}
