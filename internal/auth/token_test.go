package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicks_KnownEpoch(t *testing.T) {
	unixEpoch := time.Unix(0, 0).UTC()
	assert.Equal(t, int64(windowsEpochOffsetSeconds*ticksPerSecond), Ticks(unixEpoch))
}

func TestGenerateToken_MatchesReferenceDigest(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	want := sha256.Sum256([]byte(fmt.Sprintf("%d%s", Ticks(now), tokenSalt)))
	assert.Equal(t, strings.ToUpper(hex.EncodeToString(want[:])), GenerateToken(now))
}

func TestGenerateToken_IsUppercaseHex(t *testing.T) {
	token := GenerateToken(time.Now())
	assert.Len(t, token, 64)
	assert.Equal(t, strings.ToUpper(token), token)
	_, err := hex.DecodeString(token)
	require.NoError(t, err)
}

func TestBuildURL_SubstitutesPlaceholders(t *testing.T) {
	now := time.Now()
	raw := BuildURL("deadbeef", now)
	assert.NotContains(t, raw, "{secMsGec}")
	assert.NotContains(t, raw, "{secMsGecVersion}")
	assert.NotContains(t, raw, "{connectionId}")

	q, err := ParsedQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", q.Get("ConnectionId"))
	assert.Equal(t, GenerateToken(now), q.Get("Sec-MS-GEC"))
	assert.Equal(t, secMsGecVersion, q.Get("Sec-MS-GEC-Version"))
	assert.Equal(t, trustedClientToken, q.Get("TrustedClientToken"))
}

func TestHeaders_IncludesSecMSGEC(t *testing.T) {
	now := time.Now()
	h := Headers("deadbeef", now)
	assert.Equal(t, GenerateToken(now), h.Get("Sec-MS-GEC"))
	assert.Equal(t, secMsGecVersion, h.Get("Sec-MS-GEC-Version"))
	assert.NotEmpty(t, h.Get("User-Agent"))
	assert.Contains(t, h.Get("Origin"), "chrome-extension://")
}
