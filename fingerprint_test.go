package idempotency

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func TestFingerprint_Deterministic(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments?currency=USD", strings.NewReader(`{"amount":100}`))
	req1.Header.Set("Content-Type", "application/json")

	req2 := httptest.NewRequest("POST", "/payments?currency=USD", strings.NewReader(`{"amount":100}`))
	req2.Header.Set("Content-Type", "application/json")

	fp1, ok, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	require.True(t, ok)

	fp2, ok, err := fingerprint(req2, cfg)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64) // hex-encoded sha256
}

func TestFingerprint_QueryStringIncluded(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments?currency=USD", nil)
	req2 := httptest.NewRequest("POST", "/payments?currency=EUR", nil)

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprint_MethodIncluded(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments", nil)
	req2 := httptest.NewRequest("PUT", "/payments", nil)

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprint_DefaultIgnoredHeaders(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments", nil)
	req1.Header.Set("User-Agent", "curl/8.0")

	req2 := httptest.NewRequest("POST", "/payments", nil)
	req2.Header.Set("User-Agent", "Mozilla/5.0")

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_NonIgnoredHeaderChangesDigest(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments", nil)
	req1.Header.Set("X-Tenant", "alpha")

	req2 := httptest.NewRequest("POST", "/payments", nil)
	req2.Header.Set("X-Tenant", "beta")

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprint_IgnoredHeaderValue(t *testing.T) {
	cfg := testConfig(WithIgnoredHeaderValue("X-Variant", "control"))

	ignored := httptest.NewRequest("POST", "/payments", nil)
	ignored.Header.Set("X-Variant", "control")

	absent := httptest.NewRequest("POST", "/payments", nil)

	other := httptest.NewRequest("POST", "/payments", nil)
	other.Header.Set("X-Variant", "experiment")

	fpIgnored, _, err := fingerprint(ignored, cfg)
	require.NoError(t, err)
	fpAbsent, _, err := fingerprint(absent, cfg)
	require.NoError(t, err)
	fpOther, _, err := fingerprint(other, cfg)
	require.NoError(t, err)

	// The exact ignored value hashes like an absent header; any other value
	// still participates.
	assert.Equal(t, fpIgnored, fpAbsent)
	assert.NotEqual(t, fpIgnored, fpOther)
}

func TestFingerprint_IgnoredHeaderValueMultiValued(t *testing.T) {
	cfg := testConfig(WithIgnoredHeaderValue("X-Variant", "control"))

	// Only the matching value is excluded; the remaining value of the same
	// header still participates in the hash.
	multi := httptest.NewRequest("POST", "/payments", nil)
	multi.Header.Add("X-Variant", "control")
	multi.Header.Add("X-Variant", "experiment")

	single := httptest.NewRequest("POST", "/payments", nil)
	single.Header.Set("X-Variant", "experiment")

	absent := httptest.NewRequest("POST", "/payments", nil)

	fpMulti, _, err := fingerprint(multi, cfg)
	require.NoError(t, err)
	fpSingle, _, err := fingerprint(single, cfg)
	require.NoError(t, err)
	fpAbsent, _, err := fingerprint(absent, cfg)
	require.NoError(t, err)

	assert.Equal(t, fpSingle, fpMulti)
	assert.NotEqual(t, fpAbsent, fpMulti)
}

func TestFingerprint_IgnoreAllHeaders(t *testing.T) {
	cfg := testConfig(WithIgnoreAllHeaders())

	req1 := httptest.NewRequest("POST", "/payments", nil)
	req1.Header.Set("X-Tenant", "alpha")

	req2 := httptest.NewRequest("POST", "/payments", nil)
	req2.Header.Set("X-Tenant", "beta")

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_IgnoreBody(t *testing.T) {
	cfg := testConfig(WithIgnoreBody(true))

	req1 := httptest.NewRequest("POST", "/payments", strings.NewReader("body A"))
	req2 := httptest.NewRequest("POST", "/payments", strings.NewReader("body B"))

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_BodyIncludedByDefault(t *testing.T) {
	cfg := testConfig()

	req1 := httptest.NewRequest("POST", "/payments", strings.NewReader("body A"))
	req2 := httptest.NewRequest("POST", "/payments", strings.NewReader("body B"))

	fp1, _, err := fingerprint(req1, cfg)
	require.NoError(t, err)
	fp2, _, err := fingerprint(req2, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprint_BodyRestoredAfterHashing(t *testing.T) {
	cfg := testConfig()

	req := httptest.NewRequest("POST", "/payments", strings.NewReader(`{"amount":100}`))

	_, ok, err := fingerprint(req, cfg)
	require.NoError(t, err)
	require.True(t, ok)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"amount":100}`, string(body))
}

func TestFingerprint_DirectKeyMode(t *testing.T) {
	cfg := testConfig(WithDirectKeyHeader(""))

	req := httptest.NewRequest("POST", "/payments", strings.NewReader("ignored"))
	req.Header.Set(DefaultDirectKeyHeader, "key-1")

	fp, ok, err := fingerprint(req, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-1", fp)

	// The body is never read in this mode.
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "ignored", string(body))
}

func TestFingerprint_DirectKeyModeHeaderAbsent(t *testing.T) {
	cfg := testConfig(WithDirectKeyHeader("X-Dedup-Key"))

	req := httptest.NewRequest("POST", "/payments", nil)

	_, ok, err := fingerprint(req, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}
