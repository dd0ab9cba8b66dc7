package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// fingerprint computes the request's cache identity. The boolean reports
// whether a fingerprint exists; when false the request proceeds uncached.
//
// In direct-key mode the configured header's value is the fingerprint,
// verbatim. The body and other headers are never read in this mode, which
// keeps it the cheapest path and makes the cache key equal to the key the
// client sees.
func fingerprint(r *http.Request, cfg *Config) (string, bool, error) {
	if cfg.DirectKeyMode {
		key := r.Header.Get(cfg.DirectKeyHeader)
		if key == "" {
			return "", false, nil
		}
		return key, true, nil
	}
	return hashRequest(r, cfg)
}

// hashRequest digests the canonical request representation: method, path
// with query string, the filtered headers sorted case-insensitively by name,
// then the raw body unless ignored. Headers are sorted because wire order is
// not stable across logically identical requests.
//
// Hashing the body requires buffering it in full; an equivalent body is
// restored on the request so the downstream handler is unaffected.
func hashRequest(r *http.Request, cfg *Config) (string, bool, error) {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.RequestURI()))
	h.Write([]byte{0})

	if !cfg.IgnoreAllHeaders {
		names := make([]string, 0, len(r.Header))
		for name := range r.Header {
			if _, ignored := cfg.IgnoredRequestHeaders[strings.ToLower(name)]; !ignored {
				names = append(names, name)
			}
		}
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
		for _, name := range names {
			lower := strings.ToLower(name)
			ignoredValue, hasIgnoredValue := cfg.IgnoredHeaderValues[lower]
			for _, value := range r.Header.Values(name) {
				// Value-specific exclusion drops only the matching value;
				// other values of the same header are still hashed.
				if hasIgnoredValue && value == ignoredValue {
					continue
				}
				h.Write([]byte(lower))
				h.Write([]byte{':'})
				h.Write([]byte(value))
				h.Write([]byte{0})
			}
		}
	}

	if !cfg.IgnoreBody && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", false, fmt.Errorf("read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}

	return hex.EncodeToString(h.Sum(nil)), true, nil
}
