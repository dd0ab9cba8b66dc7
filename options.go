package idempotency

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDirectKeyHeader is the request header consulted in direct-key mode.
	DefaultDirectKeyHeader = "idempotency-key"

	// DefaultReplayHeader is the response header set on replayed responses.
	DefaultReplayHeader = "idempotency-replayed"

	// DefaultSessionCookie is the cookie the default identity extractor reads.
	DefaultSessionCookie = "session"

	// DefaultTTL is the default time-to-live for cached responses.
	DefaultTTL = 5 * time.Minute
)

// IdentityFunc extracts the caller identity used to namespace cache keys,
// so that identical fingerprints from different callers never collide.
// Returning an error disables caching for that request.
type IdentityFunc func(r *http.Request) (string, error)

// Config holds middleware configuration. It is built once by Middleware and
// shared read-only across all requests; none of its fields may be mutated
// after construction.
type Config struct {
	// DirectKeyMode uses the value of DirectKeyHeader verbatim as the
	// fingerprint instead of hashing the request.
	DirectKeyMode   bool
	DirectKeyHeader string

	IgnoreBody       bool
	IgnoreAllHeaders bool

	// IgnoredRequestHeaders are excluded from hashing, keyed by lower-case name.
	IgnoredRequestHeaders map[string]struct{}

	// IgnoredHeaderValues excludes a header from hashing only when it is
	// present with exactly the mapped value. The same header carrying a
	// different value is still hashed.
	IgnoredHeaderValues map[string]string

	// IgnoredStatusCodes are response statuses that are never cached.
	IgnoredStatusCodes map[int]struct{}

	ReplayHeader string
	TTL          time.Duration

	Identity IdentityFunc

	// SharedExecution collapses concurrent requests with the same cache key
	// into a single handler execution.
	SharedExecution bool

	Logger zerolog.Logger
}

// defaultIgnoredHeaders are request headers that vary between clients and
// user agents without changing the meaning of the request.
var defaultIgnoredHeaders = []string{
	"user-agent",
	"accept",
	"accept-encoding",
	"accept-language",
	"cache-control",
	"connection",
	"cookie",
	"host",
	"pragma",
	"referer",
	"sec-fetch-dest",
	"sec-fetch-mode",
	"sec-fetch-site",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
}

// defaultIgnoredStatusCodes are outcomes that should not be frozen for the
// TTL window: a legitimate retry after a transient failure or a fixed client
// error must reach the handler again.
var defaultIgnoredStatusCodes = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

func defaultConfig() *Config {
	cfg := &Config{
		DirectKeyHeader:       DefaultDirectKeyHeader,
		ReplayHeader:          DefaultReplayHeader,
		TTL:                   DefaultTTL,
		Identity:              IdentityFromCookie(DefaultSessionCookie),
		IgnoredRequestHeaders: make(map[string]struct{}),
		IgnoredHeaderValues:   make(map[string]string),
		IgnoredStatusCodes:    make(map[int]struct{}),
		Logger:                log.With().Str("component", "idempotency").Logger(),
	}

	for _, name := range defaultIgnoredHeaders {
		cfg.IgnoredRequestHeaders[name] = struct{}{}
	}
	for _, code := range defaultIgnoredStatusCodes {
		cfg.IgnoredStatusCodes[code] = struct{}{}
	}

	return cfg
}

// Option is a functional option for configuring the middleware.
type Option func(*Config)

// WithDirectKeyHeader switches the middleware into direct-key mode: the named
// request header's value is used verbatim as the fingerprint, and requests
// without the header proceed uncached. The client-supplied key fully
// determines identity, so all other headers and the body are ignored.
// An empty name keeps the default header.
func WithDirectKeyHeader(name string) Option {
	return func(c *Config) {
		c.DirectKeyMode = true
		c.IgnoreAllHeaders = true
		c.IgnoreBody = true
		if name != "" {
			c.DirectKeyHeader = name
		}
	}
}

// WithTTL sets the time-to-live for cached responses.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TTL = ttl
	}
}

// WithIgnoreBody controls whether the request body participates in hashing.
// Ignoring the body means two requests with different bodies but identical
// method, path, and headers are treated as the same logical request.
func WithIgnoreBody(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreBody = ignore
	}
}

// WithIgnoreAllHeaders excludes every request header from hashing; only the
// method, path, and body determine the fingerprint.
func WithIgnoreAllHeaders() Option {
	return func(c *Config) {
		c.IgnoreAllHeaders = true
	}
}

// WithIgnoredHeader excludes the named request header from hashing.
func WithIgnoredHeader(name string) Option {
	return func(c *Config) {
		c.IgnoredRequestHeaders[strings.ToLower(name)] = struct{}{}
	}
}

// WithIgnoredHeaderValue excludes the named header from hashing only when it
// carries exactly the given value. The same header with a different value is
// still hashed.
func WithIgnoredHeaderValue(name, value string) Option {
	return func(c *Config) {
		c.IgnoredHeaderValues[strings.ToLower(name)] = value
	}
}

// WithIgnoredStatusCode adds a response status code that is never cached.
func WithIgnoredStatusCode(code int) Option {
	return func(c *Config) {
		c.IgnoredStatusCodes[code] = struct{}{}
	}
}

// WithReplayHeader sets the name of the header added to replayed responses.
func WithReplayHeader(name string) Option {
	return func(c *Config) {
		c.ReplayHeader = name
	}
}

// WithIdentity sets the caller identity extractor.
func WithIdentity(fn IdentityFunc) Option {
	return func(c *Config) {
		c.Identity = fn
	}
}

// WithSharedExecution deduplicates concurrent requests with the same cache
// key into a single handler execution. Late arrivals wait for the in-flight
// execution and receive its response marked as a replay, closing the window
// in which identical concurrent requests could both run the handler.
func WithSharedExecution() Option {
	return func(c *Config) {
		c.SharedExecution = true
	}
}

// WithLogger sets the logger used for cache-path failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
