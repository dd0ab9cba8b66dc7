// Package idempotency provides HTTP middleware that deduplicates requests.
// A logically identical request retried within the configured window
// receives the exact original response instead of re-executing
// side-effecting logic, commonly needed in payment and financial APIs.
//
// Requests are identified either by a client-supplied key header
// (direct-key mode) or by a canonical hash of method, path, filtered
// headers, and body (hashing mode). Cache keys are namespaced by a caller
// identity so different callers' identical fingerprints never collide.
//
// Every failure in the caching path fails open: the request is executed
// uncached and the client still receives the handler's live response. The
// only user-visible effect of a cache failure is the absence of replay.
package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Middleware returns an HTTP middleware that replays cached responses for
// repeated requests. On a cache hit the downstream handler is not invoked
// and the reconstructed response carries the replay marker header. On a
// miss the handler runs, and its response is stored when the status code is
// eligible for caching.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return &handler{store: store, cfg: cfg, next: next}
	}
}

type handler struct {
	store Store
	cfg   *Config
	next  http.Handler
	group singleflight.Group
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolveKey(r)
	if !ok {
		h.next.ServeHTTP(w, r)
		return
	}

	if snap, ok := h.lookup(r.Context(), key); ok {
		h.writeReplay(w, snap)
		return
	}

	if h.cfg.SharedExecution {
		h.executeShared(w, r, key)
		return
	}

	missesTotal.Inc()
	snap := h.execute(w, r)
	h.maybeStore(r.Context(), key, snap)
}

// resolveKey derives the full cache key for the request. It returns false
// when caching is disabled for this request: identity extraction failed,
// fingerprinting failed, or no identity was asserted in direct-key mode.
func (h *handler) resolveKey(r *http.Request) (string, bool) {
	identity, err := h.cfg.Identity(r)
	if err != nil {
		cacheErrors.WithLabelValues("identity").Inc()
		h.cfg.Logger.Error().Err(err).Msg("failed to resolve caller identity, request proceeds uncached")
		return "", false
	}

	fp, ok, err := fingerprint(r, h.cfg)
	if err != nil {
		cacheErrors.WithLabelValues("fingerprint").Inc()
		h.cfg.Logger.Error().Err(err).Msg("failed to fingerprint request, request proceeds uncached")
		return "", false
	}
	if !ok {
		return "", false
	}

	// Length-prefix the identity so the joined key is unambiguous: identity
	// "a" with fingerprint "b:c" must never collide with identity "a:b" and
	// fingerprint "c". Fingerprints are client-controlled in direct-key mode.
	return strconv.Itoa(len(identity)) + ":" + identity + ":" + fp, true
}

// lookup fetches and decodes the snapshot for key. Lookup errors and
// undecodable entries are both treated as misses.
func (h *handler) lookup(ctx context.Context, key string) (*snapshot, bool) {
	data, err := h.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			cacheErrors.WithLabelValues("get").Inc()
			h.cfg.Logger.Error().Err(err).Str("key", key).Msg("cache lookup failed, treating as miss")
		}
		return nil, false
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		cacheErrors.WithLabelValues("decode").Inc()
		h.cfg.Logger.Error().Err(err).Str("key", key).Msg("cached snapshot undecodable, treating as miss")
		return nil, false
	}

	return snap, true
}

// execute runs the downstream handler, streaming its response to the client
// while capturing a snapshot of it. The snapshot is always captured because
// cache eligibility is only known after the handler returns.
func (h *handler) execute(w http.ResponseWriter, r *http.Request) *snapshot {
	rec := &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}

	h.next.ServeHTTP(rec, r)

	return &snapshot{
		StatusCode: rec.statusCode,
		Headers:    snapshotHeaders(rec.Header()),
		Body:       rec.body.Bytes(),
	}
}

// executeShared collapses concurrent requests sharing a cache key into one
// handler execution. The leader streams its response normally; late
// arrivals receive the leader's snapshot marked as a replay.
func (h *handler) executeShared(w http.ResponseWriter, r *http.Request, key string) {
	var leader bool
	v, _, _ := h.group.Do(key, func() (interface{}, error) {
		leader = true
		missesTotal.Inc()
		snap := h.execute(w, r)
		h.maybeStore(r.Context(), key, snap)
		return snap, nil
	})
	if leader {
		return
	}
	h.writeReplay(w, v.(*snapshot))
}

// maybeStore persists the snapshot when its status code is cacheable. Write
// failures are logged and swallowed: the client already has the live
// response, only future replay is forgone.
func (h *handler) maybeStore(ctx context.Context, key string, snap *snapshot) {
	if !cacheable(snap.StatusCode, h.cfg) {
		return
	}

	data, err := encodeSnapshot(snap)
	if err != nil {
		cacheErrors.WithLabelValues("encode").Inc()
		h.cfg.Logger.Error().Err(err).Str("key", key).Msg("failed to encode response snapshot")
		return
	}

	if err := h.store.Set(ctx, key, data, h.cfg.TTL); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		h.cfg.Logger.Error().Err(err).Str("key", key).Msg("failed to cache response")
		return
	}

	storesTotal.Inc()
	h.cfg.Logger.Debug().
		Str("key", key).
		Int("status_code", snap.StatusCode).
		Dur("ttl", h.cfg.TTL).
		Msg("cached response for replay")
}

// writeReplay reconstructs a snapshot onto the response writer with the
// replay marker header set.
func (h *handler) writeReplay(w http.ResponseWriter, snap *snapshot) {
	replaysTotal.Inc()

	header := w.Header()
	for _, p := range snap.Headers {
		header.Add(p.Name, p.Value)
	}
	header.Set(h.cfg.ReplayHeader, "true")

	w.WriteHeader(snap.StatusCode)
	w.Write(snap.Body)
}

// responseRecorder captures the response while passing it through to the
// underlying writer.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
