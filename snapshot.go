package idempotency

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// headerPair preserves response header order and duplicates across the
// encode/decode round trip.
type headerPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// snapshot is the stored form of a captured response.
type snapshot struct {
	StatusCode int          `json:"status_code"`
	Headers    []headerPair `json:"headers"`
	Body       []byte       `json:"body"`
}

// snapshotHeaders flattens an http.Header into a deterministic pair list.
func snapshotHeaders(h http.Header) []headerPair {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]headerPair, 0, len(h))
	for _, name := range names {
		for _, value := range h[name] {
			pairs = append(pairs, headerPair{Name: name, Value: value})
		}
	}
	return pairs
}

func encodeSnapshot(s *snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// decodeSnapshot reconstructs a snapshot from stored bytes. It accepts
// anything encodeSnapshot produced and fails on everything else; the store
// may hand back corrupted bytes or bytes written by a different version.
func decodeSnapshot(data []byte) (*snapshot, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	// net/http accepts WriteHeader codes up to 999; anything the engine
	// could have captured must decode, so the bound matches.
	if s.StatusCode < 100 || s.StatusCode > 999 {
		return nil, fmt.Errorf("%w: status code %d out of range", ErrMalformedSnapshot, s.StatusCode)
	}
	return &s, nil
}
