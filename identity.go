package idempotency

import (
	"fmt"
	"net/http"
)

// IdentityFromCookie returns an IdentityFunc that reads the named cookie.
// A missing cookie is an identity-extraction failure: the request proceeds
// uncached.
func IdentityFromCookie(name string) IdentityFunc {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil {
			return "", fmt.Errorf("extract identity from cookie %q: %w", name, err)
		}
		return c.Value, nil
	}
}

// IdentityFromHeader returns an IdentityFunc that reads the named request
// header, e.g. an API-key or authenticated-user header set by an upstream
// auth layer.
func IdentityFromHeader(name string) IdentityFunc {
	return func(r *http.Request) (string, error) {
		v := r.Header.Get(name)
		if v == "" {
			return "", fmt.Errorf("extract identity: header %q is absent", name)
		}
		return v, nil
	}
}

// StaticIdentity returns an IdentityFunc that always yields id, placing all
// callers in one shared cache namespace.
func StaticIdentity(id string) IdentityFunc {
	return func(*http.Request) (string, error) {
		return id, nil
	}
}
