package requestkey

import (
	"fmt"
	"net/http"
	"strings"
)

var ErrMethodNotCacheable = fmt.Errorf("method not cacheable")

// Keyer derives canonical cache identities for requests.
// A key identifies a GET request by method and absolute URL, query included.
type Keyer struct {
	// Origin is the scheme://host[:port] the worker fronts.
	// Requests addressed to any other origin are never cacheable.
	Origin string
}

// Cacheable reports whether the request may be looked up in or written to
// the cache. Only same-origin GET requests qualify; everything else is
// passed through to the network untouched.
func (k Keyer) Cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return k.sameOrigin(r)
}

// ForRequest returns the cache key for a request.
// Callers must check Cacheable first; the key for a non-GET request is
// meaningless.
func (k Keyer) ForRequest(r *http.Request) string {
	return "GET:" + r.URL.RequestURI()
}

// ForPath returns the cache key for a plain origin-relative path,
// as used when pre-caching manifest resources.
func (k Keyer) ForPath(path string) string {
	return "GET:" + path
}

// RequestFromKey reconstructs a request equivalent, caching-wise, to the one
// that produced the key.
func (k Keyer) RequestFromKey(key string) (*http.Request, error) {
	uri, ok := strings.CutPrefix(key, "GET:")
	if !ok {
		return nil, ErrMethodNotCacheable
	}
	return http.NewRequest(http.MethodGet, uri, nil)
}

func (k Keyer) sameOrigin(r *http.Request) bool {
	if r.URL.Host == "" {
		// Origin-relative URL, same origin by definition.
		return true
	}
	origin := strings.TrimSuffix(k.Origin, "/")
	if i := strings.Index(origin, "://"); i != -1 {
		origin = origin[i+3:]
	}
	return strings.EqualFold(r.URL.Host, origin) || strings.EqualFold(r.Host, origin)
}
