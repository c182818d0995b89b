package core

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	serializer "github.com/sg-study/study-worker/pkg/response-serializer"

	"github.com/rs/zerolog/log"
)

// Strategy is one of the three ways a cacheable fetch can be served.
type Strategy string

const (
	// NetworkFirst tries the network and falls back to the cache,
	// used for API, auth and sync endpoints.
	NetworkFirst Strategy = "network-first"
	// CacheFirst serves from the cache and only consults the network on a
	// miss, used for static assets.
	CacheFirst Strategy = "cache-first"
	// StaleWhileRevalidate serves a cached copy immediately and refreshes
	// it in the background; the default for pages.
	StaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// staticSuffixes matches the fixed set of static-asset file extensions,
// case-insensitively.
var staticSuffixes = regexp.MustCompile(`(?i)\.(css|js|png|jpg|jpeg|gif|svg|woff|woff2|ttf|eot|ico)$`)

// Selector classifies request URLs into strategies. It holds the ordered
// network-first pattern list; patterns are checked by substring containment
// before the static-suffix test, so an API route always stays network-first
// even when its URL ends in a static-looking extension.
type Selector struct {
	networkFirst []string
}

func NewSelector(networkFirstPatterns []string) *Selector {
	return &Selector{networkFirst: networkFirstPatterns}
}

// Classify returns the strategy for a request URL.
// It is a pure function of the URL string.
func (s *Selector) Classify(url string) Strategy {
	for _, pattern := range s.networkFirst {
		if strings.Contains(url, pattern) {
			return NetworkFirst
		}
	}
	path := url
	if i := strings.IndexByte(path, '?'); i != -1 {
		path = path[:i]
	}
	if staticSuffixes.MatchString(path) {
		return CacheFirst
	}
	return StaleWhileRevalidate
}

// serveNetworkFirst tries the origin first. A successful response is sent
// immediately and persisted in the background; on network failure the cache
// is consulted, then the offline fallback for navigations.
func (w *Worker) serveNetworkFirst(rw http.ResponseWriter, r *http.Request, key string) {
	res, err := w.fetch(r)
	if err == nil {
		w.sendAndPersist(rw, r, key, res, NetworkFirst)
		return
	}
	log.Debug().Err(err).Str("key", key).Msg("Network failed, falling back to cache")
	if cached, ok, cerr := w.store.Current().Match(key); cerr == nil && ok {
		w.send(rw, cached, NetworkFirst, sourceCache)
		return
	} else if cerr != nil {
		log.Warn().Err(cerr).Str("key", key).Msg("Error reading cache")
	}
	if isNavigation(r) {
		w.serveOffline(rw, NetworkFirst)
		return
	}
	w.metrics.response(NetworkFirst, sourceError)
	http.Error(rw, "Error contacting origin", http.StatusBadGateway)
}

// serveCacheFirst serves from the cache when possible; the network is never
// consulted on a hit.
func (w *Worker) serveCacheFirst(rw http.ResponseWriter, r *http.Request, key string) {
	cached, ok, err := w.store.Current().Match(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Error reading cache")
	}
	if ok {
		w.send(rw, cached, CacheFirst, sourceCache)
		return
	}
	res, ferr := w.fetch(r)
	if ferr == nil {
		w.sendAndPersist(rw, r, key, res, CacheFirst)
		return
	}
	log.Debug().Err(ferr).Str("key", key).Msg("Static asset miss and network failed")
	if isNavigation(r) {
		w.serveOffline(rw, CacheFirst)
		return
	}
	w.metrics.response(CacheFirst, sourceError)
	http.Error(rw, "Error contacting origin", http.StatusBadGateway)
}

// serveStaleWhileRevalidate returns a cached copy immediately when present
// and refreshes the entry in the background. Only on a cache miss does the
// caller wait for the network.
func (w *Worker) serveStaleWhileRevalidate(rw http.ResponseWriter, r *http.Request, key string) {
	gen := w.store.Current()
	cached, ok, err := gen.Match(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Error reading cache")
	}

	// The revalidation fetch outlives the client request, so it gets its
	// own context and a copy of the inbound headers. It resolves to nil on
	// network failure; it never panics the worker.
	uri := r.URL.RequestURI()
	header := r.Header.Clone()
	networkRes := make(chan *http.Response, 1)
	go func() {
		res, ferr := w.fetchGet(context.Background(), uri, header)
		if ferr != nil {
			log.Trace().Err(ferr).Str("key", key).Msg("Revalidation fetch failed")
			networkRes <- nil
			return
		}
		if okStatus(res) {
			if bts, serr := serializer.ResponseToBytes(res); serr != nil {
				log.Warn().Err(serr).Str("key", key).Msg("Could not serialize response for caching")
			} else if perr := gen.Put(key, bts); perr != nil {
				log.Error().Err(perr).Str("key", key).Msg("Could not write to cache")
			}
		}
		networkRes <- res
	}()

	if ok {
		// Cache wins the race unconditionally; do not wait for the
		// network result.
		w.send(rw, cached, StaleWhileRevalidate, sourceCache)
		return
	}

	res := <-networkRes
	if res != nil {
		w.send(rw, res, StaleWhileRevalidate, sourceNetwork)
		return
	}
	if isNavigation(r) {
		w.serveOffline(rw, StaleWhileRevalidate)
		return
	}
	w.metrics.response(StaleWhileRevalidate, sourceError)
	http.Error(rw, "No cached response and network request failed", http.StatusBadGateway)
}
