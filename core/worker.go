// Package core implements the study-site offline worker: it intercepts
// page fetches, serves them through one of three caching strategies, and
// manages the cache generation lifecycle across deployments.
package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sg-study/study-worker/cache"
	requestkey "github.com/sg-study/study-worker/pkg/request-key"
	serializer "github.com/sg-study/study-worker/pkg/response-serializer"
	"github.com/sg-study/study-worker/syncqueue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config carries everything the worker needs; there is no other worker
// state. One worker instance serves one origin and one cache generation.
type Config struct {
	Store      *cache.Store
	OriginURL  url.URL
	OriginHost string

	// Pre-cache manifest. Core resources must all succeed at install;
	// optional resources are fetched best-effort after activation.
	CoreResources     []string
	OptionalResources []string

	// Ordered URL substrings routed network-first, checked before the
	// static-suffix test.
	NetworkFirstPatterns []string

	// OfflinePath is the pre-cached page served when a navigation cannot
	// be satisfied by network or cache. Defaults to /offline.html.
	OfflinePath string

	// WarmupDelay defers optional-resource caching after activation,
	// standing in for an idle callback. Defaults to 5s.
	WarmupDelay time.Duration

	// DisableSkipWaiting keeps a successfully installed worker in the
	// Waiting state until an explicit SKIP_WAITING message. By default
	// install activates immediately.
	DisableSkipWaiting bool

	// Queue is the background sync queue; nil disables sync handling.
	Queue *syncqueue.Queue

	// Registry receives the worker's metrics; nil disables them.
	Registry prometheus.Registerer
}

// Worker is the caching gateway. It implements http.Handler for fetch
// events; all other worker events go through Dispatch.
type Worker struct {
	store              *cache.Store
	originURL          url.URL
	originHost         string
	keyer              requestkey.Keyer
	selector           *Selector
	coreResources      []string
	optionalResources  []string
	offlinePath        string
	warmupDelay        time.Duration
	disableSkipWaiting bool
	queue              *syncqueue.Queue
	httpClient         http.Client
	metrics            *metrics
	handlers           map[EventKind]handlerFunc

	lifecycle lifecycleState
}

// New creates the worker. It does not install anything; dispatch an
// install event (or call Install) to populate the cache and start serving.
func New(config Config) *Worker {
	w := &Worker{
		store:              config.Store,
		originURL:          config.OriginURL,
		originHost:         config.OriginHost,
		keyer:              requestkey.Keyer{Origin: config.OriginURL.String()},
		selector:           NewSelector(config.NetworkFirstPatterns),
		coreResources:      config.CoreResources,
		optionalResources:  config.OptionalResources,
		offlinePath:        config.OfflinePath,
		warmupDelay:        config.WarmupDelay,
		disableSkipWaiting: config.DisableSkipWaiting,
		queue:              config.Queue,
		metrics:            newMetrics(config.Registry),
		httpClient: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if w.offlinePath == "" {
		w.offlinePath = "/offline.html"
	}
	if w.warmupDelay == 0 {
		w.warmupDelay = 5 * time.Second
	}

	// use provided hostname for origin if configured
	if w.originHost != "" {
		w.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: w.originHost,
			},
		}
	}

	w.registerHandlers()
	return w
}

// ServeHTTP handles a fetch event.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer w.recover(rw, r)
	if !w.keyer.Cacheable(r) {
		w.passThrough(rw, r)
		return
	}
	key := w.keyer.ForRequest(r)
	strategy := w.selector.Classify(r.URL.RequestURI())
	log.Trace().Str("key", key).Str("strategy", string(strategy)).Msg("Handling fetch")
	switch strategy {
	case NetworkFirst:
		w.serveNetworkFirst(rw, r, key)
	case CacheFirst:
		w.serveCacheFirst(rw, r, key)
	default:
		w.serveStaleWhileRevalidate(rw, r, key)
	}
}

// recover turns a panic in a fetch handler into a plain proxied response.
func (w *Worker) recover(rw http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		log.WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in fetch handler")
		w.passThrough(rw, r)
	}
}

// passThrough proxies a non-cacheable request to the origin untouched.
// A POST to a sync endpoint that cannot reach the origin is queued for
// background sync instead of failing.
func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request) {
	var pending []byte
	var tag string
	if w.queue != nil && r.Method == http.MethodPost {
		if t, ok := w.queue.TagForPath(r.URL.Path); ok {
			if b, err := io.ReadAll(r.Body); err == nil {
				pending = b
				tag = t
				r.Body = io.NopCloser(bytes.NewReader(b))
			}
		}
	}

	res, err := w.fetch(r)
	if err != nil {
		if tag != "" {
			if qerr := w.queue.Enqueue(tag, pending); qerr != nil {
				log.Error().Err(qerr).Str("tag", tag).Msg("Could not queue pending write")
			} else {
				rw.Header().Set("Content-Type", "application/json")
				rw.WriteHeader(http.StatusAccepted)
				io.WriteString(rw, `{"queued":true}`)
				return
			}
		}
		log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(rw, "Could not connect to origin", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	if _, err := io.Copy(rw, res.Body); err != nil {
		log.Error().Err(err).Msg("Error writing to client")
	}
}

// fetch forwards the incoming request to the origin.
func (w *Worker) fetch(r *http.Request) (*http.Response, error) {
	uri := w.originURL.String() + r.URL.RequestURI()
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, uri, body)
	if err != nil {
		return nil, err
	}
	req.Host = w.originHost
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")
	return w.httpClient.Do(req)
}

// fetchGet requests an origin-relative URI, optionally forwarding headers.
// Used for pre-caching and background revalidation.
func (w *Worker) fetchGet(ctx context.Context, uri string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.originURL.String()+uri, nil)
	if err != nil {
		return nil, err
	}
	req.Host = w.originHost
	if header != nil {
		copyHeader(req.Header, header)
		req.Header.Del("Connection")
	}
	return w.httpClient.Do(req)
}

// sendAndPersist sends a network response to the client. When the status is
// ok the serialized clone is written to the current generation in the
// background; a storage failure never blocks or fails the response.
func (w *Worker) sendAndPersist(rw http.ResponseWriter, r *http.Request, key string, res *http.Response, strategy Strategy) {
	if !okStatus(res) {
		w.send(rw, res, strategy, sourceNetwork)
		return
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Could not serialize response for caching")
		w.send(rw, res, strategy, sourceNetwork)
		return
	}
	gen := w.store.Current()
	go func() {
		if err := gen.Put(key, bts); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		}
	}()
	w.send(rw, res, strategy, sourceNetwork)
}

// send writes a response to the client and records where it came from.
func (w *Worker) send(rw http.ResponseWriter, res *http.Response, strategy Strategy, source string) {
	w.metrics.response(strategy, source)
	log.Debug().
		Str("strategy", string(strategy)).
		Str("source", source).
		Int("status", res.StatusCode).
		Msg("Sending response to client")
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(rw.Header(), res.Header)
	rw.Header().Set("Worker-Cache", source)
	rw.WriteHeader(res.StatusCode)
	if _, err := io.Copy(rw, res.Body); err != nil {
		log.Error().Err(err).Msg("Error writing to client")
	}
}

// serveOffline answers a navigation with the pre-cached offline page. If
// even that is missing a minimal response is synthesized; a navigation
// always gets some response object.
func (w *Worker) serveOffline(rw http.ResponseWriter, strategy Strategy) {
	key := w.keyer.ForPath(w.offlinePath)
	if res, ok, err := w.store.Current().Match(key); err == nil && ok {
		w.send(rw, res, strategy, sourceOffline)
		return
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Error reading offline page from cache")
	}
	log.Warn().Str("path", w.offlinePath).Msg("Offline page not cached")
	w.metrics.response(strategy, sourceOffline)
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(rw, "You are offline and this page has not been cached yet.")
}

// okStatus reports whether a response may be written to the cache.
func okStatus(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode <= 299
}

// isNavigation reports whether the request loads a full page rather than a
// subresource. The Sec-Fetch-Mode header decides when present; the Accept
// header is the fallback for clients that do not send it.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
