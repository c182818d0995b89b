package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/sg-study/study-worker/cache"
	"github.com/sg-study/study-worker/config"
	"github.com/sg-study/study-worker/core"
	"github.com/sg-study/study-worker/syncqueue"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	originFlag         string
	portFlag           int
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to front (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Cache provider: memory, sqlite, leveldb or badger (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file or directory (use 'memory' for an in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	cfg := config.Default()
	if configFilenameFlag != "" {
		loaded, err := config.Load(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot load config file")
		}
		cfg = loaded
	}

	// flag overrides
	if originFlag != "" {
		cfg.Origin = originFlag
	}
	if portFlag != 0 {
		cfg.Listen = fmt.Sprintf(":%d", portFlag)
	}
	if providerFlag != "" {
		cfg.Cache.Provider = providerFlag
	}
	if dbFilenameFlag != "" {
		cfg.Cache.Path = dbFilenameFlag
	}
	if cfg.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}

	originURL, err := url.Parse(cfg.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open cache provider")
	}
	store := cache.NewStore(provider, cfg.GenerationID())

	queueStore, err := syncqueue.NewSQLiteStore(cfg.Sync.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open sync queue store")
	}
	queue := syncqueue.New(queueStore, cfg.Origin, cfg.Sync.Endpoints)

	registry := prometheus.NewRegistry()

	worker := core.New(core.Config{
		Store:                store,
		OriginURL:            *originURL,
		OriginHost:           cfg.OriginHost,
		CoreResources:        cfg.Precache.Core,
		OptionalResources:    cfg.Precache.Optional,
		NetworkFirstPatterns: cfg.Routes.NetworkFirst,
		OfflinePath:          cfg.Offline,
		WarmupDelay:          cfg.WarmupDuration(),
		Queue:                queue,
		Registry:             registry,
	})

	// install pre-caches the core resources and, with skip-waiting on by
	// default, activates immediately; the platform (systemd, a supervisor)
	// retries by restarting on failure
	if _, err := worker.Dispatch(context.Background(), core.Event{Kind: core.EventInstall}); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}

	router := chi.NewRouter()
	router.Post("/_worker/message", eventEndpoint(worker, core.EventMessage))
	router.Post("/_worker/push", eventEndpoint(worker, core.EventPush))
	router.Post("/_worker/sync/{tag}", func(w http.ResponseWriter, r *http.Request) {
		evt := core.Event{Kind: core.EventSync, Tag: chi.URLParam(r, "tag")}
		if _, err := worker.Dispatch(r.Context(), evt); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	router.Get("/_worker/state", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"state":%q,"generation":%q}`, worker.State(), store.CurrentID())
	})
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Handle("/*", worker)

	log.Info().Msgf("Serving %s on %s (generation %s)", cfg.Origin, cfg.Listen, cfg.GenerationID())
	if err := http.ListenAndServe(cfg.Listen, router); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// eventEndpoint adapts a worker event kind to an HTTP endpoint taking the
// event payload as the request body and answering with the effect list.
func eventEndpoint(worker *core.Worker, kind core.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		effects, err := worker.Dispatch(r.Context(), core.Event{Kind: kind, Payload: payload})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"effects":%d}`, len(effects))
	}
}

func buildProvider(cfg config.Config) (cache.Provider, error) {
	path := cfg.Cache.Path
	switch cfg.Cache.Provider {
	case "memory":
		return cache.NewMemProvider(), nil
	case "sqlite":
		if path == "memory" {
			path = "file::memory:?cache=shared"
		}
		return cache.NewSQLiteProvider(path)
	case "leveldb":
		return cache.NewLevelDBProvider(path)
	case "badger":
		if path == "memory" {
			path = ""
		}
		return cache.NewBadgerProvider(path)
	}
	return nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
}
