package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sg-study/study-worker/cache"

	"github.com/rs/zerolog/log"
)

// State is the worker lifecycle state.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

type lifecycleState struct {
	mutex sync.Mutex
	state State
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.lifecycle.mutex.Lock()
	defer w.lifecycle.mutex.Unlock()
	return w.lifecycle.state
}

func (w *Worker) setState(s State) {
	w.lifecycle.mutex.Lock()
	from := w.lifecycle.state
	w.lifecycle.state = s
	w.lifecycle.mutex.Unlock()
	log.Debug().Stringer("from", from).Stringer("to", s).Msg("Lifecycle transition")
}

// Install opens the current generation and writes every core resource into
// it. Core resources are all-or-nothing: any failure rolls back entries
// written so far and leaves no current generation behind. On success the
// worker activates immediately unless skip-waiting is disabled.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	gen := w.store.Current()
	log.Info().
		Str("generation", gen.ID()).
		Int("core", len(w.coreResources)).
		Int("optional", len(w.optionalResources)).
		Msg("Installing")

	for _, path := range w.coreResources {
		if err := w.precache(ctx, gen, path); err != nil {
			if derr := w.store.DeleteGeneration(gen.ID()); derr != nil {
				log.Error().Err(derr).Str("generation", gen.ID()).Msg("Could not roll back partial install")
			}
			w.setState(StateRedundant)
			return fmt.Errorf("install failed for %s: %w", path, err)
		}
	}

	w.setState(StateWaiting)
	if w.disableSkipWaiting {
		return nil
	}
	return w.Activate(ctx)
}

// Activate evicts every generation other than the current one and starts
// serving. Optional resources are warmed up after a delay, best-effort.
func (w *Worker) Activate(ctx context.Context) error {
	ids, err := w.store.Generations()
	if err != nil {
		return fmt.Errorf("listing generations: %w", err)
	}
	for _, id := range ids {
		if id == w.store.CurrentID() {
			continue
		}
		log.Info().Str("generation", id).Msg("Evicting stale cache generation")
		if err := w.store.DeleteGeneration(id); err != nil {
			return fmt.Errorf("evicting generation %s: %w", id, err)
		}
	}
	w.setState(StateActive)
	log.Info().Str("generation", w.store.CurrentID()).Msg("Worker active")
	w.scheduleWarmup()
	return nil
}

// scheduleWarmup defers optional-resource caching. There is no idle signal
// to wait for in a server process, so a fixed delay stands in for it.
func (w *Worker) scheduleWarmup() {
	if len(w.optionalResources) == 0 {
		return
	}
	time.AfterFunc(w.warmupDelay, w.warmOptional)
}

func (w *Worker) warmOptional() {
	gen := w.store.Current()
	for _, path := range w.optionalResources {
		if err := w.precache(context.Background(), gen, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Optional resource not cached")
			continue
		}
		log.Trace().Str("path", path).Msg("Optional resource cached")
	}
}

// precache fetches one origin-relative path and stores the response.
func (w *Worker) precache(ctx context.Context, gen *cache.Generation, path string) error {
	res, err := w.fetchGet(ctx, path, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if !okStatus(res) {
		return fmt.Errorf("origin returned %s", res.Status)
	}
	return gen.PutResponse(w.keyer.ForPath(path), res)
}
