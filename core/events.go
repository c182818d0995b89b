package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// EventKind names the worker events the handler table dispatches on.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventSync              EventKind = "sync"
	EventPush              EventKind = "push"
	EventMessage           EventKind = "message"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is one worker event. Fetch events do not go through here; the
// worker is an http.Handler for those.
type Event struct {
	Kind EventKind
	// Tag names the sync trigger for sync events.
	Tag string
	// Payload is the raw JSON body of push and message events.
	Payload []byte
	// Action and URL describe a notification click.
	Action string
	URL    string
}

// Effect is an instruction to the embedding environment produced by an
// event handler, so handlers stay testable without a browser runtime.
type Effect interface {
	effect()
}

// ShowNotification renders a user notification.
type ShowNotification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	URL     string   `json:"url"`
	Actions []string `json:"actions"`
}

func (ShowNotification) effect() {}

// OpenWindow focuses or opens the app at the given URL.
type OpenWindow struct {
	URL string `json:"url"`
}

func (OpenWindow) effect() {}

type handlerFunc func(ctx context.Context, evt Event) ([]Effect, error)

func (w *Worker) registerHandlers() {
	w.handlers = map[EventKind]handlerFunc{
		EventInstall: func(ctx context.Context, _ Event) ([]Effect, error) {
			return nil, w.Install(ctx)
		},
		EventActivate: func(ctx context.Context, _ Event) ([]Effect, error) {
			return nil, w.Activate(ctx)
		},
		EventSync:              w.handleSync,
		EventPush:              w.handlePush,
		EventMessage:           w.handleMessage,
		EventNotificationClick: w.handleNotificationClick,
	}
}

// Dispatch routes an event to its handler.
func (w *Worker) Dispatch(ctx context.Context, evt Event) ([]Effect, error) {
	handler, ok := w.handlers[evt.Kind]
	if !ok {
		return nil, fmt.Errorf("no handler for event kind %q", evt.Kind)
	}
	return handler(ctx, evt)
}

// handleSync drains the pending queue for the triggered tag. Failures leave
// the queue intact and are logged; they never escalate out of the handler.
func (w *Worker) handleSync(ctx context.Context, evt Event) ([]Effect, error) {
	if w.queue == nil {
		log.Debug().Str("tag", evt.Tag).Msg("Sync triggered but no queue configured")
		return nil, nil
	}
	if err := w.queue.Drain(ctx, evt.Tag); err != nil {
		log.Warn().Err(err).Str("tag", evt.Tag).Msg("Sync failed, will retry on next trigger")
		w.metrics.sync(evt.Tag, "error")
		return nil, nil
	}
	w.metrics.sync(evt.Tag, "ok")
	return nil, nil
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
}

// handlePush renders a push payload as a notification with open and close
// actions. Missing fields get defaults; a malformed payload still produces
// a notification rather than an error.
func (w *Worker) handlePush(_ context.Context, evt Event) ([]Effect, error) {
	var payload pushPayload
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			log.Warn().Err(err).Msg("Malformed push payload")
		}
	}
	if payload.Title == "" {
		payload.Title = "Study Site"
	}
	if payload.Body == "" {
		payload.Body = "There is new study content available."
	}
	if payload.Data.URL == "" {
		payload.Data.URL = "/"
	}
	return []Effect{ShowNotification{
		Title:   payload.Title,
		Body:    payload.Body,
		URL:     payload.Data.URL,
		Actions: []string{"open", "close"},
	}}, nil
}

type controlMessage struct {
	Type string `json:"type"`
}

// handleMessage processes page-to-worker control messages. SKIP_WAITING
// promotes a waiting worker to active immediately; everything else is
// ignored.
func (w *Worker) handleMessage(ctx context.Context, evt Event) ([]Effect, error) {
	var msg controlMessage
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}
	if msg.Type != "SKIP_WAITING" {
		log.Debug().Str("type", msg.Type).Msg("Ignoring unknown control message")
		return nil, nil
	}
	if w.State() != StateWaiting {
		log.Debug().Stringer("state", w.State()).Msg("SKIP_WAITING ignored, worker not waiting")
		return nil, nil
	}
	return nil, w.Activate(ctx)
}

// handleNotificationClick turns a click on the notification body or its
// open action into an OpenWindow effect; close produces nothing.
func (w *Worker) handleNotificationClick(_ context.Context, evt Event) ([]Effect, error) {
	if evt.Action == "close" {
		return nil, nil
	}
	url := evt.URL
	if url == "" {
		url = "/"
	}
	return []Effect{OpenWindow{URL: url}}, nil
}
