// Package syncqueue implements the background sync queue: pending writes
// that could not reach the origin are held in a persisted store and drained
// as one batch when a sync trigger for their tag arrives.
//
// Delivery is at-least-once. A batch is considered delivered only on a 2xx
// response; on any failure the queue is left untouched and the batch is
// retried in full on the next trigger. There is no backoff of its own —
// retry cadence is whatever cadence the external triggers have.
package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// PendingItem is one queued write.
type PendingItem struct {
	ID   int64
	Tag  string
	Body []byte
}

// Store persists pending items across restarts.
//
// Implementations must be thread-safe!
type Store interface {
	// Append adds an item to the end of the queue for the given tag.
	Append(tag string, body []byte) error
	// Pending returns all queued items for the given tag, oldest first.
	Pending(tag string) ([]PendingItem, error)
	// Remove deletes the items with the given ids.
	Remove(ids []int64) error
}

// Queue drains pending items to the origin's sync endpoints.
type Queue struct {
	store     Store
	origin    string
	endpoints map[string]string
	client    *http.Client
}

// New creates a queue posting batches to origin + endpoints[tag].
func New(store Store, origin string, endpoints map[string]string) *Queue {
	return &Queue{
		store:     store,
		origin:    origin,
		endpoints: endpoints,
		client:    &http.Client{},
	}
}

// Endpoint returns the origin-relative sync path for a tag.
func (q *Queue) Endpoint(tag string) (string, bool) {
	path, ok := q.endpoints[tag]
	return path, ok
}

// TagForPath returns the sync tag whose endpoint is the given path.
func (q *Queue) TagForPath(path string) (string, bool) {
	for tag, p := range q.endpoints {
		if p == path {
			return tag, true
		}
	}
	return "", false
}

// Enqueue appends one pending write for later delivery.
func (q *Queue) Enqueue(tag string, body []byte) error {
	if _, ok := q.endpoints[tag]; !ok {
		return fmt.Errorf("unknown sync tag %q", tag)
	}
	log.Debug().Str("tag", tag).Int("bytes", len(body)).Msg("Queueing pending write")
	return q.store.Append(tag, body)
}

// Drain posts all pending items for the tag as one JSON array batch.
// The items are removed only after a 2xx response; any error leaves the
// queue intact for the next trigger.
func (q *Queue) Drain(ctx context.Context, tag string) error {
	path, ok := q.endpoints[tag]
	if !ok {
		return fmt.Errorf("unknown sync tag %q", tag)
	}
	items, err := q.store.Pending(tag)
	if err != nil {
		return fmt.Errorf("reading pending items: %w", err)
	}
	if len(items) == 0 {
		log.Trace().Str("tag", tag).Msg("Nothing to sync")
		return nil
	}

	batch := make([]json.RawMessage, 0, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		raw := json.RawMessage(item.Body)
		if !json.Valid(item.Body) {
			// Store it as a JSON string so one malformed item
			// cannot wedge the whole batch forever.
			raw, _ = json.Marshal(string(item.Body))
		}
		batch = append(batch, raw)
		ids = append(ids, item.ID)
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.origin+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting sync batch: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("sync endpoint %s returned %s", path, res.Status)
	}

	if err := q.store.Remove(ids); err != nil {
		// Delivered but not cleared: the items will be re-sent on the
		// next trigger, which at-least-once delivery allows.
		return fmt.Errorf("clearing delivered items: %w", err)
	}
	log.Debug().Str("tag", tag).Int("items", len(ids)).Msg("Sync batch delivered")
	return nil
}
