// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Query is the interest of a consumer in the result of a Descriptor against a QuerySource.
// A query is created stale; it becomes fresh only when its source delivers a result for it and
// it is stale again every time the source invalidates it. Its lifecycle state is written only by
// the owning source, consumers read it and subscribe to its events.
type Query struct {
	id         string
	source     QuerySource
	descriptor Descriptor
	autoupdate bool

	mu       sync.Mutex
	upToDate bool
	mtime    time.Time
	items    []Item
	closed   bool
	done     chan struct{}
	events   emitter
}

// NewQuery returns a stale query bound to source. It is meant to be used by QuerySource
// implementations, consumers obtain queries through QuerySource.Query.
func NewQuery(source QuerySource, descriptor Descriptor, autoupdate bool) *Query {
	return &Query{
		id:         uuid.NewString(),
		source:     source,
		descriptor: descriptor,
		autoupdate: autoupdate,
		done:       make(chan struct{}),
	}
}

// ID returns the unique identifier generated for the query.
func (q *Query) ID() string { return q.id }

// Descriptor returns the descriptor the query was created with.
func (q *Query) Descriptor() Descriptor { return q.descriptor }

// Autoupdate reports whether the source keeps refreshing the query at every poll interval.
func (q *Query) Autoupdate() bool { return q.autoupdate }

// Source returns the source owning the query.
func (q *Query) Source() QuerySource { return q.source }

// IsUpToDate reports whether the current result is fresh.
func (q *Query) IsUpToDate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.upToDate
}

// MTime returns the modification time of the last stored result, the zero time if none.
func (q *Query) MTime() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mtime
}

// Items returns the items of the last stored result, nil if none. The returned slice is shared
// and must not be modified.
func (q *Query) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items
}

// IsClosed reports whether Close has been called on the query.
func (q *Query) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// LoadItems returns the current items if the query is up to date, without any fetch.
// Otherwise it asks the source to refresh the query and waits for the next result update.
// Cancelling ctx abandons the wait and returns ctx.Err(); loading from a closed query
// returns ErrQueryClosed.
func (q *Query) LoadItems(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueryClosed
	}

	if q.upToDate {
		items := q.items
		q.mu.Unlock()
		return items, nil
	}

	updated := make(chan []Item, 1)
	listenerID := q.events.on(EventResultUpdated, func(event Event) {
		updated <- event.Items
	}, true)
	q.mu.Unlock()

	q.source.LoadResult(q)

	select {
	case items := <-updated:
		return items, nil
	case <-q.done:
		return nil, ErrQueryClosed
	case <-ctx.Done():
		q.mu.Lock()
		q.events.off(EventResultUpdated, listenerID)
		q.mu.Unlock()

		// the update can land between the cancellation and the removal of the listener
		select {
		case items := <-updated:
			return items, nil
		default:
		}

		return nil, ctx.Err()
	}
}

// Subscribe registers listener for every future emission of event. The returned function
// removes the listener and can be called more than once.
func (q *Query) Subscribe(event EventName, listener Listener) func() {
	return q.subscribe(event, listener, false)
}

// Once registers listener for the next emission of event only. The listener is removed before
// being invoked. The returned function removes the listener if it has not run yet.
func (q *Query) Once(event EventName, listener Listener) func() {
	return q.subscribe(event, listener, true)
}

func (q *Query) subscribe(event EventName, listener Listener, once bool) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return func() {}
	}

	id := q.events.on(event, listener, once)
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.events.off(event, id)
	}
}

// Close deregisters the query from its source. A closed query never emits events again and
// any pending LoadItems call returns ErrQueryClosed. Closing twice has no effect.
func (q *Query) Close() {
	q.markClosed()
	q.source.CloseQuery(q)
}

// MarkResultChanged stores result in the query and emits its events. A nil result only marks
// the query stale. It must be called only by the source owning the query.
func (q *Query) MarkResultChanged(result *Result) {
	if !q.invalidate() || result == nil {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	previous := q.items
	q.mtime = result.MTime
	q.upToDate = true
	q.items = result.Items
	listeners := q.events.take(EventResultUpdated)
	q.mu.Unlock()

	notify(listeners, Event{Name: EventResultUpdated, Query: q, Items: result.Items, Previous: previous})
}

// Invalidate marks the query stale and emits EventResultInvalidated. It must be called only by
// the source owning the query.
func (q *Query) Invalidate() {
	q.invalidate()
}

func (q *Query) invalidate() bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	q.upToDate = false
	listeners := q.events.take(EventResultInvalidated)
	q.mu.Unlock()

	notify(listeners, Event{Name: EventResultInvalidated, Query: q})
	return true
}

func (q *Query) markClosed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	q.closed = true
	q.events.clear()
	close(q.done)
}

func (q *Query) listenerCount(event EventName) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.count(event)
}
