// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

// EventName identifies the events emitted by a Query.
type EventName string

const (
	// EventResultInvalidated is emitted every time the query result becomes stale, including
	// right before a new result replaces the current one.
	EventResultInvalidated EventName = "result-invalidated"
	// EventResultUpdated is emitted when a new result has been stored in the query.
	EventResultUpdated EventName = "result-updated"
)

// Event is the payload delivered to query listeners.
type Event struct {
	Name  EventName
	Query *Query

	// Items and Previous are only populated for EventResultUpdated.
	Items    []Item
	Previous []Item
}

// Listener receives query events.
type Listener func(Event)

type listenerEntry struct {
	id   uint64
	fn   Listener
	once bool
}

// emitter keeps an ordered list of listeners for every event name.
// It is not safe for concurrent use, the owning Query guards it.
type emitter struct {
	lastID    uint64
	listeners map[EventName][]listenerEntry
}

func (e *emitter) on(name EventName, fn Listener, once bool) uint64 {
	if e.listeners == nil {
		e.listeners = make(map[EventName][]listenerEntry)
	}

	e.lastID++
	e.listeners[name] = append(e.listeners[name], listenerEntry{id: e.lastID, fn: fn, once: once})
	return e.lastID
}

func (e *emitter) off(name EventName, id uint64) bool {
	entries := e.listeners[name]
	for idx, entry := range entries {
		if entry.id == id {
			e.listeners[name] = append(entries[:idx:idx], entries[idx+1:]...)
			return true
		}
	}

	return false
}

// take returns the listeners to call for name, in registration order. One-shot listeners are
// detached here, before they get the chance to run, so a listener that synchronously causes
// another emission of the same event is never invoked twice.
func (e *emitter) take(name EventName) []Listener {
	entries := e.listeners[name]
	if len(entries) == 0 {
		return nil
	}

	toCall := make([]Listener, 0, len(entries))
	kept := entries[:0:0]
	for _, entry := range entries {
		toCall = append(toCall, entry.fn)
		if !entry.once {
			kept = append(kept, entry)
		}
	}

	e.listeners[name] = kept
	return toCall
}

func (e *emitter) count(name EventName) int {
	return len(e.listeners[name])
}

func (e *emitter) clear() {
	e.listeners = nil
}

func notify(listeners []Listener, event Event) {
	for _, listener := range listeners {
		listener(event)
	}
}
