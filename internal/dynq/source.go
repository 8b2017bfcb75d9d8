// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import "slices"

// QuerySource is a named provider of queries. Implementations decide how and when the results
// of their queries are refreshed.
type QuerySource interface {
	// Name returns the name the source is registered with.
	Name() string
	// Query creates a stale query for descriptor bound to the source. It does not fetch.
	Query(descriptor Descriptor, autoupdate bool) *Query
	// LoadResult asks the source to refresh q as soon as its batching policy allows.
	LoadResult(q *Query)
	// CloseQuery stops tracking q. It is a no-op for queries the source does not know.
	CloseQuery(q *Query)
}

// Tracker keeps the live queries of a source in registration order.
// It is not safe for concurrent use, sources embedding it are expected to guard it.
type Tracker struct {
	queries []*Query
}

// Add appends q to the live queries if it is not tracked yet.
func (t *Tracker) Add(q *Query) {
	if t.Contains(q) {
		return
	}
	t.queries = append(t.queries, q)
}

// Remove removes q and reports whether it was tracked.
func (t *Tracker) Remove(q *Query) bool {
	idx := slices.Index(t.queries, q)
	if idx < 0 {
		return false
	}

	t.queries = slices.Delete(t.queries, idx, idx+1)
	return true
}

// Contains reports whether q is tracked.
func (t *Tracker) Contains(q *Query) bool {
	return slices.Contains(t.queries, q)
}

// Queries returns a copy of the live queries in registration order.
func (t *Tracker) Queries() []*Query {
	return slices.Clone(t.queries)
}

// Len returns the number of live queries.
func (t *Tracker) Len() int {
	return len(t.queries)
}
