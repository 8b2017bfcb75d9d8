// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mia-platform/dynq/internal/logger"
)

const loggerNamePrefix = "dynq:source:"

var _ QuerySource = &PollingSource{}

// Option customizes a PollingSource.
type Option func(*PollingSource)

// WithClock replaces the clock used to arm the poll timers.
func WithClock(clock clockwork.Clock) Option {
	return func(s *PollingSource) {
		s.clock = clock
	}
}

// PollingSource is a QuerySource that refreshes its queries with batched fetches.
//
// Every refresh request arms a single timer at the soonest requested deadline; when it fires
// all the stale and requested queries are frozen into one batch and handed to the BatchFetcher.
// At most one fetch is in flight at any time and, whatever its outcome, the source re-arms at
// the configured interval.
type PollingSource struct {
	name         string
	fetcher      BatchFetcher
	interval     time.Duration
	fetchTimeout time.Duration
	clock        clockwork.Clock
	log          logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu        sync.Mutex
	tracker   Tracker
	pending   []*Query
	refreshed map[*Query]time.Time

	timer      clockwork.Timer
	deadline   time.Time
	generation uint64

	fetching    bool
	hasDeferred bool
	deferredAt  time.Time

	closed bool
}

// NewPollingSource returns a PollingSource named name that fetches results with fetcher.
// The logger found in ctx is used for every log line of the source and ctx bounds all fetches.
func NewPollingSource(ctx context.Context, name string, fetcher BatchFetcher, cfg Config, opts ...Option) (*PollingSource, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: source %q", ErrMissingFetcher, name)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	source := &PollingSource{
		name:         name,
		fetcher:      fetcher,
		interval:     cfg.pollInterval(),
		fetchTimeout: cfg.FetchTimeout,
		clock:        clockwork.NewRealClock(),
		log:          logger.FromContext(ctx).WithName(loggerNamePrefix + name),
		ctx:          fetchCtx,
		cancel:       cancel,
		refreshed:    make(map[*Query]time.Time),
	}

	for _, opt := range opts {
		opt(source)
	}

	return source, nil
}

// Name implements QuerySource.
func (s *PollingSource) Name() string {
	return s.name
}

// Interval returns the cadence of the source.
func (s *PollingSource) Interval() time.Duration {
	return s.interval
}

// Query implements QuerySource. Queries created after Close are returned already closed.
func (s *PollingSource) Query(descriptor Descriptor, autoupdate bool) *Query {
	q := NewQuery(s, descriptor, autoupdate)

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.tracker.Add(q)
	}
	s.mu.Unlock()

	if closed {
		q.markClosed()
		return q
	}

	s.log.Trace("query registered", "queryId", q.ID(), "descriptor", descriptor, "autoupdate", autoupdate)
	return q
}

// LoadResult implements QuerySource: q is added to the next batch and a poll is requested
// immediately.
func (s *PollingSource) LoadResult(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.tracker.Contains(q) {
		return
	}

	if !slices.Contains(s.pending, q) {
		s.pending = append(s.pending, q)
	}
	s.queuePollLocked(0)
}

// CloseQuery implements QuerySource. An in-flight fetch including q is not cancelled, its
// result for q is discarded.
func (s *PollingSource) CloseQuery(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker.Remove(q) {
		s.log.Trace("query closed", "queryId", q.ID(), "descriptor", q.Descriptor())
	}
	s.pending = slices.DeleteFunc(s.pending, func(pending *Query) bool { return pending == q })
	delete(s.refreshed, q)
}

// Invalidate marks stale every live query whose descriptor satisfies match and makes sure that
// a poll happens within one interval. It returns the number of invalidated queries.
func (s *PollingSource) Invalidate(match func(Descriptor) bool) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}

	matched := slices.DeleteFunc(s.tracker.Queries(), func(q *Query) bool {
		return !match(q.Descriptor())
	})
	s.mu.Unlock()

	if len(matched) == 0 {
		return 0
	}

	for _, q := range matched {
		q.Invalidate()
	}

	s.mu.Lock()
	s.queuePollLocked(s.interval)
	s.mu.Unlock()

	s.log.Debug("queries invalidated", "count", len(matched))
	return len(matched)
}

// Queries returns the live queries in registration order.
func (s *PollingSource) Queries() []*Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Queries()
}

// Close stops the scheduler: the armed timer is stopped, the in-flight fetch context is
// cancelled and Close waits up to timeout for the fetch to return. Live queries are left open
// but are never refreshed again.
func (s *PollingSource) Close(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.stopTimerLocked()
	s.pending = nil
	s.hasDeferred = false
	s.mu.Unlock()

	s.cancel()

	settled := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(settled)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-settled:
		s.log.Debug("source closed")
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: fetch of source %q still running after %s", ErrCloseTimeout, s.name, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queuePollLocked makes sure that a poll fires no later than timeout from now.
func (s *PollingSource) queuePollLocked(timeout time.Duration) {
	if s.closed {
		return
	}

	candidate := s.clock.Now().Add(timeout)
	if s.fetching {
		if !s.hasDeferred || candidate.Before(s.deferredAt) {
			s.hasDeferred = true
			s.deferredAt = candidate
		}
		return
	}

	if s.timer != nil {
		if !candidate.Before(s.deadline) {
			return
		}
		s.stopTimerLocked()
	}

	s.generation++
	generation := s.generation
	s.deadline = candidate
	s.timer = s.clock.AfterFunc(timeout, func() { s.poll(generation) })
	s.log.Trace("poll armed", "in", timeout.String())
}

func (s *PollingSource) stopTimerLocked() {
	if s.timer == nil {
		return
	}

	s.timer.Stop()
	s.timer = nil
	// a callback already started for the stopped timer sees a stale generation and returns
	s.generation++
}

func (s *PollingSource) poll(generation uint64) {
	s.mu.Lock()
	if s.closed || s.fetching || generation != s.generation {
		s.mu.Unlock()
		return
	}

	s.timer = nil
	s.queueDueLocked(s.clock.Now())
	queries := s.freezeBatchLocked()
	s.pending = nil
	s.fetching = true
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.settle()

	if len(queries) == 0 {
		s.log.Trace("nothing to fetch")
		return
	}

	s.log.Debug("fetching batch", "size", len(queries))
	results, err := s.fetch(queries)
	if err != nil {
		s.log.Error("batched fetch failed", "error", err.Error(), "size", len(queries))
		return
	}

	s.dispatch(queries, results)
}

// queueDueLocked adds to pending every autoupdate query whose result is at least one interval
// old, so that satisfied autoupdate queries keep being refreshed at the poll cadence.
func (s *PollingSource) queueDueLocked(now time.Time) {
	for _, q := range s.tracker.queries {
		if !q.Autoupdate() || slices.Contains(s.pending, q) {
			continue
		}

		refreshedAt, ok := s.refreshed[q]
		if ok && !now.Before(refreshedAt.Add(s.interval)) {
			s.pending = append(s.pending, q)
		}
	}
}

// freezeBatchLocked returns every live query that is stale or pending, in registration order.
func (s *PollingSource) freezeBatchLocked() []*Query {
	batch := make([]*Query, 0, s.tracker.Len())
	for _, q := range s.tracker.queries {
		if !q.IsUpToDate() || slices.Contains(s.pending, q) {
			batch = append(batch, q)
		}
	}
	return batch
}

func (s *PollingSource) fetch(queries []*Query) ([]*Result, error) {
	ctx := s.ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	descriptors := make([]Descriptor, len(queries))
	for idx, q := range queries {
		descriptors[idx] = q.Descriptor()
	}

	return s.fetcher.FetchBatch(ctx, descriptors)
}

func (s *PollingSource) dispatch(queries []*Query, results []*Result) {
	if len(results) != len(queries) {
		s.log.Warn("batch response length mismatch", "expected", len(queries), "received", len(results))
	}

	updated := 0
	for idx := range min(len(queries), len(results)) {
		result := results[idx]
		if result == nil {
			continue
		}

		q := queries[idx]
		s.mu.Lock()
		if s.tracker.Contains(q) {
			s.refreshed[q] = s.clock.Now()
		}
		s.satisfyPendingLocked(q)
		s.mu.Unlock()

		q.MarkResultChanged(result)
		updated++
	}

	s.log.Debug("batch dispatched", "updated", updated, "size", len(queries))
}

// satisfyPendingLocked drops q from the requests received while the fetch was in flight, since
// the batch answered it. The deferred poll is dropped with the last of them.
func (s *PollingSource) satisfyPendingLocked(q *Query) {
	if !slices.Contains(s.pending, q) {
		return
	}

	s.pending = slices.DeleteFunc(s.pending, func(pending *Query) bool { return pending == q })
	if len(s.pending) == 0 {
		s.hasDeferred = false
	}
}

// settle ends the fetching phase and re-arms the scheduler.
func (s *PollingSource) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.inflight.Done()

	s.fetching = false
	if s.closed {
		return
	}

	if s.tracker.Len() > 0 {
		s.queuePollLocked(s.interval)
	}

	if s.hasDeferred {
		s.hasDeferred = false
		s.queuePollLocked(max(s.deferredAt.Sub(s.clock.Now()), 0))
	}
}
